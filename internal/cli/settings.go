package cli

import (
	"fmt"
	"os"

	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage a shop's stored watermark settings",
}

var settingsPushCmd = &cobra.Command{
	Use:   "push <settings.yaml>",
	Short: "Validate and store watermark settings for a shop",
	Long: `Store the settings new jobs default to. Jobs already submitted keep
their own snapshot and are unaffected.

Example:
  stampctl settings push watermark.yaml --shop my-shop.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsPush,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a shop's stored settings as YAML",
	RunE:  runSettingsShow,
}

var settingsShop string

func init() {
	settingsPushCmd.Flags().StringVar(&settingsShop, "shop", "", "Shop domain (required)")
	_ = settingsPushCmd.MarkFlagRequired("shop")
	settingsShowCmd.Flags().StringVar(&settingsShop, "shop", "", "Shop domain (required)")
	_ = settingsShowCmd.MarkFlagRequired("shop")

	settingsCmd.AddCommand(settingsPushCmd)
	settingsCmd.AddCommand(settingsShowCmd)
}

func runSettingsPush(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	s := settings.Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := queries.UpsertShopSettings(ctx, settingsShop, snapshot); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"shop": settingsShop, "status": "stored"})
	}
	printer.Success("Settings stored for %s", settingsShop)
	return nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	data, err := queries.GetShopSettings(ctx, settingsShop)
	if err != nil {
		return fmt.Errorf("no settings for shop %s: %w", settingsShop, err)
	}
	s, err := settings.FromSnapshot(data)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(s)
	}

	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
