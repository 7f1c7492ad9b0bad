package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var shopCmd = &cobra.Command{
	Use:   "shop",
	Short: "Manage shop credentials",
}

var shopConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Store a shop's platform access token",
	Long: `Store or replace the access token the workers use to call the
commerce platform on this shop's behalf.

Example:
  stampctl shop connect --shop my-shop.example.com --token shpat_abc123`,
	RunE: runShopConnect,
}

var (
	shopDomain string
	shopToken  string
)

func init() {
	shopConnectCmd.Flags().StringVar(&shopDomain, "shop", "", "Shop domain (required)")
	shopConnectCmd.Flags().StringVar(&shopToken, "token", "", "Platform access token (required)")
	_ = shopConnectCmd.MarkFlagRequired("shop")
	_ = shopConnectCmd.MarkFlagRequired("token")

	shopCmd.AddCommand(shopConnectCmd)
}

func runShopConnect(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	if err := queries.UpsertShop(ctx, shopDomain, shopToken); err != nil {
		return fmt.Errorf("store shop credential: %w", err)
	}

	// Workers cache tokens in Redis; drop any stale entry immediately.
	if err := redisClient.Del(ctx, "catalog_token:"+shopDomain).Err(); err != nil {
		printer.Warn("token stored but cache invalidation failed: %v", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"shop": shopDomain, "status": "connected"})
	}
	printer.Success("Shop %s connected", shopDomain)
	return nil
}
