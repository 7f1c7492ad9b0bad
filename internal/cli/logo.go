package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/output"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/brandstamp/brandstamp/internal/storage"
	"github.com/spf13/cobra"
)

var logoCmd = &cobra.Command{
	Use:   "logo",
	Short: "Manage a shop's watermark logo",
}

var logoUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a logo image to the archive store",
	Long: `Upload the logo file watermark jobs composite onto product images.
The shop's stored settings are updated to point at the new logo.

Example:
  stampctl logo upload logo.png --shop my-shop.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runLogoUpload,
}

var logoShop string

func init() {
	logoUploadCmd.Flags().StringVar(&logoShop, "shop", "", "Shop domain (required)")
	_ = logoUploadCmd.MarkFlagRequired("shop")

	logoCmd.AddCommand(logoUploadCmd)
}

func runLogoUpload(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open logo file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(args[0]))
	if contentType == "" {
		contentType = "image/png"
	}

	store, err := storage.NewMinIOStorage(&storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return fmt.Errorf("connect to archive storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	key := storage.LogoKey(logoShop, filepath.Base(args[0]))
	bar := output.NewByteProgress(info.Size(), "Uploading logo", quietMode || jsonOutput)
	reader := io.TeeReader(file, bar)

	if err := store.Upload(ctx, key, reader, contentType, info.Size()); err != nil {
		bar.Finish()
		return fmt.Errorf("upload logo: %w", err)
	}
	bar.Finish()

	if err := pointSettingsAtLogo(ctx, key); err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"shop": logoShop, "storage_key": key})
	}
	printer.Success("Logo uploaded")
	printer.KeyValue("Storage key", key)
	return nil
}

// pointSettingsAtLogo enables the logo layer in the shop's stored settings.
// Shops without stored settings get the defaults with the logo wired in.
func pointSettingsAtLogo(ctx context.Context, key string) error {
	s := settings.Default()
	if data, err := queries.GetShopSettings(ctx, logoShop); err == nil {
		if existing, err := settings.FromSnapshot(data); err == nil {
			s = existing
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("load shop settings: %w", err)
	}

	s.Logo.Enabled = true
	s.Logo.StorageKey = key

	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := queries.UpsertShopSettings(ctx, logoShop, snapshot); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}
