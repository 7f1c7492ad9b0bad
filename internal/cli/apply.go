package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/brandstamp/brandstamp/internal/worker"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a bulk watermark job",
	Long: `Submit a watermark job over a shop's product catalog.

The job snapshots its settings at submission time; later edits to the
shop's stored settings never affect a job already submitted.

Examples:
  stampctl apply --shop my-shop.example.com --scope all
  stampctl apply --shop my-shop.example.com --scope collection --collection gid://collection/42
  stampctl apply --shop my-shop.example.com --scope manual --products gid://product/1,gid://product/2
  stampctl apply --shop my-shop.example.com --scope all --settings watermark.yaml`,
	RunE: runApply,
}

var (
	applyShop         string
	applyScope        string
	applyCollection   string
	applyProducts     []string
	applySettingsFile string
)

func init() {
	applyCmd.Flags().StringVar(&applyShop, "shop", "", "Shop domain (required)")
	applyCmd.Flags().StringVar(&applyScope, "scope", "all", "Scope: all, collection, or manual")
	applyCmd.Flags().StringVar(&applyCollection, "collection", "", "Collection ID for --scope collection")
	applyCmd.Flags().StringSliceVar(&applyProducts, "products", nil, "Product IDs for --scope manual")
	applyCmd.Flags().StringVar(&applySettingsFile, "settings", "", "Settings YAML file (defaults to the shop's stored settings)")
	_ = applyCmd.MarkFlagRequired("shop")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	scopeType, scopeValue, err := resolveScopeFlags()
	if err != nil {
		return err
	}

	snapshot, err := loadSettingsSnapshot(ctx)
	if err != nil {
		return err
	}

	job, err := queries.CreateJob(ctx, db.CreateJobParams{
		Shop:             applyShop,
		JobType:          db.JobTypeApply,
		ScopeType:        scopeType,
		ScopeValue:       scopeValue,
		SettingsSnapshot: snapshot,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	jobID := jobUUID(job)
	if _, err := worker.EnqueueApply(ctx, jobBroker, jobID, applyShop); err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"job_id": jobID.String(), "status": string(job.Status)})
	}

	printer.Success("Job submitted")
	printer.KeyValue("Job ID", jobID.String())
	printer.KeyValue("Shop", applyShop)
	printer.KeyValue("Scope", string(scopeType))
	printer.Info("Watch it with: stampctl status %s --watch", jobID.String())
	return nil
}

func resolveScopeFlags() (db.ScopeType, string, error) {
	switch db.ScopeType(applyScope) {
	case db.ScopeAll:
		return db.ScopeAll, "", nil

	case db.ScopeCollection:
		if applyCollection == "" {
			return "", "", fmt.Errorf("--scope collection requires --collection")
		}
		return db.ScopeCollection, applyCollection, nil

	case db.ScopeManual:
		ids := make([]string, 0, len(applyProducts))
		for _, id := range applyProducts {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				ids = append(ids, trimmed)
			}
		}
		if len(ids) == 0 {
			return "", "", fmt.Errorf("--scope manual requires --products")
		}
		value, err := worker.EncodeManualScope(ids)
		if err != nil {
			return "", "", err
		}
		return db.ScopeManual, value, nil

	default:
		return "", "", fmt.Errorf("unknown scope %q, want all, collection, or manual", applyScope)
	}
}

// loadSettingsSnapshot validates settings up front so a bad configuration
// fails at submission, not inside the worker.
func loadSettingsSnapshot(ctx context.Context) ([]byte, error) {
	if applySettingsFile != "" {
		data, err := os.ReadFile(applySettingsFile)
		if err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
		s := settings.Default()
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse settings file: %w", err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
		return s.Snapshot()
	}

	data, err := queries.GetShopSettings(ctx, applyShop)
	if err != nil {
		return nil, fmt.Errorf("no settings for shop %s, push some with 'stampctl settings push' or pass --settings: %w", applyShop, err)
	}
	s, err := settings.FromSnapshot(data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored settings invalid: %w", err)
	}
	return data, nil
}
