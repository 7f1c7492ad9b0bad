package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/output"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"
)

const maxConsecutiveErrors = 5

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress",
	Long: `Show the durable counters and per-image outcomes of a job.

Examples:
  stampctl status 5b1e0a9c-...           # One-shot snapshot
  stampctl status 5b1e0a9c-... --watch   # Follow until it finishes
  stampctl status 5b1e0a9c-... --items   # Include the per-image table`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusWatch bool
	statusItems bool
)

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch until the job finishes")
	statusCmd.Flags().BoolVar(&statusItems, "items", false, "Show the per-image table")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	pgID, _, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	if statusWatch {
		return watchJob(ctx, pgID)
	}
	return showJob(ctx, pgID)
}

func showJob(ctx context.Context, pgID pgtype.UUID) error {
	job, err := queries.GetJob(ctx, pgID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if jsonOutput {
		return printer.JSON(jobView(job))
	}

	printer.Section("Job Status")
	printer.KeyValue("ID", jobUUID(job).String())
	printer.KeyValue("Shop", job.Shop)
	printer.KeyValue("Type", string(job.JobType))
	printer.KeyValue("Status", string(job.Status))
	printer.KeyValue("Scope", string(job.ScopeType))
	printer.KeyValue("Products", fmt.Sprintf("%d/%d processed, %d failed",
		job.ProcessedProducts, job.TotalProducts, job.FailedProducts))
	printer.KeyValue("Created", formatTime(job.CreatedAt))
	printer.KeyValue("Started", formatTime(job.StartedAt))
	printer.KeyValue("Completed", formatTime(job.CompletedAt))
	if job.ErrorMessage != "" {
		printer.KeyValue("Error", job.ErrorMessage)
	}

	if !statusItems {
		return nil
	}

	items, err := queries.ListItemsByJob(ctx, pgID)
	if err != nil {
		return fmt.Errorf("list job items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	printer.Section("Images")
	table := output.NewTable([]string{"Item", "Product", "Position", "Status", "Error"}, quietMode)
	for _, it := range items {
		table.Append([]string{
			shortID(it.ID),
			it.ProductTitle,
			fmt.Sprintf("%d", it.OriginalPosition),
			string(it.Status),
			it.ErrorMessage,
		})
	}
	table.Render()
	return nil
}

func watchJob(ctx context.Context, pgID pgtype.UUID) error {
	job, err := queries.GetJob(ctx, pgID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	var bar *output.Progress
	spinner := output.NewSpinner("Waiting for scope resolution...", quietMode || jsonOutput)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var consecutiveErrors int
	for {
		select {
		case <-ctx.Done():
			spinner.Finish()
			if bar != nil {
				bar.Finish()
			}
			return ctx.Err()
		case <-ticker.C:
			job, err = queries.GetJob(ctx, pgID)
			if err != nil {
				consecutiveErrors++
				if consecutiveErrors >= maxConsecutiveErrors {
					spinner.Finish()
					return fmt.Errorf("failed after %d consecutive errors: %w", consecutiveErrors, err)
				}
				continue
			}
			consecutiveErrors = 0

			// The bar appears once the scope has resolved to a total.
			if bar == nil && job.TotalProducts > 0 {
				spinner.Finish()
				bar = output.NewProgress(int(job.TotalProducts), "Processing products", quietMode || jsonOutput)
			}
			if bar != nil {
				bar.Set(int(job.ProcessedProducts + job.FailedProducts))
			} else {
				spinner.Update(fmt.Sprintf("Status: %s", job.Status))
			}

			if terminal(job.Status) {
				spinner.Finish()
				if bar != nil {
					bar.Finish()
				}
				return reportFinished(job)
			}
		}
	}
}

func terminal(status db.JobStatus) bool {
	switch status {
	case db.JobStatusCompleted, db.JobStatusFailed, db.JobStatusCancelled, db.JobStatusRolledBack:
		return true
	}
	return false
}

func reportFinished(job db.WatermarkJob) error {
	if jsonOutput {
		return printer.JSON(jobView(job))
	}

	switch job.Status {
	case db.JobStatusCompleted:
		if job.FailedProducts > 0 {
			printer.Warn("Job completed: %d/%d products, %d failed",
				job.ProcessedProducts, job.TotalProducts, job.FailedProducts)
		} else {
			printer.Success("Job completed: %d/%d products", job.ProcessedProducts, job.TotalProducts)
		}
	case db.JobStatusRolledBack:
		printer.Success("Job fully rolled back")
	case db.JobStatusCancelled:
		printer.Warn("Job cancelled after %d/%d products", job.ProcessedProducts, job.TotalProducts)
	default:
		printer.Error("Job failed: %s", job.ErrorMessage)
	}
	return nil
}

func jobView(job db.WatermarkJob) map[string]any {
	return map[string]any{
		"id":                 jobUUID(job).String(),
		"shop":               job.Shop,
		"job_type":           job.JobType,
		"status":             job.Status,
		"scope_type":         job.ScopeType,
		"total_products":     job.TotalProducts,
		"processed_products": job.ProcessedProducts,
		"failed_products":    job.FailedProducts,
		"error_message":      job.ErrorMessage,
	}
}
