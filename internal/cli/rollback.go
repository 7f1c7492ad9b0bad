package cli

import (
	"fmt"

	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/worker"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <job-id>",
	Short: "Restore a job's original images",
	Long: `Restore every image a completed job replaced, from the archived
originals. Items whose restored media never becomes ready on the
platform are left untouched and reported, so a partial restore never
deletes anything it could not verify.

Examples:
  stampctl rollback 5b1e0a9c-...
  stampctl rollback 5b1e0a9c-... --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

var rollbackYes bool

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	pgID, id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	job, err := queries.GetJob(ctx, pgID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	switch job.Status {
	case db.JobStatusCompleted, db.JobStatusCancelled, db.JobStatusFailed:
	case db.JobStatusRolledBack:
		printer.Info("Job %s is already rolled back", id)
		return nil
	default:
		return fmt.Errorf("job is %s, only finished jobs can be rolled back", job.Status)
	}

	items, err := queries.ListCompletedItemsByJob(ctx, pgID)
	if err != nil {
		return fmt.Errorf("list job items: %w", err)
	}
	if len(items) == 0 {
		printer.Info("Job %s replaced no images, nothing to restore", id)
		return nil
	}

	if !rollbackYes && !quietMode && !jsonOutput {
		printer.Warn("This will restore %d images on %s and delete their watermarked replacements.", len(items), job.Shop)
		fmt.Print("Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			printer.Info("Aborted")
			return nil
		}
	}

	if _, err := worker.EnqueueRollback(ctx, jobBroker, id, job.Shop); err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"job_id": id.String(), "items": len(items)})
	}

	printer.Success("Rollback submitted for %d images", len(items))
	printer.Info("Watch it with: stampctl status %s --watch", id)
	return nil
}
