package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Long: `Cancel a pending or processing job. The worker checks for
cancellation between products, so images already swapped stay swapped;
roll the job back afterwards if you want them restored.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	pgID, id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	cancelled, err := queries.MarkJobCancelled(ctx, pgID)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}

	if !cancelled {
		status, err := queries.GetJobStatus(ctx, pgID)
		if err != nil {
			return fmt.Errorf("job %s not found", id)
		}
		return fmt.Errorf("job is %s and can no longer be cancelled", status)
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"job_id": id.String(), "status": "cancelled"})
	}

	printer.Success("Job %s cancelled", id)
	printer.Info("Images already processed stay live; use 'stampctl rollback %s' to restore them", id)
	return nil
}
