package cli

import (
	"fmt"

	"github.com/brandstamp/brandstamp/internal/output"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List a shop's recent jobs",
	RunE:  runJobs,
}

var (
	jobsShop  string
	jobsLimit int32
)

func init() {
	jobsCmd.Flags().StringVar(&jobsShop, "shop", "", "Shop domain (required)")
	jobsCmd.Flags().Int32Var(&jobsLimit, "limit", 20, "Maximum jobs to show")
	_ = jobsCmd.MarkFlagRequired("shop")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	jobs, err := queries.ListJobsByShop(ctx, jobsShop, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if jsonOutput {
		views := make([]map[string]any, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, jobView(job))
		}
		return printer.JSON(views)
	}

	if len(jobs) == 0 {
		printer.Info("No jobs for %s", jobsShop)
		return nil
	}

	table := output.NewTable([]string{"ID", "Type", "Status", "Progress", "Created"}, quietMode)
	for _, job := range jobs {
		table.Append([]string{
			jobUUID(job).String(),
			string(job.JobType),
			string(job.Status),
			fmt.Sprintf("%d/%d (%d failed)", job.ProcessedProducts, job.TotalProducts, job.FailedProducts),
			formatTime(job.CreatedAt),
		})
	}
	table.Render()
	return nil
}
