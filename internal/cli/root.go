// Package cli implements stampctl, the operator tool for submitting,
// watching and rolling back bulk watermark jobs. It talks straight to the
// job database and the queue broker, the same backends the workers use.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/brandstamp/brandstamp/internal/config"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/output"
	"github.com/brandstamp/brandstamp/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// brokerAdapter narrows the Redis Streams broker to the enqueue surface
// the worker package expects.
type brokerAdapter struct {
	broker *broker.RedisStreamsBroker
}

func (a *brokerAdapter) Enqueue(jobType string, payload interface{}) (string, error) {
	j, err := job.New(jobType, payload)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := a.broker.Enqueue(context.Background(), j); err != nil {
		return "", err
	}
	return j.ID, nil
}

var (
	jsonOutput bool
	quietMode  bool

	cfg         *config.Config
	pool        *pgxpool.Pool
	queries     *db.Queries
	redisClient *redis.Client
	jobBroker   worker.Broker
	printer     *output.Printer

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "stampctl",
	Short: "Submit and manage bulk watermark jobs",
	Long: `stampctl drives the watermarking pipeline from the terminal.

Submit a job across a shop's catalog, watch its progress, cancel it
mid-run, or roll a completed job back to the archived originals.

Get started:
  stampctl shop connect --shop my-shop.example.com --token shpat_...
  stampctl logo upload logo.png --shop my-shop.example.com
  stampctl apply --shop my-shop.example.com --scope all
  stampctl status <job-id> --watch`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		logger.Init("error")

		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
		)

		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		pool, err = pgxpool.New(rootCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		queries = db.New(pool)

		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpt)
		jobBroker = &brokerAdapter{broker: broker.NewRedisStreamsBroker(redisClient,
			broker.WithWorkerID(fmt.Sprintf("stampctl-%d", os.Getpid())),
		)}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if pool != nil {
			pool.Close()
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns the signal-aware root context for command bodies.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(shopCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(logoCmd)
}
