package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/metrics"
	"github.com/brandstamp/brandstamp/internal/tracing"
	"github.com/cenkalti/backoff/v4"
)

// RollbackHandler consumes watermark_rollback messages and restores every
// completed item of the referenced apply job to its original image.
func RollbackHandler(deps *Dependencies) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		var payload RollbackPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		ctx = tracing.ExtractTraceContext(ctx, payload.Trace)
		ctx, span := tracing.StartJobSpan(ctx, JobTypeRollback, payload.JobID.String(), payload.Shop)
		defer span.End()

		ctx = logger.WithShop(ctx, payload.Shop)
		ctx = logger.WithJobID(ctx, payload.JobID.String())
		log := logger.FromContext(ctx).With("job_type", JobTypeRollback)
		ctx = logger.WithLogger(ctx, log)

		if err := runRollback(ctx, deps, payload); err != nil {
			tracing.RecordError(ctx, err)
			if !apperror.Retryable(err) {
				return middleware.Permanent(err)
			}
			return err
		}
		return nil
	}
}

func runRollback(ctx context.Context, deps *Dependencies, payload RollbackPayload) error {
	log := logger.FromContext(ctx)
	start := time.Now()
	jobID := uuidToPgtype(payload.JobID)

	wj, err := deps.Queries.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if wj.Status == db.JobStatusRolledBack {
		log.Info("job already rolled back, skipping")
		return nil
	}

	run, err := deps.Queries.GetLatestRollbackRun(ctx, jobID)
	if errors.Is(err, db.ErrNotFound) {
		run, err = deps.Queries.CreateRollbackRun(ctx, jobID, payload.Shop)
	}
	if err != nil {
		return fmt.Errorf("rollback run record: %w", err)
	}

	token, err := deps.Tokens.Get(ctx, payload.Shop)
	if err != nil {
		if dbErr := deps.Queries.CompleteRollbackRun(ctx, run.ID, db.RollbackStatusFailed); dbErr != nil {
			log.Error("mark rollback failed errored", "error", dbErr)
		}
		return fmt.Errorf("resolve credential: %w", err)
	}
	api := deps.CatalogFactory(payload.Shop, token)

	items, err := deps.Queries.ListCompletedItemsByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list completed items: %w", err)
	}

	if err := deps.Queries.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if err := deps.Queries.MarkRollbackProcessing(ctx, run.ID, int32(len(items))); err != nil {
		return fmt.Errorf("mark rollback processing: %w", err)
	}
	log.Info("rollback started", "items", len(items))

	restored := 0
	for _, item := range items {
		ok, err := rollbackItem(ctx, deps, api, item)
		if err != nil {
			// Surfaced on the item; the run keeps going so one stuck
			// image cannot hold every other product hostage.
			log.Error("item rollback failed", "item_id", pgtypeToUUID(item.ID), "product_id", item.ProductID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		restored++
		if err := deps.Queries.MarkItemRolledBack(ctx, item.ID); err != nil {
			return fmt.Errorf("mark item rolled back: %w", err)
		}
		if err := deps.Queries.IncrementRolledBack(ctx, run.ID); err != nil {
			return fmt.Errorf("increment rollback counter: %w", err)
		}
	}

	if err := deps.Queries.CompleteRollbackRun(ctx, run.ID, db.RollbackStatusCompleted); err != nil {
		return fmt.Errorf("complete rollback run: %w", err)
	}

	if restored == len(items) {
		if err := deps.Queries.MarkJobRolledBack(ctx, jobID); err != nil {
			return fmt.Errorf("mark job rolled back: %w", err)
		}
	} else {
		// Partial restoration: the job stays completed so the remaining
		// watermarked items are still visible and re-runnable.
		if err := deps.Queries.MarkJobCompleted(ctx, jobID); err != nil {
			return fmt.Errorf("restore job status: %w", err)
		}
		log.Warn("rollback completed partially", "restored", restored, "total", len(items))
	}

	log.Info("rollback finished", "restored", restored, "items", len(items), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// rollbackItem restores one archived original as live media. The
// watermarked replacement is only detached after the restored media is
// verified ready; deleting first could leave the product with no image at
// all.
func rollbackItem(ctx context.Context, deps *Dependencies, api catalog.API, item db.JobItem) (bool, error) {
	log := logger.FromContext(ctx).With("product_id", item.ProductID, "media_id", item.OriginalMediaID)

	if item.Status == db.ItemStatusRolledBack {
		return false, nil
	}
	if item.OriginalMediaURL == "" {
		return false, fmt.Errorf("item has no archive reference")
	}

	expiry := deps.PresignExpirySecs
	if expiry <= 0 {
		expiry = 3600
	}
	sourceURL, err := deps.Storage.GetPresignedURL(ctx, item.OriginalMediaURL, expiry)
	if err != nil {
		return false, fmt.Errorf("presign archive %s: %w", item.OriginalMediaURL, err)
	}

	created, err := api.CreateProductMedia(ctx, item.ProductID, []catalog.NewMedia{{
		ResourceURL: sourceURL,
		Alt:         item.ProductTitle,
	}})
	if err != nil {
		return false, fmt.Errorf("recreate original media: %w", err)
	}
	restoredID := created[0].ID

	if err := verifyMediaReady(ctx, deps, api, restoredID); err != nil {
		// Safety gate: the item stays completed and the watermarked
		// media stays attached. The discrepancy is surfaced, not masked.
		metrics.RecordRollbackVerification("timeout")
		log.Error("restored media never became ready, leaving item unrolled", "restored_media_id", restoredID, "error", err)
		return false, nil
	}
	metrics.RecordRollbackVerification("verified")

	if err := api.ReorderProductMedia(ctx, item.ProductID, []catalog.MediaMove{{
		MediaID:  restoredID,
		Position: int(item.OriginalPosition),
	}}); err != nil {
		return false, fmt.Errorf("reorder restored media: %w", err)
	}

	if err := api.AssignVariantMedia(ctx, item.ProductID, item.VariantIDs, restoredID); err != nil {
		return false, fmt.Errorf("reassign variants: %w", err)
	}

	if item.NewMediaID != "" {
		if err := api.DeleteProductMedia(ctx, item.ProductID, []string{item.NewMediaID}); err != nil {
			return false, fmt.Errorf("remove watermarked media: %w", err)
		}
	}

	log.Info("item restored", "restored_media_id", restoredID, "position", item.OriginalPosition)
	return true, nil
}

// verifyMediaReady polls the platform until the media reports READY,
// bounded to a fixed number of attempts at a fixed interval.
func verifyMediaReady(ctx context.Context, deps *Dependencies, api catalog.API, mediaID string) error {
	attempts := deps.VerifyAttempts
	if attempts <= 0 {
		attempts = 10
	}
	interval := deps.VerifyInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	operation := func() error {
		status, err := api.GetMediaStatus(ctx, mediaID)
		if err != nil {
			return err
		}
		switch status {
		case catalog.MediaStatusReady:
			return nil
		case catalog.MediaStatusFailed:
			return backoff.Permanent(fmt.Errorf("media %s failed processing", mediaID))
		default:
			return fmt.Errorf("media %s still %s", mediaID, status)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(operation, policy)
}
