package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/metrics"
	"github.com/brandstamp/brandstamp/internal/scope"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/brandstamp/brandstamp/internal/storage"
	"github.com/brandstamp/brandstamp/internal/tracing"
	"github.com/brandstamp/brandstamp/internal/watermark"
	"github.com/jackc/pgx/v5/pgtype"
)

// ApplyHandler consumes watermark_apply messages. The payload carries only
// identity; job state, settings snapshot and scope are loaded from the
// database so execution matches what was submitted.
func ApplyHandler(deps *Dependencies) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		var payload ApplyPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		ctx = tracing.ExtractTraceContext(ctx, payload.Trace)
		ctx, span := tracing.StartJobSpan(ctx, JobTypeApply, payload.JobID.String(), payload.Shop)
		defer span.End()

		ctx = logger.WithShop(ctx, payload.Shop)
		ctx = logger.WithJobID(ctx, payload.JobID.String())
		log := logger.FromContext(ctx).With("job_type", JobTypeApply)
		ctx = logger.WithLogger(ctx, log)

		if err := runApplyJob(ctx, deps, payload); err != nil {
			tracing.RecordError(ctx, err)
			if !apperror.Retryable(err) {
				return middleware.Permanent(err)
			}
			return err
		}
		return nil
	}
}

type applyRun struct {
	deps  *Dependencies
	jobID pgtype.UUID
	shop  string

	api      catalog.API
	settings settings.Settings
	logo     image.Image

	cancelled atomic.Bool
}

func runApplyJob(ctx context.Context, deps *Dependencies, payload ApplyPayload) error {
	log := logger.FromContext(ctx)
	start := time.Now()
	jobID := uuidToPgtype(payload.JobID)

	wj, err := deps.Queries.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	switch wj.Status {
	case db.JobStatusCancelled:
		log.Info("job already cancelled, skipping")
		return nil
	case db.JobStatusCompleted, db.JobStatusRolledBack:
		log.Info("job already finished, skipping", "status", wj.Status)
		return nil
	}

	if err := deps.Queries.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	run := &applyRun{deps: deps, jobID: jobID, shop: payload.Shop}

	// Snapshot beats live settings so a mid-run design edit cannot change
	// what this job renders.
	run.settings, err = effectiveSettings(ctx, deps.Queries, wj)
	if err != nil {
		return failJob(ctx, deps, jobID, fmt.Errorf("resolve settings: %w", err))
	}

	token, err := deps.Tokens.Get(ctx, payload.Shop)
	if err != nil {
		return failJob(ctx, deps, jobID, fmt.Errorf("resolve credential: %w", err))
	}
	run.api = deps.CatalogFactory(payload.Shop, token)

	if run.settings.Logo.Enabled {
		run.logo, err = loadLogo(ctx, deps.Storage, run.settings.Logo.StorageKey)
		if err != nil {
			return failJob(ctx, deps, jobID, fmt.Errorf("load logo: %w", err))
		}
	}

	scopeValue, err := decodeScopeValue(wj.ScopeType, wj.ScopeValue)
	if err != nil {
		return failJob(ctx, deps, jobID, err)
	}
	resolver := scope.NewResolver(run.api, deps.ScopeMaxProduct)
	productIDs, err := resolver.Resolve(ctx, wj.ScopeType, scopeValue)
	if err != nil {
		// Partial scope is not a valid execution target.
		return failJob(ctx, deps, jobID, fmt.Errorf("resolve scope: %w", err))
	}

	if err := deps.Queries.SetJobTotal(ctx, jobID, int32(len(productIDs))); err != nil {
		return failJob(ctx, deps, jobID, fmt.Errorf("record total: %w", err))
	}
	log.Info("scope resolved", "products", len(productIDs), "scope_type", wj.ScopeType)

	concurrency := deps.ProductConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, productID := range productIDs {
		if run.checkCancelled(ctx) {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(productID string) {
			defer wg.Done()
			defer func() { <-sem }()

			pctx, pspan := tracing.StartProductSpan(ctx, productID)
			defer pspan.End()

			pstart := time.Now()
			if err := run.processProduct(pctx, productID); err != nil {
				// One product's failure never aborts the job.
				logger.FromContext(pctx).Error("product failed", "product_id", productID, "error", err)
				tracing.RecordError(pctx, err)
				metrics.RecordImageProcessed("apply", "error", time.Since(pstart).Seconds())
				if dbErr := run.deps.Queries.IncrementFailed(pctx, run.jobID); dbErr != nil {
					logger.FromContext(pctx).Error("failed counter update failed", "error", dbErr)
				}
				return
			}
			metrics.RecordImageProcessed("apply", "success", time.Since(pstart).Seconds())
			if dbErr := run.deps.Queries.IncrementProcessed(pctx, run.jobID); dbErr != nil {
				logger.FromContext(pctx).Error("processed counter update failed", "error", dbErr)
			}
		}(productID)
	}
	wg.Wait()

	if run.cancelled.Load() {
		log.Info("job cancelled, remaining products skipped", "duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	if err := deps.Queries.MarkJobCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	log.Info("apply job completed", "products", len(productIDs), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// checkCancelled consults the persisted status between products. In-flight
// products are never interrupted, only dispatch stops.
func (r *applyRun) checkCancelled(ctx context.Context) bool {
	if r.cancelled.Load() {
		return true
	}
	status, err := r.deps.Queries.GetJobStatus(ctx, r.jobID)
	if err != nil {
		logger.FromContext(ctx).Warn("cancellation check failed", "error", err)
		return false
	}
	if status == db.JobStatusCancelled {
		r.cancelled.Store(true)
		return true
	}
	return false
}

func effectiveSettings(ctx context.Context, queries Querier, wj db.WatermarkJob) (settings.Settings, error) {
	snapshot := wj.SettingsSnapshot
	if len(snapshot) == 0 {
		live, err := queries.GetShopSettings(ctx, wj.Shop)
		if err != nil {
			return settings.Settings{}, err
		}
		snapshot = live
	}

	s, err := settings.FromSnapshot(snapshot)
	if err != nil {
		return settings.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return settings.Settings{}, apperror.Wrap(err, apperror.ErrUserErrors)
	}
	return s, nil
}

func failJob(ctx context.Context, deps *Dependencies, jobID pgtype.UUID, cause error) error {
	if err := deps.Queries.MarkJobFailed(ctx, db.MarkJobFailedParams{ID: jobID, ErrorMessage: cause.Error()}); err != nil {
		logger.FromContext(ctx).Error("mark job failed errored", "error", err)
	}
	return cause
}

// stagedImage tracks one image through the per-product pipeline.
type stagedImage struct {
	source   catalog.ProductImage
	itemID   pgtype.UUID
	filename string
	mimeType string
	resource string
	failed   bool
}

// processProduct runs the full pipeline for one product: fetch and
// composite every image, archive originals, push results through the
// staged upload protocol, then swap media while preserving gallery order
// and variant assignments.
func (r *applyRun) processProduct(ctx context.Context, productID string) error {
	log := logger.FromContext(ctx).With("product_id", productID)

	product, err := r.api.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("fetch product: %w", err)
	}

	if err := r.skipStrandedItems(ctx, productID, product.Images); err != nil {
		return err
	}

	if len(product.Images) == 0 {
		log.Debug("product has no images")
		return nil
	}

	pending := make([]*stagedImage, 0, len(product.Images))
	for _, img := range product.Images {
		existing, err := r.deps.Queries.GetItemByMedia(ctx, r.jobID, img.MediaID)
		if err == nil {
			switch existing.Status {
			case db.ItemStatusCompleted, db.ItemStatusSkipped, db.ItemStatusRolledBack:
				// Finished before a restart; resume skips it.
				continue
			default:
				pending = append(pending, &stagedImage{source: img, itemID: existing.ID})
				continue
			}
		} else if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("check item state: %w", err)
		}
		pending = append(pending, &stagedImage{source: img})
	}
	if len(pending) == 0 {
		log.Debug("all images already processed")
		return nil
	}

	for _, si := range pending {
		si.mimeType = guessMimeType(si.source.URL)
		si.filename = uploadFilename(si.source.MediaID, si.mimeType)
	}

	inputs := make([]catalog.StagedUploadInput, len(pending))
	for i, si := range pending {
		inputs[i] = catalog.StagedUploadInput{Filename: si.filename, MimeType: si.mimeType}
	}
	targets, err := r.api.CreateStagedUploads(ctx, inputs)
	if err != nil {
		return fmt.Errorf("create staged uploads: %w", err)
	}

	// One image's pipeline runs at a time per concurrency slot, bounding
	// peak memory to a single decoded image.
	for i, si := range pending {
		if err := r.processImage(ctx, product, si, targets[i]); err != nil {
			log.Error("image failed", "media_id", si.source.MediaID, "error", err)
			si.failed = true
			if si.itemID.Valid {
				if dbErr := r.deps.Queries.MarkItemFailed(ctx, db.MarkItemFailedParams{ID: si.itemID, ErrorMessage: err.Error()}); dbErr != nil {
					log.Error("mark item failed errored", "error", dbErr)
				}
			}
		}
	}

	succeeded := make([]*stagedImage, 0, len(pending))
	for _, si := range pending {
		if !si.failed {
			succeeded = append(succeeded, si)
		}
	}

	if len(succeeded) > 0 {
		if err := r.attachAndSwap(ctx, product, succeeded); err != nil {
			return fmt.Errorf("attach media: %w", err)
		}
	}

	// attachAndSwap fails items too, so the verdict is counted last.
	if failed := countFailed(pending); failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(pending))
	}
	return nil
}

// skipStrandedItems closes out item rows whose original media is no longer
// on the product gallery: removed by the merchant mid-run, or detached by
// an earlier run that crashed before recording completion. There is
// nothing left to fetch for them, so a re-run would otherwise leave them
// dangling in a non-terminal state forever.
func (r *applyRun) skipStrandedItems(ctx context.Context, productID string, images []catalog.ProductImage) error {
	prior, err := r.deps.Queries.ListItemsByProduct(ctx, r.jobID, productID)
	if err != nil {
		return fmt.Errorf("list product items: %w", err)
	}
	if len(prior) == 0 {
		return nil
	}

	live := make(map[string]bool, len(images))
	for _, img := range images {
		live[img.MediaID] = true
	}

	for _, it := range prior {
		if live[it.OriginalMediaID] {
			continue
		}
		switch it.Status {
		case db.ItemStatusProcessing, db.ItemStatusFailed:
			if err := r.deps.Queries.MarkItemSkipped(ctx, it.ID, "original media no longer attached"); err != nil {
				return fmt.Errorf("mark item skipped: %w", err)
			}
		}
	}
	return nil
}

// processImage fetches, composites, archives and uploads one image. The
// JobItem row is written before the pipeline runs, so every discovered
// image has a ledger entry whatever happens to it afterwards, and before
// any live media is touched, so a crash here is detectable and resumable.
func (r *applyRun) processImage(ctx context.Context, product catalog.Product, si *stagedImage, target catalog.StagedTarget) error {
	if !si.itemID.Valid {
		item, err := r.deps.Queries.CreateJobItem(ctx, db.CreateJobItemParams{
			JobID:              r.jobID,
			ProductID:          product.ID,
			ProductTitle:       product.Title,
			OriginalMediaID:    si.source.MediaID,
			OriginalPosition:   int32(si.source.Position),
			OriginalIsFeatured: si.source.Position == 0,
			VariantIDs:         si.source.VariantIDs,
		})
		if err != nil {
			return fmt.Errorf("create item record: %w", err)
		}
		si.itemID = item.ID
	}

	out, err := r.deps.Pipeline.Process(ctx, si.source.URL, r.settings, r.logo)
	if err != nil {
		return fmt.Errorf("process image: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	metrics.ImageBytesFetched.Observe(float64(len(out.SourceBytes)))

	archiveRef, err := r.archiveOriginal(ctx, si, out.SourceHash, out.SourceBytes, out.ContentType, out.Meta.Format)
	if err != nil {
		return fmt.Errorf("archive original: %w", err)
	}

	if err := r.deps.Queries.SetItemArchive(ctx, si.itemID, archiveRef, out.SourceHash); err != nil {
		return fmt.Errorf("record archive reference: %w", err)
	}

	if err := r.api.UploadToTarget(ctx, target, si.filename, out.Body); err != nil {
		return fmt.Errorf("staged upload: %w", err)
	}
	si.resource = target.ResourceURL
	return nil
}

// archiveOriginal stores the source bytes unless a usable archive already
// exists: a prior completed record for the same shop and media, or an
// identical image already archived within this job.
func (r *applyRun) archiveOriginal(ctx context.Context, si *stagedImage, hash string, data []byte, contentType, format string) (string, error) {
	log := logger.FromContext(ctx)

	prior, err := r.deps.Queries.FindArchivedOriginal(ctx, r.shop, si.source.MediaID)
	if err == nil {
		log.Debug("reusing prior archive", "media_id", si.source.MediaID, "archive", prior.OriginalMediaURL)
		return prior.OriginalMediaURL, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("archive lookup: %w", err)
	}

	dup, err := r.deps.Queries.FindItemByImageHash(ctx, r.jobID, hash)
	if err == nil && dup.OriginalMediaURL != "" {
		log.Debug("reusing duplicate-content archive", "hash", hash, "archive", dup.OriginalMediaURL)
		return dup.OriginalMediaURL, nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("hash lookup: %w", err)
	}

	key := storage.ArchiveKey(r.shop, si.source.MediaID, watermark.Extension(format))
	if err := r.deps.Storage.Upload(ctx, key, bytes.NewReader(data), contentType, int64(len(data))); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return key, nil
}

// attachAndSwap registers the uploaded resources as product media, points
// variants at the replacements, detaches the originals and restores the
// original gallery order.
func (r *applyRun) attachAndSwap(ctx context.Context, product catalog.Product, succeeded []*stagedImage) error {
	log := logger.FromContext(ctx)

	newMedia := make([]catalog.NewMedia, len(succeeded))
	for i, si := range succeeded {
		newMedia[i] = catalog.NewMedia{ResourceURL: si.resource, Alt: si.source.Alt}
	}
	created, err := r.api.CreateProductMedia(ctx, product.ID, newMedia)
	if err != nil {
		return fmt.Errorf("create media: %w", err)
	}

	detach := make([]string, 0, len(succeeded))
	moves := make([]catalog.MediaMove, 0, len(succeeded))
	for i, si := range succeeded {
		media := created[i]

		if err := r.api.AssignVariantMedia(ctx, product.ID, si.source.VariantIDs, media.ID); err != nil {
			log.Error("variant reassignment failed", "media_id", media.ID, "error", err)
			// The replacement is already on the gallery; detach it so a
			// re-run cannot stack a second copy next to the original.
			if delErr := r.api.DeleteProductMedia(ctx, product.ID, []string{media.ID}); delErr != nil {
				log.Error("replacement cleanup failed", "media_id", media.ID, "error", delErr)
			}
			if dbErr := r.deps.Queries.MarkItemFailed(ctx, db.MarkItemFailedParams{ID: si.itemID, ErrorMessage: err.Error()}); dbErr != nil {
				log.Error("mark item failed errored", "error", dbErr)
			}
			si.failed = true
			continue
		}

		detach = append(detach, si.source.MediaID)
		moves = append(moves, catalog.MediaMove{MediaID: media.ID, Position: si.source.Position})

		if err := r.deps.Queries.MarkItemCompleted(ctx, db.MarkItemCompletedParams{
			ID:          si.itemID,
			NewMediaID:  media.ID,
			NewMediaURL: media.URL,
		}); err != nil {
			return fmt.Errorf("mark item completed: %w", err)
		}
	}

	if len(detach) > 0 {
		if err := r.api.DeleteProductMedia(ctx, product.ID, detach); err != nil {
			return fmt.Errorf("detach originals: %w", err)
		}
	}
	if err := r.api.ReorderProductMedia(ctx, product.ID, moves); err != nil {
		return fmt.Errorf("reorder media: %w", err)
	}
	return nil
}

func countFailed(images []*stagedImage) int {
	n := 0
	for _, si := range images {
		if si.failed {
			n++
		}
	}
	return n
}

func guessMimeType(imageURL string) string {
	trimmed := imageURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	switch {
	case strings.HasSuffix(trimmed, ".png"):
		return "image/png"
	case strings.HasSuffix(trimmed, ".gif"):
		return "image/gif"
	case strings.HasSuffix(trimmed, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func uploadFilename(mediaID, mimeType string) string {
	ext := "jpg"
	switch mimeType {
	case "image/png":
		ext = "png"
	case "image/gif":
		ext = "gif"
	case "image/webp":
		ext = "webp"
	}
	sanitized := strings.NewReplacer("/", "_", ":", "_").Replace(mediaID)
	return fmt.Sprintf("%s-stamped.%s", sanitized, ext)
}
