// Package worker holds the queue handlers driving bulk watermark jobs:
// the apply orchestrator and the rollback reconciler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/imagefetch"
	"github.com/brandstamp/brandstamp/internal/storage"
	"github.com/brandstamp/brandstamp/internal/watermark"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the slice of db.Queries the handlers touch. Tests swap in
// MockQuerier.
type Querier interface {
	GetJob(ctx context.Context, id pgtype.UUID) (db.WatermarkJob, error)
	GetJobStatus(ctx context.Context, id pgtype.UUID) (db.JobStatus, error)
	MarkJobProcessing(ctx context.Context, id pgtype.UUID) error
	SetJobTotal(ctx context.Context, id pgtype.UUID, total int32) error
	IncrementProcessed(ctx context.Context, id pgtype.UUID) error
	IncrementFailed(ctx context.Context, id pgtype.UUID) error
	MarkJobCompleted(ctx context.Context, id pgtype.UUID) error
	MarkJobFailed(ctx context.Context, arg db.MarkJobFailedParams) error
	MarkJobRolledBack(ctx context.Context, id pgtype.UUID) error

	CreateJobItem(ctx context.Context, arg db.CreateJobItemParams) (db.JobItem, error)
	MarkItemCompleted(ctx context.Context, arg db.MarkItemCompletedParams) error
	MarkItemFailed(ctx context.Context, arg db.MarkItemFailedParams) error
	MarkItemSkipped(ctx context.Context, id pgtype.UUID, reason string) error
	MarkItemRolledBack(ctx context.Context, id pgtype.UUID) error
	SetItemArchive(ctx context.Context, id pgtype.UUID, archiveURL, imageHash string) error
	ListCompletedItemsByJob(ctx context.Context, jobID pgtype.UUID) ([]db.JobItem, error)
	ListItemsByProduct(ctx context.Context, jobID pgtype.UUID, productID string) ([]db.JobItem, error)
	GetItemByMedia(ctx context.Context, jobID pgtype.UUID, originalMediaID string) (db.JobItem, error)
	FindArchivedOriginal(ctx context.Context, shop, originalMediaID string) (db.JobItem, error)
	FindItemByImageHash(ctx context.Context, jobID pgtype.UUID, hash string) (db.JobItem, error)

	CreateRollbackRun(ctx context.Context, jobID pgtype.UUID, shop string) (db.RollbackRun, error)
	GetLatestRollbackRun(ctx context.Context, jobID pgtype.UUID) (db.RollbackRun, error)
	MarkRollbackProcessing(ctx context.Context, id pgtype.UUID, itemsToRollback int32) error
	IncrementRolledBack(ctx context.Context, id pgtype.UUID) error
	CompleteRollbackRun(ctx context.Context, id pgtype.UUID, status db.RollbackStatus) error

	GetAccessToken(ctx context.Context, shop string) (string, error)
	GetShopSettings(ctx context.Context, shop string) ([]byte, error)
}

// TokenSource resolves a shop's platform access token.
type TokenSource interface {
	Get(ctx context.Context, shop string) (string, error)
}

type Dependencies struct {
	Queries Querier
	Storage storage.Storage
	Tokens  TokenSource

	// CatalogFactory builds a per-shop API client bound to that shop's
	// credential.
	CatalogFactory func(shop, token string) catalog.API

	Pipeline   *imagefetch.Pipeline
	Compositor *watermark.Compositor

	// ProductConcurrency bounds in-flight products per job. Kept low so
	// the shared platform rate budget is respected.
	ProductConcurrency int
	ScopeMaxProduct    int
	VerifyAttempts     int
	VerifyInterval     time.Duration
	PresignExpirySecs  int
}

func uuidToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}

// decodeScopeValue turns the persisted scope_value into the resolver's
// list form. Manual scopes persist a JSON array, collection scopes the
// collection ID, whole-catalog scopes nothing.
func decodeScopeValue(scopeType db.ScopeType, raw string) ([]string, error) {
	switch scopeType {
	case db.ScopeManual:
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("decode manual scope: %w", err)
		}
		return ids, nil
	case db.ScopeCollection:
		return []string{raw}, nil
	case db.ScopeAll:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown scope type %q", scopeType)
	}
}

// EncodeManualScope is the inverse of decodeScopeValue for submitters.
func EncodeManualScope(ids []string) (string, error) {
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode manual scope: %w", err)
	}
	return string(data), nil
}

// loadLogo pulls the merchant's logo out of archive storage and decodes
// it once per job.
func loadLogo(ctx context.Context, store storage.Storage, key string) (image.Image, error) {
	reader, err := store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download logo %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	img, _, err := watermark.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode logo %s: %w", key, err)
	}
	return img, nil
}
