package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("db: not found")

type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const jobColumns = `id, shop, job_type, status, scope_type, scope_value, settings_snapshot,
	total_products, processed_products, failed_products, error_message,
	created_at, started_at, completed_at`

func scanJob(row pgx.Row) (WatermarkJob, error) {
	var j WatermarkJob
	err := row.Scan(
		&j.ID, &j.Shop, &j.JobType, &j.Status, &j.ScopeType, &j.ScopeValue, &j.SettingsSnapshot,
		&j.TotalProducts, &j.ProcessedProducts, &j.FailedProducts, &j.ErrorMessage,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return WatermarkJob{}, ErrNotFound
	}
	return j, err
}

type CreateJobParams struct {
	Shop             string
	JobType          JobType
	ScopeType        ScopeType
	ScopeValue       string
	SettingsSnapshot []byte
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (WatermarkJob, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO watermark_jobs (shop, job_type, scope_type, scope_value, settings_snapshot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+jobColumns,
		arg.Shop, arg.JobType, arg.ScopeType, arg.ScopeValue, arg.SettingsSnapshot,
	)
	return scanJob(row)
}

func (q *Queries) GetJob(ctx context.Context, id pgtype.UUID) (WatermarkJob, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM watermark_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (q *Queries) GetJobStatus(ctx context.Context, id pgtype.UUID) (JobStatus, error) {
	var status JobStatus
	err := q.pool.QueryRow(ctx, `SELECT status FROM watermark_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

func (q *Queries) ListJobsByShop(ctx context.Context, shop string, limit int32) ([]WatermarkJob, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM watermark_jobs
		WHERE shop = $1 ORDER BY created_at DESC LIMIT $2`, shop, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []WatermarkJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (q *Queries) MarkJobProcessing(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs
		SET status = 'processing', started_at = COALESCE(started_at, now())
		WHERE id = $1`, id)
	return err
}

func (q *Queries) SetJobTotal(ctx context.Context, id pgtype.UUID, total int32) error {
	_, err := q.pool.Exec(ctx, `UPDATE watermark_jobs SET total_products = $2 WHERE id = $1`, id, total)
	return err
}

// IncrementProcessed bumps the durable progress counter. Counters live in
// the row, not in memory, so a worker restart resumes with correct totals.
func (q *Queries) IncrementProcessed(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET processed_products = processed_products + 1 WHERE id = $1`, id)
	return err
}

func (q *Queries) IncrementFailed(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET failed_products = failed_products + 1 WHERE id = $1`, id)
	return err
}

func (q *Queries) MarkJobCompleted(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET status = 'completed', completed_at = now() WHERE id = $1`, id)
	return err
}

type MarkJobFailedParams struct {
	ID           pgtype.UUID
	ErrorMessage string
}

func (q *Queries) MarkJobFailed(ctx context.Context, arg MarkJobFailedParams) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET status = 'failed', error_message = $2, completed_at = now()
		WHERE id = $1`, arg.ID, arg.ErrorMessage)
	return err
}

// MarkJobCancelled flips pending/processing jobs only; terminal states win.
func (q *Queries) MarkJobCancelled(ctx context.Context, id pgtype.UUID) (bool, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET status = 'cancelled', completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) MarkJobRolledBack(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_jobs SET status = 'rolled_back', completed_at = now() WHERE id = $1`, id)
	return err
}

const itemColumns = `id, job_id, product_id, product_title, original_media_id, original_media_url,
	original_position, original_is_featured, new_media_id, new_media_url,
	image_hash, variant_ids, status, error_message, created_at, updated_at`

func scanItem(row pgx.Row) (JobItem, error) {
	var it JobItem
	err := row.Scan(
		&it.ID, &it.JobID, &it.ProductID, &it.ProductTitle, &it.OriginalMediaID, &it.OriginalMediaURL,
		&it.OriginalPosition, &it.OriginalIsFeatured, &it.NewMediaID, &it.NewMediaURL,
		&it.ImageHash, &it.VariantIDs, &it.Status, &it.ErrorMessage, &it.CreatedAt, &it.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobItem{}, ErrNotFound
	}
	return it, err
}

type CreateJobItemParams struct {
	JobID              pgtype.UUID
	ProductID          string
	ProductTitle       string
	OriginalMediaID    string
	OriginalMediaURL   string
	OriginalPosition   int32
	OriginalIsFeatured bool
	ImageHash          string
	VariantIDs         []string
}

func (q *Queries) CreateJobItem(ctx context.Context, arg CreateJobItemParams) (JobItem, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO watermark_job_items
			(job_id, product_id, product_title, original_media_id, original_media_url,
			 original_position, original_is_featured, image_hash, variant_ids, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'processing')
		RETURNING `+itemColumns,
		arg.JobID, arg.ProductID, arg.ProductTitle, arg.OriginalMediaID, arg.OriginalMediaURL,
		arg.OriginalPosition, arg.OriginalIsFeatured, arg.ImageHash, arg.VariantIDs,
	)
	return scanItem(row)
}

type MarkItemCompletedParams struct {
	ID          pgtype.UUID
	NewMediaID  string
	NewMediaURL string
}

func (q *Queries) MarkItemCompleted(ctx context.Context, arg MarkItemCompletedParams) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_job_items
		SET status = 'completed', new_media_id = $2, new_media_url = $3, updated_at = now()
		WHERE id = $1`, arg.ID, arg.NewMediaID, arg.NewMediaURL)
	return err
}

type MarkItemFailedParams struct {
	ID           pgtype.UUID
	ErrorMessage string
}

func (q *Queries) MarkItemFailed(ctx context.Context, arg MarkItemFailedParams) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_job_items
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, arg.ID, arg.ErrorMessage)
	return err
}

func (q *Queries) MarkItemSkipped(ctx context.Context, id pgtype.UUID, reason string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_job_items
		SET status = 'skipped', error_message = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	return err
}

func (q *Queries) MarkItemRolledBack(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_job_items
		SET status = 'rolled_back', updated_at = now()
		WHERE id = $1`, id)
	return err
}

// SetItemArchive records the archived reference and content hash before
// the original is touched on the platform. This is the recorded intent
// that makes a crash mid-swap recoverable.
func (q *Queries) SetItemArchive(ctx context.Context, id pgtype.UUID, archiveURL, imageHash string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE watermark_job_items
		SET original_media_url = $2, image_hash = $3, updated_at = now()
		WHERE id = $1`, id, archiveURL, imageHash)
	return err
}

func (q *Queries) ListItemsByJob(ctx context.Context, jobID pgtype.UUID) ([]JobItem, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM watermark_job_items
		WHERE job_id = $1
		ORDER BY product_id, original_position`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (q *Queries) ListItemsByProduct(ctx context.Context, jobID pgtype.UUID, productID string) ([]JobItem, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM watermark_job_items
		WHERE job_id = $1 AND product_id = $2
		ORDER BY original_position`, jobID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (q *Queries) ListCompletedItemsByJob(ctx context.Context, jobID pgtype.UUID) ([]JobItem, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM watermark_job_items
		WHERE job_id = $1 AND status = 'completed'
		ORDER BY product_id, original_position`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]JobItem, error) {
	var items []JobItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItemByMedia reports whether this job already has an item for a media,
// which is how a resumed job skips work it finished before the crash.
func (q *Queries) GetItemByMedia(ctx context.Context, jobID pgtype.UUID, originalMediaID string) (JobItem, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM watermark_job_items
		WHERE job_id = $1 AND original_media_id = $2`, jobID, originalMediaID)
	return scanItem(row)
}

// FindArchivedOriginal looks for a prior completed, file-backed record of
// the same media for the same shop, so repeated runs reuse one archive
// instead of growing storage without bound.
func (q *Queries) FindArchivedOriginal(ctx context.Context, shop, originalMediaID string) (JobItem, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT `+prefixed(itemColumns, "i.")+`
		FROM watermark_job_items i
		JOIN watermark_jobs j ON j.id = i.job_id
		WHERE j.shop = $1
		  AND i.original_media_id = $2
		  AND i.status IN ('completed', 'rolled_back')
		  AND i.original_media_url <> ''
		ORDER BY i.created_at DESC
		LIMIT 1`, shop, originalMediaID)
	return scanItem(row)
}

func (q *Queries) FindItemByImageHash(ctx context.Context, jobID pgtype.UUID, hash string) (JobItem, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM watermark_job_items
		WHERE job_id = $1 AND image_hash = $2 AND image_hash <> ''
		ORDER BY created_at
		LIMIT 1`, jobID, hash)
	return scanItem(row)
}

// prefixed qualifies a column list with a table alias for joins.
func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

const rollbackColumns = `id, job_id, shop, status, items_to_rollback, items_rolled_back,
	created_at, started_at, completed_at`

func scanRollbackRun(row pgx.Row) (RollbackRun, error) {
	var r RollbackRun
	err := row.Scan(
		&r.ID, &r.JobID, &r.Shop, &r.Status, &r.ItemsToRollback, &r.ItemsRolledBack,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RollbackRun{}, ErrNotFound
	}
	return r, err
}

func (q *Queries) CreateRollbackRun(ctx context.Context, jobID pgtype.UUID, shop string) (RollbackRun, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO rollback_runs (job_id, shop)
		VALUES ($1, $2)
		RETURNING `+rollbackColumns, jobID, shop)
	return scanRollbackRun(row)
}

func (q *Queries) GetLatestRollbackRun(ctx context.Context, jobID pgtype.UUID) (RollbackRun, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT `+rollbackColumns+` FROM rollback_runs
		WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`, jobID)
	return scanRollbackRun(row)
}

func (q *Queries) MarkRollbackProcessing(ctx context.Context, id pgtype.UUID, itemsToRollback int32) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE rollback_runs
		SET status = 'processing', items_to_rollback = $2, started_at = COALESCE(started_at, now())
		WHERE id = $1`, id, itemsToRollback)
	return err
}

func (q *Queries) IncrementRolledBack(ctx context.Context, id pgtype.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE rollback_runs SET items_rolled_back = items_rolled_back + 1 WHERE id = $1`, id)
	return err
}

func (q *Queries) CompleteRollbackRun(ctx context.Context, id pgtype.UUID, status RollbackStatus) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE rollback_runs SET status = $2, completed_at = now() WHERE id = $1`, id, status)
	return err
}

func (q *Queries) GetAccessToken(ctx context.Context, shop string) (string, error) {
	var token string
	err := q.pool.QueryRow(ctx, `SELECT access_token FROM shops WHERE domain = $1`, shop).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: shop %s", ErrNotFound, shop)
	}
	return token, err
}

func (q *Queries) GetShopSettings(ctx context.Context, shop string) ([]byte, error) {
	var data []byte
	err := q.pool.QueryRow(ctx, `SELECT settings FROM shop_settings WHERE shop = $1`, shop).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: settings for shop %s", ErrNotFound, shop)
	}
	return data, err
}

func (q *Queries) UpsertShop(ctx context.Context, domain, accessToken string) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO shops (domain, access_token) VALUES ($1, $2)
		ON CONFLICT (domain) DO UPDATE SET access_token = EXCLUDED.access_token`, domain, accessToken)
	return err
}

func (q *Queries) UpsertShopSettings(ctx context.Context, shop string, data []byte) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO shop_settings (shop, settings) VALUES ($1, $2)
		ON CONFLICT (shop) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()`, shop, data)
	return err
}
