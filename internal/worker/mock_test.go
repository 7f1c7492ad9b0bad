package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func uuidPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func nowPg() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now(), Valid: true}
}

type MockQuerier struct {
	mu sync.RWMutex

	jobs     map[pgtype.UUID]db.WatermarkJob
	items    map[pgtype.UUID]db.JobItem
	runs     map[pgtype.UUID]db.RollbackRun
	tokens   map[string]string
	settings map[string][]byte

	GetJobErr        error
	CreateJobItemErr error
	GetTokenErr      error
}

func NewMockQuerier() *MockQuerier {
	return &MockQuerier{
		jobs:     make(map[pgtype.UUID]db.WatermarkJob),
		items:    make(map[pgtype.UUID]db.JobItem),
		runs:     make(map[pgtype.UUID]db.RollbackRun),
		tokens:   make(map[string]string),
		settings: make(map[string][]byte),
	}
}

var _ Querier = (*MockQuerier)(nil)

func (m *MockQuerier) AddJob(j db.WatermarkJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

func (m *MockQuerier) AddItem(it db.JobItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

func (m *MockQuerier) SetToken(shop, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[shop] = token
}

func (m *MockQuerier) Job(id pgtype.UUID) db.WatermarkJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

func (m *MockQuerier) Items() []db.JobItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]db.JobItem, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	return items
}

func (m *MockQuerier) Run(id pgtype.UUID) db.RollbackRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

func (m *MockQuerier) GetJob(ctx context.Context, id pgtype.UUID) (db.WatermarkJob, error) {
	if m.GetJobErr != nil {
		return db.WatermarkJob{}, m.GetJobErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return db.WatermarkJob{}, db.ErrNotFound
	}
	return j, nil
}

func (m *MockQuerier) GetJobStatus(ctx context.Context, id pgtype.UUID) (db.JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return "", db.ErrNotFound
	}
	return j.Status, nil
}

func (m *MockQuerier) setJobStatus(id pgtype.UUID, status db.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return db.ErrNotFound
	}
	j.Status = status
	m.jobs[id] = j
	return nil
}

func (m *MockQuerier) MarkJobProcessing(ctx context.Context, id pgtype.UUID) error {
	return m.setJobStatus(id, db.JobStatusProcessing)
}

func (m *MockQuerier) SetJobTotal(ctx context.Context, id pgtype.UUID, total int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.TotalProducts = total
	m.jobs[id] = j
	return nil
}

func (m *MockQuerier) IncrementProcessed(ctx context.Context, id pgtype.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.ProcessedProducts++
	m.jobs[id] = j
	return nil
}

func (m *MockQuerier) IncrementFailed(ctx context.Context, id pgtype.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.FailedProducts++
	m.jobs[id] = j
	return nil
}

func (m *MockQuerier) MarkJobCompleted(ctx context.Context, id pgtype.UUID) error {
	return m.setJobStatus(id, db.JobStatusCompleted)
}

func (m *MockQuerier) MarkJobFailed(ctx context.Context, arg db.MarkJobFailedParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[arg.ID]
	j.Status = db.JobStatusFailed
	j.ErrorMessage = arg.ErrorMessage
	m.jobs[arg.ID] = j
	return nil
}

func (m *MockQuerier) MarkJobRolledBack(ctx context.Context, id pgtype.UUID) error {
	return m.setJobStatus(id, db.JobStatusRolledBack)
}

func (m *MockQuerier) CreateJobItem(ctx context.Context, arg db.CreateJobItemParams) (db.JobItem, error) {
	if m.CreateJobItemErr != nil {
		return db.JobItem{}, m.CreateJobItemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item := db.JobItem{
		ID:                 uuidPg(uuid.New()),
		JobID:              arg.JobID,
		ProductID:          arg.ProductID,
		ProductTitle:       arg.ProductTitle,
		OriginalMediaID:    arg.OriginalMediaID,
		OriginalMediaURL:   arg.OriginalMediaURL,
		OriginalPosition:   arg.OriginalPosition,
		OriginalIsFeatured: arg.OriginalIsFeatured,
		ImageHash:          arg.ImageHash,
		VariantIDs:         arg.VariantIDs,
		Status:             db.ItemStatusProcessing,
		CreatedAt:          nowPg(),
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *MockQuerier) MarkItemCompleted(ctx context.Context, arg db.MarkItemCompletedParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[arg.ID]
	if !ok {
		return db.ErrNotFound
	}
	it.Status = db.ItemStatusCompleted
	it.NewMediaID = arg.NewMediaID
	it.NewMediaURL = arg.NewMediaURL
	m.items[arg.ID] = it
	return nil
}

func (m *MockQuerier) MarkItemFailed(ctx context.Context, arg db.MarkItemFailedParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[arg.ID]
	if !ok {
		return db.ErrNotFound
	}
	it.Status = db.ItemStatusFailed
	it.ErrorMessage = arg.ErrorMessage
	m.items[arg.ID] = it
	return nil
}

func (m *MockQuerier) MarkItemSkipped(ctx context.Context, id pgtype.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	it.Status = db.ItemStatusSkipped
	it.ErrorMessage = reason
	m.items[id] = it
	return nil
}

func (m *MockQuerier) MarkItemRolledBack(ctx context.Context, id pgtype.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	it.Status = db.ItemStatusRolledBack
	m.items[id] = it
	return nil
}

func (m *MockQuerier) SetItemArchive(ctx context.Context, id pgtype.UUID, archiveURL, imageHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	it.OriginalMediaURL = archiveURL
	it.ImageHash = imageHash
	m.items[id] = it
	return nil
}

func (m *MockQuerier) ListItemsByProduct(ctx context.Context, jobID pgtype.UUID, productID string) ([]db.JobItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []db.JobItem
	for _, it := range m.items {
		if it.JobID == jobID && it.ProductID == productID {
			items = append(items, it)
		}
	}
	return items, nil
}

func (m *MockQuerier) ListCompletedItemsByJob(ctx context.Context, jobID pgtype.UUID) ([]db.JobItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []db.JobItem
	for _, it := range m.items {
		if it.JobID == jobID && it.Status == db.ItemStatusCompleted {
			items = append(items, it)
		}
	}
	return items, nil
}

func (m *MockQuerier) GetItemByMedia(ctx context.Context, jobID pgtype.UUID, originalMediaID string) (db.JobItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.JobID == jobID && it.OriginalMediaID == originalMediaID {
			return it, nil
		}
	}
	return db.JobItem{}, db.ErrNotFound
}

func (m *MockQuerier) FindArchivedOriginal(ctx context.Context, shop, originalMediaID string) (db.JobItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.OriginalMediaID != originalMediaID || it.OriginalMediaURL == "" {
			continue
		}
		if it.Status == db.ItemStatusCompleted || it.Status == db.ItemStatusRolledBack {
			if j, ok := m.jobs[it.JobID]; ok && j.Shop == shop {
				return it, nil
			}
		}
	}
	return db.JobItem{}, db.ErrNotFound
}

func (m *MockQuerier) FindItemByImageHash(ctx context.Context, jobID pgtype.UUID, hash string) (db.JobItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.JobID == jobID && it.ImageHash == hash && hash != "" {
			return it, nil
		}
	}
	return db.JobItem{}, db.ErrNotFound
}

func (m *MockQuerier) CreateRollbackRun(ctx context.Context, jobID pgtype.UUID, shop string) (db.RollbackRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := db.RollbackRun{
		ID:        uuidPg(uuid.New()),
		JobID:     jobID,
		Shop:      shop,
		Status:    db.RollbackStatusPending,
		CreatedAt: nowPg(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *MockQuerier) GetLatestRollbackRun(ctx context.Context, jobID pgtype.UUID) (db.RollbackRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest db.RollbackRun
	found := false
	for _, r := range m.runs {
		if r.JobID == jobID && (!found || r.CreatedAt.Time.After(latest.CreatedAt.Time)) {
			latest = r
			found = true
		}
	}
	if !found {
		return db.RollbackRun{}, db.ErrNotFound
	}
	return latest, nil
}

func (m *MockQuerier) MarkRollbackProcessing(ctx context.Context, id pgtype.UUID, itemsToRollback int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status = db.RollbackStatusProcessing
	r.ItemsToRollback = itemsToRollback
	m.runs[id] = r
	return nil
}

func (m *MockQuerier) IncrementRolledBack(ctx context.Context, id pgtype.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.ItemsRolledBack++
	m.runs[id] = r
	return nil
}

func (m *MockQuerier) CompleteRollbackRun(ctx context.Context, id pgtype.UUID, status db.RollbackStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status = status
	m.runs[id] = r
	return nil
}

func (m *MockQuerier) GetAccessToken(ctx context.Context, shop string) (string, error) {
	if m.GetTokenErr != nil {
		return "", m.GetTokenErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[shop]
	if !ok {
		return "", db.ErrNotFound
	}
	return token, nil
}

func (m *MockQuerier) GetShopSettings(ctx context.Context, shop string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.settings[shop]
	if !ok {
		return nil, db.ErrNotFound
	}
	return data, nil
}

// MockCatalog is an in-memory catalog.API. Products and their images are
// seeded by tests; mutations update the in-memory gallery so assertions
// can inspect the final state.
type MockCatalog struct {
	mu sync.Mutex

	products map[string]*catalog.Product
	uploads  map[string][]byte
	media    map[string]catalog.MediaStatus

	nextMediaID int

	// NeverReady lists media resource URLs whose created media stay
	// PROCESSING forever, for verification timeout tests.
	NeverReady map[string]bool

	GetProductErr    error
	CreateMediaErr   error
	DeleteMediaErr   error
	StagedUploadErr  error
	AssignVariantErr error

	DeletedMedia   []string
	ReorderedMoves []catalog.MediaMove
	VariantAssigns map[string][]string
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		products:       make(map[string]*catalog.Product),
		uploads:        make(map[string][]byte),
		media:          make(map[string]catalog.MediaStatus),
		NeverReady:     make(map[string]bool),
		VariantAssigns: make(map[string][]string),
	}
}

var _ catalog.API = (*MockCatalog)(nil)

func (m *MockCatalog) AddProduct(p catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

func (m *MockCatalog) Product(id string) catalog.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id]
}

func (m *MockCatalog) ListProductIDs(ctx context.Context, cursor string) (catalog.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := catalog.Page{}
	for id := range m.products {
		page.IDs = append(page.IDs, id)
	}
	return page, nil
}

func (m *MockCatalog) ListCollectionProductIDs(ctx context.Context, collectionID, cursor string) (catalog.Page, error) {
	return m.ListProductIDs(ctx, cursor)
}

func (m *MockCatalog) GetProduct(ctx context.Context, productID string) (catalog.Product, error) {
	if m.GetProductErr != nil {
		return catalog.Product{}, m.GetProductErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s not found", productID)
	}
	return *p, nil
}

func (m *MockCatalog) CreateStagedUploads(ctx context.Context, inputs []catalog.StagedUploadInput) ([]catalog.StagedTarget, error) {
	if m.StagedUploadErr != nil {
		return nil, m.StagedUploadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := make([]catalog.StagedTarget, len(inputs))
	for i, in := range inputs {
		targets[i] = catalog.StagedTarget{
			URL:         "https://staged.test/upload/" + in.Filename,
			ResourceURL: "https://staged.test/resource/" + in.Filename,
			Parameters:  []catalog.StagedParameter{{Name: "key", Value: in.Filename}},
		}
	}
	return targets, nil
}

func (m *MockCatalog) UploadToTarget(ctx context.Context, target catalog.StagedTarget, filename string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[target.ResourceURL] = data
	return nil
}

func (m *MockCatalog) UploadedBytes(resourceURL string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[resourceURL]
}

func (m *MockCatalog) CreateProductMedia(ctx context.Context, productID string, media []catalog.NewMedia) ([]catalog.Media, error) {
	if m.CreateMediaErr != nil {
		return nil, m.CreateMediaErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s not found", productID)
	}

	created := make([]catalog.Media, len(media))
	for i, nm := range media {
		m.nextMediaID++
		id := fmt.Sprintf("gid://media/%d", m.nextMediaID)
		status := catalog.MediaStatusReady
		if m.NeverReady[nm.ResourceURL] {
			status = catalog.MediaStatusProcessing
		}
		m.media[id] = status
		created[i] = catalog.Media{ID: id, URL: nm.ResourceURL, Status: catalog.MediaStatusProcessing}
		p.Images = append(p.Images, catalog.ProductImage{
			MediaID:  id,
			URL:      nm.ResourceURL,
			Position: len(p.Images),
			Alt:      nm.Alt,
		})
	}
	return created, nil
}

func (m *MockCatalog) DeleteProductMedia(ctx context.Context, productID string, mediaIDs []string) error {
	if m.DeleteMediaErr != nil {
		return m.DeleteMediaErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s not found", productID)
	}
	remove := make(map[string]bool, len(mediaIDs))
	for _, id := range mediaIDs {
		remove[id] = true
		m.DeletedMedia = append(m.DeletedMedia, id)
	}
	kept := p.Images[:0]
	for _, img := range p.Images {
		if !remove[img.MediaID] {
			kept = append(kept, img)
		}
	}
	p.Images = kept
	return nil
}

func (m *MockCatalog) ReorderProductMedia(ctx context.Context, productID string, moves []catalog.MediaMove) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReorderedMoves = append(m.ReorderedMoves, moves...)
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s not found", productID)
	}
	for _, mv := range moves {
		for i := range p.Images {
			if p.Images[i].MediaID == mv.MediaID {
				p.Images[i].Position = mv.Position
			}
		}
	}
	return nil
}

func (m *MockCatalog) AssignVariantMedia(ctx context.Context, productID string, variantIDs []string, mediaID string) error {
	if m.AssignVariantErr != nil {
		return m.AssignVariantErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VariantAssigns[mediaID] = append(m.VariantAssigns[mediaID], variantIDs...)
	return nil
}

func (m *MockCatalog) GetMediaStatus(ctx context.Context, mediaID string) (catalog.MediaStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.media[mediaID]
	if !ok {
		return "", fmt.Errorf("media %s not found", mediaID)
	}
	return status, nil
}
