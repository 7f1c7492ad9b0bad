// Package db holds the persisted job state. The Job/JobItem tables are the
// single source of truth for progress: every mutation that changes live
// product media is preceded by an item row, so a crash mid-operation is
// detectable and resumable.
package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type JobType string

const (
	JobTypeApply    JobType = "apply"
	JobTypeRollback JobType = "rollback"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusRolledBack JobStatus = "rolled_back"
)

type ScopeType string

const (
	ScopeAll        ScopeType = "all"
	ScopeCollection ScopeType = "collection"
	ScopeManual     ScopeType = "manual"
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusRolledBack ItemStatus = "rolled_back"
	ItemStatusSkipped    ItemStatus = "skipped"
)

type RollbackStatus string

const (
	RollbackStatusPending    RollbackStatus = "pending"
	RollbackStatusProcessing RollbackStatus = "processing"
	RollbackStatusCompleted  RollbackStatus = "completed"
	RollbackStatusFailed     RollbackStatus = "failed"
)

type WatermarkJob struct {
	ID                pgtype.UUID
	Shop              string
	JobType           JobType
	Status            JobStatus
	ScopeType         ScopeType
	ScopeValue        string
	SettingsSnapshot  []byte
	TotalProducts     int32
	ProcessedProducts int32
	FailedProducts    int32
	ErrorMessage      string
	CreatedAt         pgtype.Timestamptz
	StartedAt         pgtype.Timestamptz
	CompletedAt       pgtype.Timestamptz
}

type JobItem struct {
	ID                 pgtype.UUID
	JobID              pgtype.UUID
	ProductID          string
	ProductTitle       string
	OriginalMediaID    string
	OriginalMediaURL   string
	OriginalPosition   int32
	OriginalIsFeatured bool
	NewMediaID         string
	NewMediaURL        string
	ImageHash          string
	VariantIDs         []string
	Status             ItemStatus
	ErrorMessage       string
	CreatedAt          pgtype.Timestamptz
	UpdatedAt          pgtype.Timestamptz
}

type RollbackRun struct {
	ID              pgtype.UUID
	JobID           pgtype.UUID
	Shop            string
	Status          RollbackStatus
	ItemsToRollback int32
	ItemsRolledBack int32
	CreatedAt       pgtype.Timestamptz
	StartedAt       pgtype.Timestamptz
	CompletedAt     pgtype.Timestamptz
}

type Shop struct {
	Domain      string
	AccessToken string
	CreatedAt   pgtype.Timestamptz
}
