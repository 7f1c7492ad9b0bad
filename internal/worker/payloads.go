package worker

import (
	"github.com/brandstamp/brandstamp/internal/tracing"
	"github.com/google/uuid"
)

const (
	JobTypeApply    = "watermark_apply"
	JobTypeRollback = "watermark_rollback"
)

// ApplyPayload references persisted state only. Settings and scope are
// read from the job row at execution time so submission and execution
// cannot drift.
type ApplyPayload struct {
	JobID uuid.UUID            `json:"job_id"`
	Shop  string               `json:"shop"`
	Trace tracing.TraceCarrier `json:"trace,omitempty"`
}

type RollbackPayload struct {
	JobID uuid.UUID            `json:"job_id"`
	Shop  string               `json:"shop"`
	Trace tracing.TraceCarrier `json:"trace,omitempty"`
}

func NewApplyPayload(jobID uuid.UUID, shop string) ApplyPayload {
	return ApplyPayload{JobID: jobID, Shop: shop}
}

func NewRollbackPayload(jobID uuid.UUID, shop string) RollbackPayload {
	return RollbackPayload{JobID: jobID, Shop: shop}
}
