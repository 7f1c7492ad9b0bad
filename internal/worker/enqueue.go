package worker

import (
	"context"
	"fmt"

	"github.com/brandstamp/brandstamp/internal/metrics"
	"github.com/brandstamp/brandstamp/internal/tracing"
	"github.com/google/uuid"
)

type Broker interface {
	Enqueue(jobType string, payload interface{}) (string, error)
}

func EnqueueApply(ctx context.Context, broker Broker, jobID uuid.UUID, shop string) (string, error) {
	ctx, span := tracing.StartJobEnqueueSpan(ctx, JobTypeApply)
	defer span.End()

	payload := NewApplyPayload(jobID, shop)
	payload.Trace = tracing.InjectTraceContext(ctx)

	queueID, err := broker.Enqueue(JobTypeApply, payload)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("enqueue apply job: %w", err)
	}

	metrics.RecordJobEnqueued(JobTypeApply)
	return queueID, nil
}

func EnqueueRollback(ctx context.Context, broker Broker, jobID uuid.UUID, shop string) (string, error) {
	ctx, span := tracing.StartJobEnqueueSpan(ctx, JobTypeRollback)
	defer span.End()

	payload := NewRollbackPayload(jobID, shop)
	payload.Trace = tracing.InjectTraceContext(ctx)

	queueID, err := broker.Enqueue(JobTypeRollback, payload)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("enqueue rollback job: %w", err)
	}

	metrics.RecordJobEnqueued(JobTypeRollback)
	return queueID, nil
}
