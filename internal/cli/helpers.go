package cli

import (
	"fmt"

	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func jobUUID(job db.WatermarkJob) uuid.UUID {
	return uuid.UUID(job.ID.Bytes)
}

func parseJobID(arg string) (pgtype.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return pgtype.UUID{}, uuid.UUID{}, fmt.Errorf("invalid job id %q: %w", arg, err)
	}
	return pgtype.UUID{Bytes: id, Valid: true}, id, nil
}

func formatTime(ts pgtype.Timestamptz) string {
	if !ts.Valid {
		return "-"
	}
	return ts.Time.Format("2006-01-02 15:04:05")
}

func shortID(id pgtype.UUID) string {
	return uuid.UUID(id.Bytes).String()[:8]
}
