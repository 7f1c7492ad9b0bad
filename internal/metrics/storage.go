package metrics

import (
	"context"
	"io"
	"time"

	"github.com/brandstamp/brandstamp/internal/storage"
)

// InstrumentedStorage wraps the archive store and records operation
// counts, latencies and bytes moved.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()

	err := s.Storage.Upload(ctx, key, reader, contentType, size)

	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveOperationsTotal.WithLabelValues("upload", status).Inc()
	ArchiveOperationDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	if err == nil {
		ArchiveBytesTotal.WithLabelValues("upload").Add(float64(size))
	}

	return err
}

func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()

	reader, err := s.Storage.Download(ctx, key)

	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveOperationsTotal.WithLabelValues("download", status).Inc()
	ArchiveOperationDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return &instrumentedReadCloser{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := s.Storage.Delete(ctx, key)

	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveOperationsTotal.WithLabelValues("delete", status).Inc()
	ArchiveOperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())

	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	exists, err := s.Storage.Exists(ctx, key)

	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveOperationsTotal.WithLabelValues("exists", status).Inc()
	ArchiveOperationDuration.WithLabelValues("exists").Observe(time.Since(start).Seconds())

	return exists, err
}

type instrumentedReadCloser struct {
	io.ReadCloser
	bytesRead int64
}

func (r *instrumentedReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

func (r *instrumentedReadCloser) Close() error {
	ArchiveBytesTotal.WithLabelValues("download").Add(float64(r.bytesRead))
	return r.ReadCloser.Close()
}
