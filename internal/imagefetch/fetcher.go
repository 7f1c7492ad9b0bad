// Package imagefetch downloads source images with size and dimension
// guards and runs them through the watermark compositor, exposing the
// re-encoded result as a pull-based stream.
package imagefetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/logger"
)

// probeBytes is the leading byte range requested for metadata probing.
// Enough for the headers of every mainstream image container.
const probeBytes = 64 * 1024

type Config struct {
	MaxBytes int64
	MinDim   int
	MaxDim   int
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBytes: 25 * 1024 * 1024,
		MinDim:   32,
		MaxDim:   12000,
		Timeout:  60 * time.Second,
	}
}

type Meta struct {
	Width  int
	Height int
	Format string
}

type Fetcher struct {
	client *http.Client
	cfg    Config
}

func NewFetcher(cfg Config) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Probe fetches just enough leading bytes to decode dimensions and format.
// Servers that ignore Range requests answer 200 with the full body; the
// reader is limited either way so a probe never buffers a whole payload.
func (f *Fetcher) Probe(ctx context.Context, imageURL string) (Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", probeBytes-1))

	resp, err := f.client.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("probe %s: %w", imageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return Meta{}, fmt.Errorf("probe %s: unexpected status %d", imageURL, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusOK {
		logger.FromContext(ctx).Debug("range request unsupported, probing from full response", "url", imageURL)
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, probeBytes))
	if err != nil {
		return Meta{}, fmt.Errorf("read probe bytes: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil {
		return Meta{}, apperror.Wrap(err, apperror.ErrCorruptedImage)
	}

	meta := Meta{Width: cfg.Width, Height: cfg.Height, Format: format}
	if err := f.checkDimensions(meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// Fetch downloads the full source, rejecting oversized payloads before and
// during the read.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", imageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", imageURL, resp.StatusCode)
	}

	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, apperror.Wrap(
			fmt.Errorf("content length %d exceeds limit %d", resp.ContentLength, f.cfg.MaxBytes),
			apperror.ErrImageTooLarge,
		)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", imageURL, err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, apperror.Wrap(
			fmt.Errorf("payload exceeds limit %d", f.cfg.MaxBytes),
			apperror.ErrImageTooLarge,
		)
	}

	return data, nil
}

func (f *Fetcher) checkDimensions(meta Meta) error {
	if meta.Width < f.cfg.MinDim || meta.Height < f.cfg.MinDim {
		return apperror.Wrap(
			fmt.Errorf("%dx%d below minimum %d", meta.Width, meta.Height, f.cfg.MinDim),
			apperror.ErrImageDimensions,
		)
	}
	if meta.Width > f.cfg.MaxDim || meta.Height > f.cfg.MaxDim {
		return apperror.Wrap(
			fmt.Errorf("%dx%d above maximum %d", meta.Width, meta.Height, f.cfg.MaxDim),
			apperror.ErrImageDimensions,
		)
	}
	return nil
}
