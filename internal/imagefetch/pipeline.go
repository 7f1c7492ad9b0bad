package imagefetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/brandstamp/brandstamp/internal/watermark"
)

// Output is a processed image ready for upload. Body is a pull stream fed
// by the encoder goroutine, so a slow uploader naturally throttles
// encoding instead of accumulating buffers.
type Output struct {
	Meta        watermark.SourceMeta
	SourceHash  string
	SourceBytes []byte
	ContentType string
	Body        io.ReadCloser
}

type Pipeline struct {
	fetcher *Fetcher
	comp    *watermark.Compositor
}

func NewPipeline(fetcher *Fetcher, comp *watermark.Compositor) *Pipeline {
	return &Pipeline{fetcher: fetcher, comp: comp}
}

// Process downloads one source image, composites the configured watermark
// layers onto it and returns the re-encoded result as a stream. Peak memory
// is bounded by a single decoded image.
func (p *Pipeline) Process(ctx context.Context, imageURL string, s settings.Settings, logo image.Image) (*Output, error) {
	log := logger.FromContext(ctx)

	meta, err := p.fetcher.Probe(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	log.Debug("source probed", "url", imageURL, "width", meta.Width, "height", meta.Height, "format", meta.Format)

	data, err := p.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	src, format, err := watermark.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCorruptedImage)
	}

	// Full decode is authoritative; a probe over a truncated prefix can
	// disagree with the real bounds for some progressive encodings.
	b := src.Bounds()
	srcMeta := watermark.SourceMeta{Width: b.Dx(), Height: b.Dy(), Format: format}

	layers, err := p.comp.PrepareLayers(srcMeta, s, logo)
	if err != nil {
		return nil, fmt.Errorf("prepare layers: %w", err)
	}

	composited := p.comp.Composite(src, layers)

	pr, pw := io.Pipe()
	go func() {
		err := p.comp.Encode(ctx, pw, composited, format)
		_ = pw.CloseWithError(err)
	}()

	return &Output{
		Meta:        srcMeta,
		SourceHash:  hash,
		SourceBytes: data,
		ContentType: watermark.ContentType(format),
		Body:        pr,
	}, nil
}
