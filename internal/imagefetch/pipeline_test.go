package imagefetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/brandstamp/brandstamp/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineSettings() settings.Settings {
	s := settings.Default()
	s.Logo.Enabled = true
	s.Logo.StorageKey = "logos/shop/logo.png"
	return s
}

func pipelineLogo() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 48, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.NRGBA{R: 220, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func TestProcessEndToEnd(t *testing.T) {
	data := encodePNG(t, 400, 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := NewPipeline(NewFetcher(testConfig()), watermark.New())
	out, err := p.Process(context.Background(), srv.URL, pipelineSettings(), pipelineLogo())
	require.NoError(t, err)
	defer func() { _ = out.Body.Close() }()

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), out.SourceHash)
	assert.Equal(t, data, out.SourceBytes)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, watermark.SourceMeta{Width: 400, Height: 300, Format: "png"}, out.Meta)

	// The stream carries a decodable image of the source dimensions and format.
	encoded, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	img, format, err := watermark.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestProcessStreamIsLazy(t *testing.T) {
	data := encodePNG(t, 200, 150)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := NewPipeline(NewFetcher(testConfig()), watermark.New())
	out, err := p.Process(context.Background(), srv.URL, pipelineSettings(), pipelineLogo())
	require.NoError(t, err)

	// Closing without reading must not wedge the encoder goroutine.
	require.NoError(t, out.Body.Close())
}

func TestProcessCorruptedSource(t *testing.T) {
	data := encodePNG(t, 200, 150)
	// Valid header so the probe passes, truncated body so the full decode fails.
	truncated := data[:len(data)/2]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(truncated)
	}))
	defer srv.Close()

	p := NewPipeline(NewFetcher(testConfig()), watermark.New())
	_, err := p.Process(context.Background(), srv.URL, pipelineSettings(), pipelineLogo())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrCorruptedImage))
}

func TestProcessProbeFailureShortCircuits(t *testing.T) {
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	p := NewPipeline(NewFetcher(testConfig()), watermark.New())
	_, err := p.Process(context.Background(), srv.URL, pipelineSettings(), pipelineLogo())
	require.Error(t, err)
	assert.Equal(t, 1, fetches, "full download skipped after a failed probe")
}

func TestProcessNoLayersEnabled(t *testing.T) {
	data := encodePNG(t, 200, 150)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	var none settings.Settings
	p := NewPipeline(NewFetcher(testConfig()), watermark.New())
	_, err := p.Process(context.Background(), srv.URL, none, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare layers")
}
