package imagefetch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConfig() Config {
	return Config{
		MaxBytes: 1 << 20,
		MinDim:   32,
		MaxDim:   4000,
		Timeout:  5 * time.Second,
	}
}

func TestProbeWithRangeSupport(t *testing.T) {
	data := encodePNG(t, 200, 150)
	var sawRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")

		// Honor the range like a CDN would.
		end := len(data) - 1
		if spec, ok := strings.CutPrefix(sawRange, "bytes=0-"); ok {
			if n, err := strconv.Atoi(spec); err == nil && n < end {
				end = n
			}
		}
		w.Header().Set("Content-Range", "bytes 0-"+strconv.Itoa(end)+"/"+strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[:end+1])
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	meta, err := f.Probe(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "bytes=0-65535", sawRange)
	assert.Equal(t, Meta{Width: 200, Height: 150, Format: "png"}, meta)
}

func TestProbeFallsBackWhenRangeIgnored(t *testing.T) {
	data := encodePNG(t, 120, 80)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Plain 200 with the whole body, no range handling.
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	meta, err := f.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, Meta{Width: 120, Height: 80, Format: "png"}, meta)
}

func TestProbeRejectsDimensions(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{name: "too small", width: 8, height: 8},
		{name: "too wide", width: 4100, height: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodePNG(t, tt.width, tt.height)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(data)
			}))
			defer srv.Close()

			f := NewFetcher(testConfig())
			_, err := f.Probe(context.Background(), srv.URL)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.ErrImageDimensions))
			assert.False(t, apperror.Retryable(err), "bad dimensions are permanent")
		})
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image at all"))
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.Probe(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrCorruptedImage))
}

func TestFetchRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, 2<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(big)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrImageTooLarge))
}

func TestFetchRejectsOversizedContentLengthEarly(t *testing.T) {
	var bodyRequested bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyRequested = true
		w.Header().Set("Content-Length", strconv.Itoa(4<<20))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrImageTooLarge))
	_ = bodyRequested
}

func TestFetchReturnsFullPayload(t *testing.T) {
	data := encodePNG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}
