package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"

	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for re-encoding JPEG sources. Slightly above the
// usual 85 because watermarked images are the merchant's storefront media.
const JPEGQuality = 90

// ErrWebPEncoderUnavailable is returned when a WebP source must be
// re-encoded but no cwebp binary is installed. The format is never silently
// switched; the item fails instead.
var ErrWebPEncoderUnavailable = errors.New("watermark: cwebp binary not available")

// Decode reads a source image. WebP decoding is handled by the x/image
// registration above.
func Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}

// ContentType maps a decode format name to its MIME type.
func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extension maps a decode format name to a file extension.
func Extension(format string) string {
	switch format {
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		return "jpg"
	}
}

// Encode writes img in the same format family as the source. JPEG stays
// JPEG, PNG stays PNG, WebP stays WebP (via cwebp).
func (c *Compositor) Encode(ctx context.Context, w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case "gif":
		if err := gif.Encode(w, img, nil); err != nil {
			return fmt.Errorf("encode gif: %w", err)
		}
	case "webp":
		if err := encodeWebP(ctx, w, img); err != nil {
			return err
		}
	default:
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return nil
}

// encodeWebP shells out to cwebp with a lossless PNG intermediate. There is
// no maintained pure-Go WebP encoder.
func encodeWebP(ctx context.Context, w io.Writer, img image.Image) error {
	if _, err := exec.LookPath("cwebp"); err != nil {
		return ErrWebPEncoderUnavailable
	}

	inputFile, err := os.CreateTemp("", "wm-webp-in-*.png")
	if err != nil {
		return fmt.Errorf("create temp input: %w", err)
	}
	inputPath := inputFile.Name()
	defer func() { _ = os.Remove(inputPath) }()

	if err := png.Encode(inputFile, img); err != nil {
		_ = inputFile.Close()
		return fmt.Errorf("write temp input: %w", err)
	}
	_ = inputFile.Close()

	outputFile, err := os.CreateTemp("", "wm-webp-out-*.webp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	outputPath := outputFile.Name()
	_ = outputFile.Close()
	defer func() { _ = os.Remove(outputPath) }()

	args := []string{
		"-q", strconv.Itoa(JPEGQuality),
		inputPath,
		"-o", outputPath,
	}

	cmd := exec.CommandContext(ctx, "cwebp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cwebp failed: %w, stderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("read cwebp output: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write webp output: %w", err)
	}
	return nil
}
