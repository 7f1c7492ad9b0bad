// Package watermark builds overlay layers from watermark settings and
// composites them onto source images, preserving the source format.
package watermark

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/brandstamp/brandstamp/internal/position"
	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/disintegration/imaging"
)

// BaseReferenceWidth anchors the resolution factor: absolute pixel
// quantities in the settings (margins, stroke widths, font sizes) are
// expressed against an 800px-wide reference image and scaled linearly, so
// the same settings look proportionally identical on a 400px and a 4000px
// source.
const BaseReferenceWidth = 800

type SourceMeta struct {
	Width  int
	Height int
	Format string
}

// Layer is a prepared overlay ready for composition.
type Layer struct {
	Image   image.Image
	X       int
	Y       int
	Opacity float64
}

type Compositor struct {
	fontPaths []string
}

type Option func(*Compositor)

// WithFontPaths overrides the truetype font search order for text layers.
func WithFontPaths(paths ...string) Option {
	return func(c *Compositor) {
		c.fontPaths = paths
	}
}

func New(opts ...Option) *Compositor {
	c := &Compositor{
		fontPaths: []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/System/Library/Fonts/Helvetica.ttc",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolutionFactor returns the linear scale between the source image and
// the reference width.
func ResolutionFactor(srcWidth int) float64 {
	return float64(srcWidth) / float64(BaseReferenceWidth)
}

// effective resolves the scale/placement/margin triple for one layer,
// substituting the mobile profile on portrait sources.
func effective(meta SourceMeta, s settings.Settings, base settings.Placement, baseScale float64) (settings.Placement, float64, float64) {
	placement := base
	scale := baseScale
	margin := s.MarginPx

	if s.Mobile.Enabled && meta.Width > 0 {
		ratio := float64(meta.Height) / float64(meta.Width)
		if ratio > settings.PortraitRatio {
			placement = s.Mobile.Placement
			scale = s.Mobile.Scale
			margin = s.Mobile.MarginPx
		}
	}

	return placement, scale, margin
}

// PrepareLayers builds the logo and text layers for a source image. The
// logo image is the decoded asset from archive storage; it may be nil when
// the logo layer is disabled.
func (c *Compositor) PrepareLayers(meta SourceMeta, s settings.Settings, logo image.Image) ([]Layer, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("invalid source dimensions %dx%d", meta.Width, meta.Height)
	}

	rf := ResolutionFactor(meta.Width)
	var layers []Layer

	if s.Logo.Enabled {
		if logo == nil {
			return nil, fmt.Errorf("logo layer enabled but no logo image provided")
		}
		layer, err := c.prepareLogoLayer(meta, s, logo, rf)
		if err != nil {
			return nil, fmt.Errorf("prepare logo layer: %w", err)
		}
		layers = append(layers, layer)
	}

	if s.Text.Enabled {
		layer, err := c.prepareTextLayer(meta, s, rf)
		if err != nil {
			return nil, fmt.Errorf("prepare text layer: %w", err)
		}
		layers = append(layers, layer)
	}

	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers enabled")
	}

	return layers, nil
}

func (c *Compositor) prepareLogoLayer(meta SourceMeta, s settings.Settings, logo image.Image, rf float64) (Layer, error) {
	placement, scale, margin := effective(meta, s, s.Logo.Placement, s.Logo.Scale)

	targetW := int(math.Round(scale * float64(meta.Width)))
	if targetW < 1 {
		targetW = 1
	}

	resized := imaging.Resize(logo, targetW, 0, imaging.Lanczos)

	if s.Logo.Rotation != 0 {
		resized = imaging.Rotate(resized, s.Logo.Rotation, color.Transparent)
	}

	b := resized.Bounds()
	x, y := position.Offset(placement, meta.Width, meta.Height, b.Dx(), b.Dy(), margin*rf)

	return Layer{
		Image:   resized,
		X:       x,
		Y:       y,
		Opacity: s.Logo.Opacity,
	}, nil
}

func (c *Compositor) prepareTextLayer(meta SourceMeta, s settings.Settings, rf float64) (Layer, error) {
	placement, scale, margin := effective(meta, s, s.Text.Placement, 0)

	rendered, err := c.renderText(s.Text, textFontSize(s.Text, scale, meta), rf)
	if err != nil {
		return Layer{}, err
	}

	b := rendered.Bounds()
	x, y := position.Offset(placement, meta.Width, meta.Height, b.Dx(), b.Dy(), margin*rf)

	return Layer{
		Image:   rendered,
		X:       x,
		Y:       y,
		Opacity: s.Text.Opacity,
	}, nil
}

// textFontSize resolves the rendered glyph size in pixels. The configured
// font size is a value at the reference width; a substituted mobile scale
// overrides it as a fraction of the source width, the same footprint rule
// the logo layer follows.
func textFontSize(ts settings.TextSettings, mobileScale float64, meta SourceMeta) float64 {
	if mobileScale > 0 {
		return mobileScale * float64(meta.Width)
	}
	return ts.FontSize * ResolutionFactor(meta.Width)
}

// Composite draws the prepared layers over the source in order. Opacity is
// applied per layer during the overlay blend.
func (c *Compositor) Composite(src image.Image, layers []Layer) *image.NRGBA {
	out := imaging.Clone(src)
	for _, layer := range layers {
		out = imaging.Overlay(out, layer.Image, image.Pt(layer.X, layer.Y), layer.Opacity)
	}
	return out
}
