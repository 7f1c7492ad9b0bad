package watermark

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/brandstamp/brandstamp/internal/settings"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// renderText rasterizes the text layer onto a transparent canvas sized to
// the measured string plus outline padding. The outline is drawn as a ring
// of offset passes underneath the fill pass so it reads as a stroke
// regardless of source resolution.
func (c *Compositor) renderText(ts settings.TextSettings, fontSize, rf float64) (image.Image, error) {
	if fontSize < 8 {
		fontSize = 8
	}

	strokeWidth := 0.0
	if ts.Outline {
		strokeWidth = math.Max(1, ts.OutlineWidth*rf)
	}

	fill, err := parseHexColor(ts.Color)
	if err != nil {
		return nil, fmt.Errorf("text color: %w", err)
	}

	var outline color.Color
	if ts.Outline {
		outline, err = parseHexColor(ts.OutlineColor)
		if err != nil {
			return nil, fmt.Errorf("outline color: %w", err)
		}
	}

	// Measure with a throwaway context before allocating the real canvas.
	measure := gg.NewContext(1, 1)
	usedTruetype := c.loadFontFace(measure, fontSize)
	textW, textH := measure.MeasureString(ts.Text)
	if !usedTruetype {
		// basicfont is a fixed 7x13 bitmap face; MeasureString underreports
		// for it, so size the canvas from the glyph grid instead.
		textW = float64(len(ts.Text) * basicfont.Face7x13.Advance)
		textH = float64(basicfont.Face7x13.Height)
	}

	pad := strokeWidth + 2
	w := int(math.Ceil(textW + 2*pad))
	h := int(math.Ceil(textH*1.4 + 2*pad))
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("text %q measured to empty canvas", ts.Text)
	}

	dc := gg.NewContext(w, h)
	if !c.loadFontFace(dc, fontSize) {
		dc.SetFontFace(basicfont.Face7x13)
	}

	cx := float64(w) / 2
	cy := float64(h) / 2

	if ts.Outline && strokeWidth > 0 {
		dc.SetColor(outline)
		for _, offset := range strokeOffsets(strokeWidth) {
			dc.DrawStringAnchored(ts.Text, cx+offset[0], cy+offset[1], 0.5, 0.5)
		}
	}

	dc.SetColor(fill)
	dc.DrawStringAnchored(ts.Text, cx, cy, 0.5, 0.5)

	return dc.Image(), nil
}

// loadFontFace tries the configured truetype fonts in order and reports
// whether one loaded; callers fall back to the embedded bitmap face so text
// rendering never hard-fails on a fontless host.
func (c *Compositor) loadFontFace(dc *gg.Context, size float64) bool {
	for _, path := range c.fontPaths {
		if err := dc.LoadFontFace(path, size); err == nil {
			return true
		}
	}
	return false
}

// strokeOffsets returns an 8-direction ring at the given radius.
func strokeOffsets(radius float64) [][2]float64 {
	d := radius
	diag := radius * math.Sqrt2 / 2
	return [][2]float64{
		{-d, 0}, {d, 0}, {0, -d}, {0, d},
		{-diag, -diag}, {diag, -diag}, {-diag, diag}, {diag, diag},
	}
}

func parseHexColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return nil, fmt.Errorf("expected #RRGGBB, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}
