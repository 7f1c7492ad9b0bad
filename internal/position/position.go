// Package position maps a placement onto pixel offsets. It is pure math:
// the same function drives both preview rendering and final composition, so
// the two can never disagree about where an overlay lands.
package position

import (
	"github.com/brandstamp/brandstamp/internal/settings"
)

// Offset returns the top-left pixel offset for an overlay of size
// overlayW x overlayH on a canvas of canvasW x canvasH.
//
// Named anchors apply the margin inward from the edges they touch; centered
// axes ignore the margin. Custom placements interpret the percentage as the
// overlay's center point relative to the canvas.
func Offset(p settings.Placement, canvasW, canvasH, overlayW, overlayH int, margin float64) (int, int) {
	if p.IsCustom {
		x := float64(canvasW)*p.CustomX/100 - float64(overlayW)/2
		y := float64(canvasH)*p.CustomY/100 - float64(overlayH)/2
		return clamp(int(x), canvasW, overlayW), clamp(int(y), canvasH, overlayH)
	}

	var x, y float64

	switch p.Anchor {
	case settings.AnchorTopLeft, settings.AnchorMiddleLeft, settings.AnchorBottomLeft:
		x = margin
	case settings.AnchorTopCenter, settings.AnchorMiddleCenter, settings.AnchorBottomCenter:
		x = float64(canvasW-overlayW) / 2
	case settings.AnchorTopRight, settings.AnchorMiddleRight, settings.AnchorBottomRight:
		x = float64(canvasW-overlayW) - margin
	}

	switch p.Anchor {
	case settings.AnchorTopLeft, settings.AnchorTopCenter, settings.AnchorTopRight:
		y = margin
	case settings.AnchorMiddleLeft, settings.AnchorMiddleCenter, settings.AnchorMiddleRight:
		y = float64(canvasH-overlayH) / 2
	case settings.AnchorBottomLeft, settings.AnchorBottomCenter, settings.AnchorBottomRight:
		y = float64(canvasH-overlayH) - margin
	}

	return int(x), int(y)
}

// clamp keeps the overlay's anchor point on-canvas without forcing the
// whole overlay inside; oversized overlays may legitimately bleed.
func clamp(v, canvas, overlay int) int {
	if v < -overlay {
		return -overlay
	}
	if v > canvas {
		return canvas
	}
	return v
}
