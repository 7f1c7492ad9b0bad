// Package settings defines the immutable watermark configuration a job runs
// with. A job stores a snapshot of these values at submission time so later
// edits in the design studio never change a running or completed job.
package settings

import (
	"encoding/json"
	"fmt"
)

const (
	AnchorTopLeft      = "top-left"
	AnchorTopCenter    = "top-center"
	AnchorTopRight     = "top-right"
	AnchorMiddleLeft   = "middle-left"
	AnchorMiddleCenter = "middle-center"
	AnchorMiddleRight  = "middle-right"
	AnchorBottomLeft   = "bottom-left"
	AnchorBottomCenter = "bottom-center"
	AnchorBottomRight  = "bottom-right"
)

var anchors = map[string]bool{
	AnchorTopLeft:      true,
	AnchorTopCenter:    true,
	AnchorTopRight:     true,
	AnchorMiddleLeft:   true,
	AnchorMiddleCenter: true,
	AnchorMiddleRight:  true,
	AnchorBottomLeft:   true,
	AnchorBottomCenter: true,
	AnchorBottomRight:  true,
}

// Placement is either a named anchor from the 9-point grid or a custom
// percentage coordinate. Custom percentages position the overlay's center,
// not its top-left corner, matching how the preview renders.
type Placement struct {
	Anchor   string  `json:"anchor,omitempty" yaml:"anchor,omitempty"`
	CustomX  float64 `json:"custom_x,omitempty" yaml:"custom_x,omitempty"`
	CustomY  float64 `json:"custom_y,omitempty" yaml:"custom_y,omitempty"`
	IsCustom bool    `json:"is_custom,omitempty" yaml:"is_custom,omitempty"`
}

func AnchorPlacement(anchor string) Placement {
	return Placement{Anchor: anchor}
}

func CustomPlacement(xPercent, yPercent float64) Placement {
	return Placement{IsCustom: true, CustomX: xPercent, CustomY: yPercent}
}

func (p Placement) Validate() error {
	if p.IsCustom {
		if p.CustomX < 0 || p.CustomX > 100 || p.CustomY < 0 || p.CustomY > 100 {
			return fmt.Errorf("custom placement out of range: (%.1f%%, %.1f%%)", p.CustomX, p.CustomY)
		}
		return nil
	}
	if !anchors[p.Anchor] {
		return fmt.Errorf("unknown anchor: %q", p.Anchor)
	}
	return nil
}

// MobileProfile substitutes scale, placement and margin when the source
// image is portrait (height/width above PortraitRatio). Tall mobile-crop
// photos want a different watermark footprint than landscape shots.
type MobileProfile struct {
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Scale     float64   `json:"scale" yaml:"scale"`
	Placement Placement `json:"placement" yaml:"placement"`
	MarginPx  float64   `json:"margin_px" yaml:"margin_px"`
}

// PortraitRatio is the height/width threshold above which the mobile
// profile applies.
const PortraitRatio = 1.2

type LogoSettings struct {
	Enabled    bool      `json:"enabled" yaml:"enabled"`
	StorageKey string    `json:"storage_key" yaml:"storage_key"`
	Scale      float64   `json:"scale" yaml:"scale"`
	Opacity    float64   `json:"opacity" yaml:"opacity"`
	Rotation   float64   `json:"rotation" yaml:"rotation"`
	Placement  Placement `json:"placement" yaml:"placement"`
}

type TextSettings struct {
	Enabled      bool      `json:"enabled" yaml:"enabled"`
	Text         string    `json:"text" yaml:"text"`
	FontSize     float64   `json:"font_size" yaml:"font_size"`
	Color        string    `json:"color" yaml:"color"`
	Opacity      float64   `json:"opacity" yaml:"opacity"`
	Outline      bool      `json:"outline" yaml:"outline"`
	OutlineColor string    `json:"outline_color" yaml:"outline_color"`
	OutlineWidth float64   `json:"outline_width" yaml:"outline_width"`
	Placement    Placement `json:"placement" yaml:"placement"`
}

type Settings struct {
	Logo     LogoSettings  `json:"logo" yaml:"logo"`
	Text     TextSettings  `json:"text" yaml:"text"`
	MarginPx float64       `json:"margin_px" yaml:"margin_px"`
	Mobile   MobileProfile `json:"mobile" yaml:"mobile"`
}

// Default returns the settings a new shop starts with: small bottom-right
// logo, no text.
func Default() Settings {
	return Settings{
		Logo: LogoSettings{
			Scale:     0.2,
			Opacity:   0.8,
			Placement: AnchorPlacement(AnchorBottomRight),
		},
		Text: TextSettings{
			FontSize:     24,
			Color:        "#FFFFFF",
			Opacity:      0.8,
			OutlineColor: "#000000",
			OutlineWidth: 2,
			Placement:    AnchorPlacement(AnchorBottomRight),
		},
		MarginPx: 20,
	}
}

func (s Settings) Validate() error {
	if !s.Logo.Enabled && !s.Text.Enabled {
		return fmt.Errorf("at least one of logo or text must be enabled")
	}

	if s.Logo.Enabled {
		if s.Logo.StorageKey == "" {
			return fmt.Errorf("logo enabled but no logo uploaded")
		}
		if s.Logo.Scale <= 0 || s.Logo.Scale > 1 {
			return fmt.Errorf("logo scale must be in (0,1], got %v", s.Logo.Scale)
		}
		if s.Logo.Opacity < 0 || s.Logo.Opacity > 1 {
			return fmt.Errorf("logo opacity must be in [0,1], got %v", s.Logo.Opacity)
		}
		if s.Logo.Rotation < -180 || s.Logo.Rotation > 180 {
			return fmt.Errorf("logo rotation must be in [-180,180], got %v", s.Logo.Rotation)
		}
		if err := s.Logo.Placement.Validate(); err != nil {
			return fmt.Errorf("logo placement: %w", err)
		}
	}

	if s.Text.Enabled {
		if s.Text.Text == "" {
			return fmt.Errorf("text enabled but empty")
		}
		if s.Text.FontSize <= 0 {
			return fmt.Errorf("text font size must be positive, got %v", s.Text.FontSize)
		}
		if s.Text.Opacity < 0 || s.Text.Opacity > 1 {
			return fmt.Errorf("text opacity must be in [0,1], got %v", s.Text.Opacity)
		}
		if s.Text.Outline && s.Text.OutlineWidth <= 0 {
			return fmt.Errorf("outline enabled but width is %v", s.Text.OutlineWidth)
		}
		if err := s.Text.Placement.Validate(); err != nil {
			return fmt.Errorf("text placement: %w", err)
		}
	}

	if s.MarginPx < 0 {
		return fmt.Errorf("margin must be non-negative, got %v", s.MarginPx)
	}

	if s.Mobile.Enabled {
		if s.Mobile.Scale <= 0 || s.Mobile.Scale > 1 {
			return fmt.Errorf("mobile scale must be in (0,1], got %v", s.Mobile.Scale)
		}
		if err := s.Mobile.Placement.Validate(); err != nil {
			return fmt.Errorf("mobile placement: %w", err)
		}
	}

	return nil
}

// Snapshot serializes settings for storage on the job row.
func (s Settings) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

func FromSnapshot(data []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings snapshot: %w", err)
	}
	return s, nil
}
