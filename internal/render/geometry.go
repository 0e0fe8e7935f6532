package render

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidGeometry indicates page constants that cannot produce a layout.
	ErrInvalidGeometry = errors.New("invalid page geometry")
	// ErrBlockTooTall indicates a block that does not fit on an empty page.
	ErrBlockTooTall = errors.New("block taller than page content area")
)

// Geometry holds the page constants in points. Text is measured in
// monospace cells of CharWidth.
type Geometry struct {
	PageWidth    float64 `json:"pageWidth" yaml:"page_width"`
	PageHeight   float64 `json:"pageHeight" yaml:"page_height"`
	MarginTop    float64 `json:"marginTop" yaml:"margin_top"`
	MarginBottom float64 `json:"marginBottom" yaml:"margin_bottom"`
	MarginLeft   float64 `json:"marginLeft" yaml:"margin_left"`
	MarginRight  float64 `json:"marginRight" yaml:"margin_right"`
	LineHeight   float64 `json:"lineHeight" yaml:"line_height"`
	CharWidth    float64 `json:"charWidth" yaml:"char_width"`
	BlockGap     float64 `json:"blockGap" yaml:"block_gap"`
	BannerHeight float64 `json:"bannerHeight" yaml:"banner_height"`
}

// DefaultGeometry is US Letter with three-quarter inch margins.
func DefaultGeometry() Geometry {
	return Geometry{
		PageWidth:    612,
		PageHeight:   792,
		MarginTop:    54,
		MarginBottom: 54,
		MarginLeft:   54,
		MarginRight:  54,
		LineHeight:   14,
		CharWidth:    6,
		BlockGap:     6,
		BannerHeight: 24,
	}
}

func (g Geometry) ContentWidth() float64 {
	return g.PageWidth - g.MarginLeft - g.MarginRight
}

func (g Geometry) ContentHeight() float64 {
	return g.PageHeight - g.MarginTop - g.MarginBottom
}

// Columns is the number of text cells that fit on one line.
func (g Geometry) Columns() int {
	return int(math.Floor(g.ContentWidth() / g.CharWidth))
}

// Validate rejects geometry that cannot hold a single line of text or whose
// banners would overlap the content area.
func (g Geometry) Validate() error {
	type dim struct {
		name  string
		value float64
	}
	for _, d := range []dim{
		{"page width", g.PageWidth},
		{"page height", g.PageHeight},
		{"line height", g.LineHeight},
		{"char width", g.CharWidth},
	} {
		if !(d.value > 0) || math.IsInf(d.value, 0) {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidGeometry, d.name)
		}
	}
	for _, d := range []dim{
		{"top margin", g.MarginTop},
		{"bottom margin", g.MarginBottom},
		{"left margin", g.MarginLeft},
		{"right margin", g.MarginRight},
		{"block gap", g.BlockGap},
		{"banner height", g.BannerHeight},
	} {
		if !(d.value >= 0) || math.IsInf(d.value, 0) {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidGeometry, d.name)
		}
	}
	if g.BannerHeight > g.MarginTop || g.BannerHeight > g.MarginBottom {
		return fmt.Errorf("%w: banner height %.1f exceeds a vertical margin", ErrInvalidGeometry, g.BannerHeight)
	}
	if g.Columns() < 1 {
		return fmt.Errorf("%w: content width %.1f holds no text column", ErrInvalidGeometry, g.ContentWidth())
	}
	if g.ContentHeight() < g.LineHeight {
		return fmt.Errorf("%w: content height %.1f holds no text line", ErrInvalidGeometry, g.ContentHeight())
	}
	return nil
}
