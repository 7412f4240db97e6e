package image

import (
	"image"
	"screenshot-comparator/internal/raster"
)

type DiffResult struct {
	DiffAmount       float64
	Grid             *Grid
	Regions          []Region
	SizesDiffer      bool
	CursorSuppressed bool
	Log              string

	width  int
	height int
}

// Match is true when the images are the same size and nothing was flagged,
// or when the only difference is a caret.
func (d *DiffResult) Match() bool {
	if d.CursorSuppressed {
		return true
	}
	return !d.SizesDiffer && len(d.Regions) == 0
}

type Differ interface {
	Calculate(reference *raster.Raster, capture *raster.Raster) *DiffResult
}

type MacroblockDiff struct {
	blocks          *BlockDiff
	cursorDetection bool
	edgeMode        bool
}

type MacroblockOption func(*MacroblockDiff)

func WithCursorDetection(enabled bool) MacroblockOption {
	return func(m *MacroblockDiff) {
		m.cursorDetection = enabled
	}
}

// WithEdgeMode compares Roberts Cross edge masks instead of raw pixels.
func WithEdgeMode(enabled bool) MacroblockOption {
	return func(m *MacroblockDiff) {
		m.edgeMode = enabled
	}
}

func NewMacroblockDiff(tolerance float64, opts ...MacroblockOption) *MacroblockDiff {
	m := &MacroblockDiff{
		blocks: NewBlockDiff(tolerance),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MacroblockDiff) Calculate(reference *raster.Raster, capture *raster.Raster) *DiffResult {
	left, right := reference, capture
	if m.edgeMode {
		left = raster.EdgeMask(reference)
		right = raster.EdgeMask(capture)
	}

	blocks := m.blocks.Compare(left, right)

	result := &DiffResult{
		Grid:        blocks.Grid,
		Regions:     MergeRegions(blocks.Grid),
		SizesDiffer: blocks.SizesDiffer,
		Log:         blocks.Log,
		width:       blocks.Width,
		height:      blocks.Height,
	}
	if blocks.Evaluated > 0 {
		result.DiffAmount = float64(blocks.Flagged()) / float64(blocks.Evaluated)
	}

	if m.cursorDetection && len(result.Regions) > 0 {
		result.CursorSuppressed = NewCaretFilter(reference, capture).Suppresses(result.Regions)
	}

	return result
}

// DiffImage returns the capture, cropped to the compared area, with every region outlined.
func (d *DiffResult) DiffImage(capture *raster.Raster) *image.RGBA {
	img := capture.Crop(0, 0, d.width, d.height).RGBA()
	DrawRegions(img, d.Regions)
	return img
}
