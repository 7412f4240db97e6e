package image

import "screenshot-comparator/internal/raster"

const (
	caretMinHeight = 5
	caretMaxHeight = 30
	// caretMaxBlocks is the tallest region a caret can span when it crosses a block boundary.
	caretMaxBlocks = 2
)

// CaretFilter recognizes a difference that is only a blinking text caret:
// a vertical run of differing pixels at least 5 and at most 30 pixels tall
// with matching pixels on both sides and below it.
type CaretFilter struct {
	reference *raster.Raster
	capture   *raster.Raster
}

func NewCaretFilter(reference *raster.Raster, capture *raster.Raster) *CaretFilter {
	return &CaretFilter{
		reference: reference,
		capture:   capture,
	}
}

// differs compares the thresholded pixels. Positions outside either image match.
func (c *CaretFilter) differs(x int, y int) bool {
	if !c.reference.InBounds(x, y) || !c.capture.InBounds(x, y) {
		return false
	}
	return raster.IsWhite(c.reference.RGB(x, y)) != raster.IsWhite(c.capture.RGB(x, y))
}

// Suppresses reports whether the only difference between the two images is a caret.
// It applies to images of equal size with exactly one region that is one block wide
// and at most two blocks tall, so the probe window sees every difference.
func (c *CaretFilter) Suppresses(regions []Region) bool {
	if len(regions) != 1 || !c.reference.SameSize(c.capture) {
		return false
	}
	if regions[0].XBlocks != 1 || regions[0].YBlocks > caretMaxBlocks {
		return false
	}

	width := c.reference.Width()
	height := c.reference.Height()

	x := regions[0].X
	y := regions[0].Y
	if x == 0 {
		x = 1
	}
	if x+BlockSize >= width {
		x = width - BlockSize - 1
	}
	if y+BlockSize >= height {
		y = height - BlockSize - 1
	}
	x = max(x, 0)
	y = max(y, 0)

	for j := y; j < y+BlockSize; j++ {
		for i := x; i < x+BlockSize; i++ {
			if c.differs(i, j) {
				return c.isCaret(i, j)
			}
		}
	}

	return false
}

func (c *CaretFilter) isCaret(x int, y int) bool {
	for run := 1; run <= caretMaxHeight; run++ {
		if c.differs(x-1, y) || c.differs(x+1, y) {
			return false
		}
		y++
		if !c.differs(x, y) {
			return run >= caretMinHeight
		}
	}
	return false
}
