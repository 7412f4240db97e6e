package image

import (
	"image"
	"image/color"
)

var HighlightColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// DrawRegions outlines every region on img. The outline is moved out by one pixel on the
// sides that do not touch the top or left edge, and it is clipped to the image.
func DrawRegions(img *image.RGBA, regions []Region) {
	bounds := img.Bounds()

	for _, region := range regions {
		offsetX := 0
		offsetY := 0
		if region.X > 0 {
			offsetX = 1
		}
		if region.Y > 0 {
			offsetY = 1
		}

		left := region.X - offsetX
		top := region.Y - offsetY
		right := min(region.X+region.XBlocks*BlockSize, bounds.Max.X-1)
		bottom := min(region.Y+region.YBlocks*BlockSize, bounds.Max.Y-1)

		for x := left; x <= right; x++ {
			if x >= bounds.Min.X && x < bounds.Max.X {
				if top >= bounds.Min.Y {
					img.Set(x, top, HighlightColor)
				}
				img.Set(x, bottom, HighlightColor)
			}
		}

		for y := top; y <= bottom; y++ {
			if y >= bounds.Min.Y && y < bounds.Max.Y {
				if left >= bounds.Min.X {
					img.Set(left, y, HighlightColor)
				}
				img.Set(right, y, HighlightColor)
			}
		}
	}
}
