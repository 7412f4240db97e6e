package image

import "image"

// Region is a merged group of flagged tiles. X and Y are pixel coordinates,
// XBlocks and YBlocks are extents in tiles.
type Region struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	XBlocks int `json:"xBlocks"`
	YBlocks int `json:"yBlocks"`
}

// Rect returns the pixel rectangle covered by the region, clipped to bounds.
func (r Region) Rect(bounds image.Rectangle) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.XBlocks*BlockSize, r.Y+r.YBlocks*BlockSize).Intersect(bounds)
}

// Covers reports whether tile (x, y) lies inside the region.
func (r Region) Covers(x int, y int) bool {
	tx := r.X / BlockSize
	ty := r.Y / BlockSize
	return x >= tx && x < tx+r.XBlocks && y >= ty && y < ty+r.YBlocks
}

// MergeRegions grows rectangles from the flagged tiles of grid, scanning in raster order.
// A region first grows to the right, then one row down at a time while the row below
// touches its column span, picking up flagged tiles to the left of the new row.
// Every tile inside a closed region is consumed whether it was flagged or not.
// The grid is not modified.
func MergeRegions(grid *Grid) []Region {
	flags := grid.Clone()
	xBlocks := flags.Width()
	yBlocks := flags.Height()
	maxSteps := xBlocks * yBlocks

	var regions []Region
	for y := 0; y < yBlocks; y++ {
		for x := 0; x < xBlocks; x++ {
			if !flags.Get(x, y) {
				continue
			}

			region := Region{X: x * BlockSize, Y: y * BlockSize, XBlocks: 1, YBlocks: 1}
			flags.Set(x, y, false)

			x1, xmin, y1 := x, x, y
			for steps := 1; ; steps++ {
				x1++
				if x1 >= xBlocks {
					x1 = xmin
				}

				if flags.Get(x1, y1) {
					region.XBlocks++
					flags.Set(x1, y1, false)
				} else {
					x1 = xmin

					connected := false
					for fx := x1; fx < x1+region.XBlocks; fx++ {
						if fx == xBlocks || y1+1 == yBlocks {
							break
						}
						if flags.Get(fx, y1+1) {
							connected = true
						}
					}

					if !connected {
						consume(flags, region)
						break
					}

					y1++
					region.YBlocks++

					if x1-1 >= 0 {
						for flags.Get(x1-1, y1) {
							flags.Set(x1-1, y1, false)
							region.XBlocks++
							region.X -= BlockSize
							x1--
							if x1 == 0 {
								break
							}
						}
						xmin = x1
					}

					x1 = x1 + region.XBlocks - 1
				}

				if steps >= maxSteps {
					break
				}
			}

			regions = append(regions, region)
		}
	}

	return regions
}

func consume(flags *Grid, region Region) {
	tx := region.X / BlockSize
	ty := region.Y / BlockSize
	for j := 0; j < region.YBlocks; j++ {
		for i := 0; i < region.XBlocks; i++ {
			flags.Set(tx+i, ty+j, false)
		}
	}
}
