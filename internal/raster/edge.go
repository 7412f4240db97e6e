package raster

const luminanceThreshold = 150

// Luminance returns 0.299R + 0.587G + 0.114B.
func Luminance(rgb uint32) float64 {
	red, green, blue := Channels(rgb)
	return 0.299*float64(red) + 0.587*float64(green) + 0.114*float64(blue)
}

// IsWhite reports whether rgb becomes white after thresholding.
func IsWhite(rgb uint32) bool {
	return Luminance(rgb) >= luminanceThreshold
}

// RobertsCross convolves every pixel with [[1,0],[0,-1]] and [[0,1],[-1,0]] per channel.
// Taps outside the image contribute nothing.
func RobertsCross(src *Raster) *Raster {
	dst := newRaster(src.width, src.height)

	for y := 0; y < src.height; y++ {
		for x := 0; x < src.width; x++ {
			var sums [3]int
			for c := 0; c < 3; c++ {
				shift := uint(16 - 8*c)
				tap := func(tx int, ty int) int {
					if !src.InBounds(tx, ty) {
						return 0
					}
					return int(src.pix[ty*src.width+tx]>>shift) & 0xFF
				}

				gx := tap(x, y) - tap(x+1, y+1)
				gy := tap(x+1, y) - tap(x, y+1)
				sums[c] = abs(gx) + abs(gy)
			}

			dst.pix[y*dst.width+x] = Pack(clamp255(sums[0]), clamp255(sums[1]), clamp255(sums[2]))
		}
	}

	return dst
}

// Threshold maps each pixel to black when its luminance is below 150 and to white otherwise.
func Threshold(src *Raster) *Raster {
	dst := newRaster(src.width, src.height)
	for i, rgb := range src.pix {
		if IsWhite(rgb) {
			dst.pix[i] = 0xFFFFFF
		}
	}
	return dst
}

// EdgeMask is Threshold(RobertsCross(src)).
func EdgeMask(src *Raster) *Raster {
	return Threshold(RobertsCross(src))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp255(v int) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}
