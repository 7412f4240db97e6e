package raster

import (
	"image"
	"image/color"
)

// Raster is an immutable RGB image. Each pixel is packed as 0xRRGGBB.
type Raster struct {
	width  int
	height int
	pix    []uint32
}

func newRaster(width int, height int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Raster{
		width:  width,
		height: height,
		pix:    make([]uint32, width*height),
	}
}

// Filled returns a width x height raster where every pixel is rgb.
func Filled(width int, height int, rgb uint32) *Raster {
	r := newRaster(width, height)
	for i := range r.pix {
		r.pix[i] = rgb & 0xFFFFFF
	}
	return r
}

func (r *Raster) Width() int {
	return r.width
}

func (r *Raster) Height() int {
	return r.height
}

func (r *Raster) InBounds(x int, y int) bool {
	return x >= 0 && y >= 0 && x < r.width && y < r.height
}

// RGB returns the packed pixel at (x, y). Out of bounds reads return 0.
func (r *Raster) RGB(x int, y int) uint32 {
	if !r.InBounds(x, y) {
		return 0
	}
	return r.pix[y*r.width+x]
}

func (r *Raster) ColorModel() color.Model {
	return color.RGBAModel
}

func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

func (r *Raster) At(x int, y int) color.Color {
	red, green, blue := Channels(r.RGB(x, y))
	return color.RGBA{R: red, G: green, B: blue, A: 255}
}

func (r *Raster) SameSize(o *Raster) bool {
	return r.width == o.width && r.height == o.height
}

// Crop returns a copy of the width x height rectangle at (x, y), clipped to the raster.
func (r *Raster) Crop(x int, y int, width int, height int) *Raster {
	rect := image.Rect(x, y, x+width, y+height).Intersect(r.Bounds())
	c := newRaster(rect.Dx(), rect.Dy())
	for j := 0; j < c.height; j++ {
		src := (rect.Min.Y+j)*r.width + rect.Min.X
		copy(c.pix[j*c.width:(j+1)*c.width], r.pix[src:src+c.width])
	}
	return c
}

// RGBA returns a mutable copy for drawing.
func (r *Raster) RGBA() *image.RGBA {
	img := image.NewRGBA(r.Bounds())
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			offset := img.PixOffset(x, y)
			red, green, blue := Channels(r.pix[y*r.width+x])
			img.Pix[offset] = red
			img.Pix[offset+1] = green
			img.Pix[offset+2] = blue
			img.Pix[offset+3] = 255
		}
	}
	return img
}

func Pack(red uint8, green uint8, blue uint8) uint32 {
	return uint32(red)<<16 | uint32(green)<<8 | uint32(blue)
}

func Channels(rgb uint32) (uint8, uint8, uint8) {
	return uint8(rgb >> 16), uint8(rgb >> 8), uint8(rgb)
}

// ChannelSum is R+G+B of a packed pixel.
func ChannelSum(rgb uint32) int {
	red, green, blue := Channels(rgb)
	return int(red) + int(green) + int(blue)
}

// FromImage converts any decoded image into a Raster, dropping alpha.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	r := newRaster(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *Raster:
		copy(r.pix, src.pix)
	case *image.RGBA:
		for y := 0; y < r.height; y++ {
			rowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < r.width; x++ {
				offset := rowStart + x*4
				r.pix[y*r.width+x] = Pack(src.Pix[offset], src.Pix[offset+1], src.Pix[offset+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < r.height; y++ {
			rowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < r.width; x++ {
				offset := rowStart + x*4
				r.pix[y*r.width+x] = Pack(src.Pix[offset], src.Pix[offset+1], src.Pix[offset+2])
			}
		}
	case *image.YCbCr:
		for y := 0; y < r.height; y++ {
			for x := 0; x < r.width; x++ {
				px := bounds.Min.X + x
				py := bounds.Min.Y + y
				yOffset := src.YOffset(px, py)
				cOffset := src.COffset(px, py)
				r.pix[y*r.width+x] = ycbcrToRGB(src.Y[yOffset], src.Cb[cOffset], src.Cr[cOffset])
			}
		}
	default:
		for y := 0; y < r.height; y++ {
			for x := 0; x < r.width; x++ {
				c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
				r.pix[y*r.width+x] = Pack(c.R, c.G, c.B)
			}
		}
	}

	return r
}

func ycbcrToRGB(y uint8, cb uint8, cr uint8) uint32 {
	// ITU-R BT.601 full range, as used by JFIF.
	// https://www.w3.org/Graphics/JPEG/jfif3.pdf (Section 7)
	const (
		// 1.402 * 65536
		crToR = 91881
		// 0.344136 * 65536
		cbToG = 22554
		// 0.714136 * 65536
		crToG = 46802
		// 1.772 * 65536
		cbToB = 116130
	)

	yy := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	return Pack(
		clampChannel((yy+crToR*cr1)>>16),
		clampChannel((yy-cbToG*cb1-crToG*cr1)>>16),
		clampChannel((yy+cbToB*cb1)>>16),
	)
}

func clampChannel(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
