package rimage

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Dx() == g2.Bounds().Dx() && g1.Bounds().Dy() == g2.Bounds().Dy()
}

// ConvertToGray writes src into dst as single channel luminance, reusing dst's pixel storage.
// Both images must have the same size.
func ConvertToGray(dst *image.Gray, src image.Image) error {
	if dst == nil {
		return errors.New("destination gray image is nil")
	}
	if src == nil {
		return errors.New("source image is nil")
	}
	if !SameImgSize(dst, src) {
		return errors.Errorf("these images aren't the same size (%d %d) != (%d %d)",
			src.Bounds().Dx(), src.Bounds().Dy(), dst.Bounds().Dx(), dst.Bounds().Dy())
	}
	if g, ok := src.(*image.Gray); ok {
		width := dst.Bounds().Dx()
		for y := 0; y < dst.Bounds().Dy(); y++ {
			srcOff := g.PixOffset(g.Bounds().Min.X, g.Bounds().Min.Y+y)
			dstOff := dst.PixOffset(dst.Bounds().Min.X, dst.Bounds().Min.Y+y)
			copy(dst.Pix[dstOff:dstOff+width], g.Pix[srcOff:srcOff+width])
		}
		return nil
	}
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return nil
}
