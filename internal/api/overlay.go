package api

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

// Overlay returns a copy of src with the frame number and timecode drawn
// in the bottom-left corner. src is never modified; it may be shared with
// the frame cache.
func Overlay(src *image.RGBA, number int64, timecode string) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[off:off+4*b.Dx()])
	}

	dc := gg.NewContextForRGBA(dst)
	label := fmt.Sprintf("#%d  %s", number, timecode)
	tw, th := dc.MeasureString(label)

	const pad = 6.0
	x := pad
	y := float64(b.Dy()) - pad
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(x-pad/2, y-th-pad, tw+pad, th+pad*1.5)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, x, y-pad/2)

	return dst
}
