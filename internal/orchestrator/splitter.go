package orchestrator

import (
	"image"
	"image/draw"
)

// tallRatio is the height/width ratio above which a page is OCRed as two
// halves.
const tallRatio = 1.4

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// SplitPage returns the top and bottom halves of a tall page, or the page
// itself. The halves share pixels with img when the image type allows it.
func SplitPage(img image.Image) []image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if float64(h) <= tallRatio*float64(w) {
		return []image.Image{img}
	}
	mid := b.Min.Y + h/2
	top := image.Rect(b.Min.X, b.Min.Y, b.Max.X, mid)
	bottom := image.Rect(b.Min.X, mid, b.Max.X, b.Max.Y)
	return []image.Image{crop(img, top), crop(img, bottom)}
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
