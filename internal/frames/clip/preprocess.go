package clip

import (
	"image"

	"golang.org/x/image/draw"
)

// InputSize is the square resolution the vision tower expects.
const InputSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess resizes img so its short side is InputSize, center-crops it to
// InputSize x InputSize, and returns CLIP-normalized pixels in CHW order.
func Preprocess(img image.Image) []float32 {
	cropped := resizeAndCrop(img, InputSize)
	plane := InputSize * InputSize
	out := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			offset := cropped.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(cropped.Pix[offset+c]) / 255
				out[c*plane+y*InputSize+x] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

func resizeAndCrop(img image.Image, size int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, size, size))
	}
	scaledW, scaledH := size, size
	if w < h {
		scaledH = max(size, h*size/w)
	} else {
		scaledW = max(size, w*size/h)
	}
	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)

	x0 := (scaledW - size) / 2
	y0 := (scaledH - size) / 2
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Copy(out, image.Point{}, scaled, image.Rect(x0, y0, x0+size, y0+size), draw.Src, nil)
	return out
}
