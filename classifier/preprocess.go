package classifier

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// preprocess applies the fixed stages in order: resize to the square
// model resolution, rescale to unit range, normalize per channel. The
// output is one NCHW float32 tensor of batch size 1.
func preprocess(img image.Image, w Wrapper) []float32 {
	size := w.ImageSize
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	std := [3]float32{
		float32(math.Sqrt(float64(w.Variance[0]))),
		float32(math.Sqrt(float64(w.Variance[1]))),
		float32(math.Sqrt(float64(w.Variance[2]))),
	}

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()

			// RGBA is 16-bit, so /65535 lands on the same unit range
			// as dividing the 8-bit value by 255.
			unit := [3]float32{
				float32(r) / 65535.0,
				float32(g) / 65535.0,
				float32(b) / 65535.0,
			}

			idx := y*size + x
			for c := 0; c < 3; c++ {
				out[c*plane+idx] = (unit[c] - w.Mean[c]) / std[c]
			}
		}
	}
	return out
}
