package service

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// blurSigma matches a 5x5 Gaussian kernel with automatically derived sigma.
const (
	blurSigma       = 1.1
	binaryThreshold = 127
)

// toGray converts img to a single channel image using the standard luma weights.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func grayscale(img image.Image) image.Image {
	return toGray(imaging.Grayscale(img))
}

func otsuBinarize(img image.Image) image.Image {
	blurred := toGray(imaging.Blur(toGray(img), blurSigma))
	return threshold(blurred, otsuLevel(blurred))
}

func fixedBinarize(img image.Image) image.Image {
	return threshold(toGray(img), binaryThreshold)
}

// threshold maps pixels strictly above level to white and the rest to black.
func threshold(g *image.Gray, level uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y > level {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// otsuLevel picks the threshold that maximises between-class variance of the
// luminance histogram.
func otsuLevel(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.GrayAt(x, y).Y]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB      float64
		weightB   int
		bestLevel uint8
		bestVar   float64
	)
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > bestVar {
			bestVar = between
			bestLevel = uint8(t)
		}
	}
	return bestLevel
}
