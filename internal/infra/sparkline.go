package infra

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"marketcraft/internal/domain"
)

const oversample = 4

var (
	sparkBackground = color.NRGBA{R: 24, G: 26, B: 32, A: 255}
	sparkBar        = color.NRGBA{R: 80, G: 200, B: 120, A: 255}
)

// RenderSparkline draws a price history series as a bar sparkline. The
// chart is drawn oversampled and downscaled with a Lanczos filter so the
// small output stays readable.
func RenderSparkline(history []float64, width, height int) (*image.NRGBA, error) {
	if len(history) == 0 {
		return nil, domain.ErrEmptyHistory
	}

	w := width * oversample
	h := height * oversample
	canvas := imaging.New(w, h, sparkBackground)

	lo, hi := history[0], history[0]
	for _, p := range history {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}

	barWidth := w / len(history)
	if barWidth < 1 {
		barWidth = 1
	}
	// The gap between bars disappears once bars get this narrow; drawing a
	// zero-width bar would be worse than drawing a gapless one.
	gap := oversample / 2
	if barWidth <= gap {
		gap = 0
	}

	for i, p := range history {
		// A flat series renders as half-height bars.
		frac := 0.5
		if hi > lo {
			frac = (p - lo) / (hi - lo)
		}
		barTop := h - 1 - int(frac*float64(h-1))

		x0 := i * barWidth
		x1 := x0 + barWidth - gap
		if x1 > w {
			x1 = w
		}
		for x := x0; x < x1; x++ {
			for y := barTop; y < h; y++ {
				canvas.SetNRGBA(x, y, sparkBar)
			}
		}
	}

	return imaging.Resize(canvas, width, height, imaging.Lanczos), nil
}

// SaveSparkline renders the series and writes it to path. The format is
// inferred from the file extension.
func SaveSparkline(history []float64, path string, width, height int) error {
	img, err := RenderSparkline(history, width, height)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}
