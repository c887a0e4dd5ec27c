package analyzer

import (
	"image"
	"sort"

	"github.com/ivlev/phrase2video/internal/config"
)

// FocusPadding grows the chosen region on each side, as a share of its size.
const FocusPadding = 0.1

// FocusTarget picks the region a focus effect should push toward: the
// block with the largest confidence-weighted area, padded and clipped to the
// image. ok is false when nothing was detected.
func FocusTarget(d Detector, img image.Image) (config.Rect, bool, error) {
	blocks, err := d.Detect(img)
	if err != nil {
		return config.Rect{}, false, err
	}
	if len(blocks) == 0 {
		return config.Rect{}, false, nil
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return weight(blocks[i]) > weight(blocks[j])
	})
	best := blocks[0].Rect

	padX := int(float64(best.Dx()) * FocusPadding)
	padY := int(float64(best.Dy()) * FocusPadding)
	best = best.Inset(-max(padX, padY)).Intersect(img.Bounds())
	if best.Empty() {
		return config.Rect{}, false, nil
	}

	origin := img.Bounds().Min
	return config.Rect{
		X:      float64(best.Min.X - origin.X),
		Y:      float64(best.Min.Y - origin.Y),
		Width:  float64(best.Dx()),
		Height: float64(best.Dy()),
	}, true, nil
}

func weight(b Block) float64 {
	return float64(b.Rect.Dx()*b.Rect.Dy()) * b.Confidence
}
