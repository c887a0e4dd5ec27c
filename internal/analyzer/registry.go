package analyzer

import (
	"fmt"
	"image"
	"strings"
)

// Detector variants accepted by NewDetector.
const (
	VariantContrast = "contrast"
	VariantNone     = "none"
)

// NewDetector returns the detector for variant; empty selects contrast.
// "none" never finds a region, which turns focus.auto into a no-op.
func NewDetector(variant string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case VariantContrast, "":
		return NewContrastDetector(), nil
	case VariantNone:
		return noneDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown focus detector %q (use %s or %s)", variant, VariantContrast, VariantNone)
	}
}

type noneDetector struct{}

func (noneDetector) Detect(image.Image) ([]Block, error) {
	return nil, nil
}
