package config

import (
	"fmt"
	"math"
	"strings"
)

// Effect value limits accepted in mapping files.
const (
	MaxMotionIntensity = 0.5
	MaxVignetteAngle   = math.Pi / 2

	DefaultFadeDuration  = 1.0
	DefaultVignetteAngle = 0.6
	DefaultImplicitZoom  = 1.1
)

// EffectSpec is the declarative per-image effect description. Every axis is
// optional; a nil axis means no effect on it. Unknown keys in mapping files
// are dropped by the decoders.
type EffectSpec struct {
	Zoom     *ZoomSpec     `json:"zoom,omitempty" yaml:"zoom,omitempty" toml:"zoom,omitempty"`
	Motion   *MotionSpec   `json:"motion,omitempty" yaml:"motion,omitempty" toml:"motion,omitempty"`
	Fade     *FadeSpec     `json:"fade,omitempty" yaml:"fade,omitempty" toml:"fade,omitempty"`
	Darken   *DarkenSpec   `json:"darken,omitempty" yaml:"darken,omitempty" toml:"darken,omitempty"`
	Vignette *VignetteSpec `json:"vignette,omitempty" yaml:"vignette,omitempty" toml:"vignette,omitempty"`
	Focus    *FocusSpec    `json:"focus,omitempty" yaml:"focus,omitempty" toml:"focus,omitempty"`
}

// ZoomSpec describes a push in or pull out. Duration is the ramp length in
// seconds; nil ramps over the whole scene.
type ZoomSpec struct {
	Type     string   `json:"type" yaml:"type" toml:"type"`
	Scale    float64  `json:"scale" yaml:"scale" toml:"scale"`
	Duration *float64 `json:"duration,omitempty" yaml:"duration,omitempty" toml:"duration,omitempty"`
}

// MotionSpec pans the crop window along one axis.
type MotionSpec struct {
	Direction string  `json:"direction" yaml:"direction" toml:"direction"`
	Intensity float64 `json:"intensity" yaml:"intensity" toml:"intensity"`
}

// FadeSpec fades the scene in, out, or both.
type FadeSpec struct {
	Type     string   `json:"type" yaml:"type" toml:"type"`
	Duration *float64 `json:"duration,omitempty" yaml:"duration,omitempty" toml:"duration,omitempty"`
}

// DarkenSpec lowers brightness by Amount in [0,1].
type DarkenSpec struct {
	Amount float64 `json:"amount" yaml:"amount" toml:"amount"`
}

// VignetteSpec is passed to the ffmpeg vignette filter.
type VignetteSpec struct {
	Angle *float64 `json:"angle,omitempty" yaml:"angle,omitempty" toml:"angle,omitempty"`
	Eval  string   `json:"eval,omitempty" yaml:"eval,omitempty" toml:"eval,omitempty"`
}

// FocusSpec anchors the camera on a region of the source image. Source
// defaults to the natural image size. With Auto set and no Target, the
// region is detected from image contrast before compilation.
type FocusSpec struct {
	Source *Size `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Target *Rect `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Auto   bool  `json:"auto,omitempty" yaml:"auto,omitempty" toml:"auto,omitempty"`
}

// Size is a width/height pair in source pixels.
type Size struct {
	Width  float64 `json:"width" yaml:"width" toml:"width"`
	Height float64 `json:"height" yaml:"height" toml:"height"`
}

// Rect is a rectangle in source pixels.
type Rect struct {
	X      float64 `json:"x" yaml:"x" toml:"x"`
	Y      float64 `json:"y" yaml:"y" toml:"y"`
	Width  float64 `json:"width" yaml:"width" toml:"width"`
	Height float64 `json:"height" yaml:"height" toml:"height"`
}

// ZoomType returns the normalized zoom direction, "in" when unset.
func (z *ZoomSpec) ZoomType() string {
	t := strings.ToLower(strings.TrimSpace(z.Type))
	if t == "" {
		return "in"
	}
	return t
}

// DirectionName returns the normalized motion direction, "right" when unset.
func (m *MotionSpec) DirectionName() string {
	d := strings.ToLower(strings.TrimSpace(m.Direction))
	if d == "" {
		return "right"
	}
	return d
}

// FadeType returns the normalized fade type, "in" when unset.
func (f *FadeSpec) FadeType() string {
	t := strings.ToLower(strings.TrimSpace(f.Type))
	if t == "" {
		return "in"
	}
	return t
}

// Seconds returns the fade length, DefaultFadeDuration when unset.
func (f *FadeSpec) Seconds() float64 {
	if f.Duration == nil {
		return DefaultFadeDuration
	}
	return *f.Duration
}

// AngleRadians returns the vignette angle, DefaultVignetteAngle when unset.
func (v *VignetteSpec) AngleRadians() float64 {
	if v.Angle == nil {
		return DefaultVignetteAngle
	}
	return *v.Angle
}

// EvalMode returns "init" or "frame".
func (v *VignetteSpec) EvalMode() string {
	e := strings.ToLower(strings.TrimSpace(v.Eval))
	if e == "" {
		return "init"
	}
	return e
}

// IsEmpty reports whether no axis is declared.
func (s *EffectSpec) IsEmpty() bool {
	return s == nil || (s.Zoom == nil && s.Motion == nil && s.Fade == nil &&
		s.Darken == nil && s.Vignette == nil && s.Focus == nil)
}

// Validate checks the duration-independent ranges of every declared axis.
// Geometry that depends on the image (focus bounds) and fade windows that
// depend on scene length are checked at compile time.
func (s *EffectSpec) Validate(image string) error {
	if s == nil {
		return nil
	}
	if z := s.Zoom; z != nil {
		switch z.ZoomType() {
		case "in", "out":
		default:
			return NewConfigError("effects.zoom.type", image, fmt.Sprintf("must be in or out, got %q", z.Type))
		}
		if !finite(z.Scale) || z.Scale <= 1 {
			return NewConfigError("effects.zoom.scale", image, fmt.Sprintf("must be greater than 1, got %v", z.Scale))
		}
		if z.Duration != nil && (!finite(*z.Duration) || *z.Duration <= 0) {
			return NewConfigError("effects.zoom.duration", image, fmt.Sprintf("must be positive, got %v", *z.Duration))
		}
	}
	if m := s.Motion; m != nil {
		switch m.DirectionName() {
		case "left", "right", "up", "down":
		default:
			return NewConfigError("effects.motion.direction", image, fmt.Sprintf("must be right, left, up or down, got %q", m.Direction))
		}
		if !finite(m.Intensity) || m.Intensity < 0 || m.Intensity > MaxMotionIntensity {
			return NewConfigError("effects.motion.intensity", image, fmt.Sprintf("must be within [0, %g], got %v", MaxMotionIntensity, m.Intensity))
		}
	}
	if f := s.Fade; f != nil {
		switch f.FadeType() {
		case "in", "out", "inout":
		default:
			return NewConfigError("effects.fade.type", image, fmt.Sprintf("must be in, out or inout, got %q", f.Type))
		}
		if d := f.Seconds(); !finite(d) || d <= 0 {
			return NewConfigError("effects.fade.duration", image, fmt.Sprintf("must be positive, got %v", d))
		}
	}
	if d := s.Darken; d != nil {
		if !finite(d.Amount) || d.Amount < 0 || d.Amount > 1 {
			return NewConfigError("effects.darken.amount", image, fmt.Sprintf("must be within [0, 1], got %v", d.Amount))
		}
	}
	if v := s.Vignette; v != nil {
		if a := v.AngleRadians(); !finite(a) || a < 0 || a > MaxVignetteAngle {
			return NewConfigError("effects.vignette.angle", image, fmt.Sprintf("must be within [0, %.4f], got %v", MaxVignetteAngle, a))
		}
		switch v.EvalMode() {
		case "init", "frame":
		default:
			return NewConfigError("effects.vignette.eval", image, fmt.Sprintf("must be init or frame, got %q", v.Eval))
		}
	}
	if f := s.Focus; f != nil {
		if f.Target == nil && !f.Auto {
			return NewConfigError("effects.focus.target", image, "is required unless auto is set")
		}
		if f.Source != nil && (!finite(f.Source.Width) || !finite(f.Source.Height) || f.Source.Width <= 0 || f.Source.Height <= 0) {
			return &GeometryError{Image: image, Field: "effects.focus.source", Msg: fmt.Sprintf("dimensions must be positive, got %vx%v", f.Source.Width, f.Source.Height)}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
