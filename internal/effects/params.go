package effects

import (
	"fmt"
	"math"

	"github.com/ivlev/phrase2video/internal/config"
)

// Params is the compiled, render-ready form of one scene's EffectSpec.
// Nil axes are identity.
type Params struct {
	Duration float64         `json:"duration" yaml:"duration"`
	Zoom     *ZoomParams     `json:"zoom,omitempty" yaml:"zoom,omitempty"`
	Motion   *MotionParams   `json:"motion,omitempty" yaml:"motion,omitempty"`
	Focus    *FocusParams    `json:"focus,omitempty" yaml:"focus,omitempty"`
	Fade     *FadeParams     `json:"fade,omitempty" yaml:"fade,omitempty"`
	Darken   *DarkenParams   `json:"darken,omitempty" yaml:"darken,omitempty"`
	Vignette *VignetteParams `json:"vignette,omitempty" yaml:"vignette,omitempty"`
}

// ZoomParams is a linear scale ramp from From to To over Ramp seconds,
// holding To for the rest of the scene.
type ZoomParams struct {
	From     float64 `json:"from" yaml:"from"`
	To       float64 `json:"to" yaml:"to"`
	Ramp     float64 `json:"ramp" yaml:"ramp"`
	Implicit bool    `json:"implicit,omitempty" yaml:"implicit,omitempty"`
}

// MotionParams moves the crop center by (DX, DY) times the crop slack
// (1 - 1/zoom) by the end of the ramp.
type MotionParams struct {
	Direction string  `json:"direction" yaml:"direction"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
	DX        float64 `json:"dx" yaml:"dx"`
	DY        float64 `json:"dy" yaml:"dy"`
}

// FocusParams anchors the camera on Target. CenterX and CenterY are the
// target center normalized by Source.
type FocusParams struct {
	Source  config.Size `json:"source" yaml:"source"`
	Target  config.Rect `json:"target" yaml:"target"`
	CenterX float64     `json:"center_x" yaml:"center_x"`
	CenterY float64     `json:"center_y" yaml:"center_y"`
}

// Window is an alpha ramp within the scene, in seconds from scene start.
type Window struct {
	Start    float64 `json:"start" yaml:"start"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// FadeParams holds the fade-in and fade-out windows; either may be nil.
type FadeParams struct {
	Type string  `json:"type" yaml:"type"`
	In   *Window `json:"in,omitempty" yaml:"in,omitempty"`
	Out  *Window `json:"out,omitempty" yaml:"out,omitempty"`
}

// DarkenParams maps amount onto an eq brightness offset.
type DarkenParams struct {
	Amount     float64 `json:"amount" yaml:"amount"`
	Brightness float64 `json:"brightness" yaml:"brightness"`
}

// VignetteParams is passed through to the vignette filter.
type VignetteParams struct {
	Angle float64 `json:"angle" yaml:"angle"`
	Eval  string  `json:"eval" yaml:"eval"`
}

// Point is a position normalized to the image, (0.5, 0.5) being its center.
type Point struct {
	X, Y float64
}

// darkenBrightness is the eq brightness reached at amount 1.
const darkenBrightness = -0.3

var directions = map[string]Point{
	"right": {1, 0},
	"left":  {-1, 0},
	"up":    {0, -1},
	"down":  {0, 1},
}

// Compile turns an effect spec into render parameters for a scene of the
// given duration showing an image of natural size dims. It is a pure
// function of its arguments.
func Compile(duration float64, dims config.Size, spec *config.EffectSpec) (Params, error) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return Params{}, config.NewConfigError("duration", "", fmt.Sprintf("scene duration must be finite and non-negative, got %v", duration))
	}
	p := Params{Duration: duration}
	if spec.IsEmpty() {
		return p, nil
	}
	if err := spec.Validate(""); err != nil {
		return Params{}, err
	}

	switch {
	case spec.Zoom != nil:
		z := spec.Zoom
		ramp := duration
		if z.Duration != nil && *z.Duration < duration {
			ramp = *z.Duration
		}
		p.Zoom = &ZoomParams{From: 1, To: z.Scale, Ramp: ramp}
		if z.ZoomType() == "out" {
			p.Zoom.From, p.Zoom.To = z.Scale, 1
		}
	case spec.Motion != nil || spec.Focus != nil:
		p.Zoom = &ZoomParams{From: 1, To: config.DefaultImplicitZoom, Ramp: duration, Implicit: true}
	}

	if m := spec.Motion; m != nil {
		dir := m.DirectionName()
		v := directions[dir]
		p.Motion = &MotionParams{
			Direction: dir,
			Intensity: m.Intensity,
			DX:        v.X * m.Intensity,
			DY:        v.Y * m.Intensity,
		}
	}

	if f := spec.Focus; f != nil {
		focus, err := compileFocus(f, dims)
		if err != nil {
			return Params{}, err
		}
		p.Focus = focus
	}

	if f := spec.Fade; f != nil {
		fade, err := compileFade(f, duration)
		if err != nil {
			return Params{}, err
		}
		p.Fade = fade
	}

	if d := spec.Darken; d != nil {
		p.Darken = &DarkenParams{Amount: d.Amount, Brightness: darkenBrightness * d.Amount}
	}

	if v := spec.Vignette; v != nil {
		p.Vignette = &VignetteParams{Angle: v.AngleRadians(), Eval: v.EvalMode()}
	}

	return p, nil
}

func compileFocus(f *config.FocusSpec, dims config.Size) (*FocusParams, error) {
	src := dims
	if f.Source != nil {
		src = *f.Source
	}
	if !(src.Width > 0) || !(src.Height > 0) || math.IsInf(src.Width, 0) || math.IsInf(src.Height, 0) {
		return nil, &config.GeometryError{Field: "effects.focus.source", Msg: fmt.Sprintf("dimensions must be positive, got %vx%v", src.Width, src.Height)}
	}
	if f.Target == nil {
		return nil, config.NewConfigError("effects.focus.target", "", "auto focus was not resolved to a target")
	}

	r := *f.Target
	if !(r.Width > 0) || !(r.Height > 0) {
		return nil, &config.GeometryError{Field: "effects.focus.target", Msg: fmt.Sprintf("dimensions must be positive, got %vx%v", r.Width, r.Height)}
	}
	if !(r.X >= 0) || !(r.Y >= 0) || !(r.X+r.Width <= src.Width) || !(r.Y+r.Height <= src.Height) {
		return nil, &config.GeometryError{Field: "effects.focus.target", Msg: fmt.Sprintf("rectangle %v,%v %vx%v is outside source %vx%v", r.X, r.Y, r.Width, r.Height, src.Width, src.Height)}
	}

	return &FocusParams{
		Source:  src,
		Target:  r,
		CenterX: (r.X + r.Width/2) / src.Width,
		CenterY: (r.Y + r.Height/2) / src.Height,
	}, nil
}

func compileFade(f *config.FadeSpec, duration float64) (*FadeParams, error) {
	typ := f.FadeType()
	d := f.Seconds()

	need := d
	if typ == "inout" {
		need = 2 * d
	}
	if need > duration {
		return nil, config.NewConfigError("effects.fade.duration", "", fmt.Sprintf("%s fade of %vs does not fit a %vs scene", typ, d, duration))
	}

	fade := &FadeParams{Type: typ}
	if typ == "in" || typ == "inout" {
		fade.In = &Window{Start: 0, Duration: d}
	}
	if typ == "out" || typ == "inout" {
		fade.Out = &Window{Start: duration - d, Duration: d}
	}
	return fade, nil
}

// HasCamera reports whether the scene needs a zoompan stage.
func (p Params) HasCamera() bool {
	return p.Zoom != nil
}

// Progress returns the ramp progress in [0,1] at t seconds into the scene.
func (p Params) Progress(t float64) float64 {
	ramp := p.Duration
	if p.Zoom != nil {
		ramp = p.Zoom.Ramp
	}
	if ramp <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, t/ramp))
}

// ScaleAt returns the zoom factor at t seconds into the scene.
func (p Params) ScaleAt(t float64) float64 {
	if p.Zoom == nil {
		return 1
	}
	return p.Zoom.From + (p.Zoom.To-p.Zoom.From)*p.Progress(t)
}

// CenterAt returns the unclamped crop center at t seconds into the scene.
func (p Params) CenterAt(t float64) Point {
	prog := p.Progress(t)
	c := Point{X: 0.5, Y: 0.5}
	if p.Focus != nil {
		c.X += (p.Focus.CenterX - 0.5) * prog
		c.Y += (p.Focus.CenterY - 0.5) * prog
	}
	if p.Motion != nil {
		slack := 1 - 1/p.ScaleAt(t)
		c.X += p.Motion.DX * slack * prog
		c.Y += p.Motion.DY * slack * prog
	}
	return c
}

// WindowAt returns the crop rectangle at t seconds for an image of w x h
// pixels. The window is sized by the current zoom and its center is clamped
// so the rectangle stays within [0,w] x [0,h].
func (p Params) WindowAt(t, w, h float64) config.Rect {
	z := p.ScaleAt(t)
	ww, wh := w/z, h/z
	c := p.CenterAt(t)
	cx := math.Max(ww/2, math.Min(w-ww/2, c.X*w))
	cy := math.Max(wh/2, math.Min(h-wh/2, c.Y*h))
	return config.Rect{X: cx - ww/2, Y: cy - wh/2, Width: ww, Height: wh}
}

// AlphaAt returns the fade opacity at t seconds into the scene.
func (p Params) AlphaAt(t float64) float64 {
	if p.Fade == nil {
		return 1
	}
	alpha := 1.0
	if w := p.Fade.In; w != nil && t < w.Start+w.Duration {
		alpha = math.Min(alpha, math.Max(0, (t-w.Start)/w.Duration))
	}
	if w := p.Fade.Out; w != nil && t > w.Start {
		alpha = math.Min(alpha, math.Max(0, 1-(t-w.Start)/w.Duration))
	}
	return alpha
}
