package effects

import (
	"fmt"
	"math"
	"strings"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/renderer"
	"github.com/ivlev/phrase2video/internal/system"
)

type Effect interface {
	GenerateFilter(params config.SegmentParams) string
}

// New returns the effect that renders p: a camera effect when the scene
// zooms, pans or focuses, a static fit otherwise.
func New(p Params) Effect {
	if p.HasCamera() {
		return &CameraEffect{Params: p}
	}
	return &DefaultEffect{Params: p}
}

// FilterChain is the complete per-scene filter graph for one input stream.
func FilterChain(p Params, sp config.SegmentParams) string {
	return New(p).GenerateFilter(sp)
}

// DefaultEffect fits the image into the frame without camera movement.
type DefaultEffect struct {
	Params Params
}

func (e *DefaultEffect) GenerateFilter(p config.SegmentParams) string {
	chain := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", p.Width, p.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", p.Width, p.Height),
		"setsar=1",
	}
	chain = append(chain, debugFilters(p)...)
	chain = append(chain, toneFilters(e.Params)...)
	return strings.Join(append(chain, tailFilters(p)...), ",")
}

// CameraEffect renders zoom, motion and focus with zoompan on an
// oversampled canvas, then downscales to the output size.
type CameraEffect struct {
	Params Params
}

func (e *CameraEffect) GenerateFilter(p config.SegmentParams) string {
	over := p.Oversample
	if over < 1 {
		over = 1
	}
	ow, oh := p.Width*over, p.Height*over

	chain := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", ow, oh),
		fmt.Sprintf("crop=%d:%d", ow, oh),
		renderer.GenerateZoomPanFilter(e.Camera(p.FPS), totalFrames(p), p.FPS, ow, oh),
		fmt.Sprintf("scale=%d:%d:flags=lanczos", p.Width, p.Height),
		"setsar=1",
	}
	chain = append(chain, debugFilters(p)...)
	chain = append(chain, toneFilters(e.Params)...)
	return strings.Join(append(chain, tailFilters(p)...), ",")
}

// Camera converts the compiled zoom, focus and motion axes into the
// frame-based path zoompan evaluates.
func (e *CameraEffect) Camera(fps int) renderer.Camera {
	cam := renderer.StaticCamera()
	if z := e.Params.Zoom; z != nil {
		cam.FromZoom, cam.ToZoom = z.From, z.To
		cam.RampFrames = max(1, int(math.Round(z.Ramp*float64(fps))))
	}
	if f := e.Params.Focus; f != nil {
		cam.FocusX, cam.FocusY = f.CenterX, f.CenterY
	}
	if m := e.Params.Motion; m != nil {
		cam.ShiftX, cam.ShiftY = m.DX, m.DY
	}
	return cam
}

func totalFrames(p config.SegmentParams) int {
	return max(1, int(math.Round(p.Duration*float64(p.FPS))))
}

// toneFilters applies fade, darken and vignette in that order.
func toneFilters(p Params) []string {
	var out []string
	if f := p.Fade; f != nil {
		if w := f.In; w != nil {
			out = append(out, fmt.Sprintf("fade=t=in:st=%.6f:d=%.6f", w.Start, w.Duration))
		}
		if w := f.Out; w != nil {
			out = append(out, fmt.Sprintf("fade=t=out:st=%.6f:d=%.6f", w.Start, w.Duration))
		}
	}
	if d := p.Darken; d != nil {
		out = append(out, fmt.Sprintf("eq=brightness=%.6f", d.Brightness))
	}
	if v := p.Vignette; v != nil {
		out = append(out, fmt.Sprintf("vignette=angle=%.6f:eval=%s", v.Angle, v.Eval))
	}
	return out
}

// tailFilters pin the frame rate, exact duration and pixel format so scenes
// concatenate cleanly.
func tailFilters(p config.SegmentParams) []string {
	return []string{
		fmt.Sprintf("fps=%d", p.FPS),
		fmt.Sprintf("trim=duration=%.6f", p.Duration),
		"format=yuv420p",
	}
}

func debugFilters(p config.SegmentParams) []string {
	if !p.Debug || !system.CheckFilterSupport("drawtext") {
		return nil
	}
	return []string{renderer.GenerateDebugTextFilter(p.SceneIndex)}
}
