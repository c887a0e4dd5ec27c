package effects

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/renderer"
	"github.com/ivlev/phrase2video/internal/timeline"
)

func f64(v float64) *float64 { return &v }

var hd = config.Size{Width: 1920, Height: 1080}

func mustCompile(t *testing.T, duration float64, spec *config.EffectSpec) Params {
	t.Helper()
	p, err := Compile(duration, hd, spec)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return p
}

func TestCompileEmpty(t *testing.T) {
	for _, spec := range []*config.EffectSpec{nil, {}} {
		p := mustCompile(t, 4, spec)
		if p.HasCamera() || p.Fade != nil || p.Darken != nil || p.Vignette != nil {
			t.Errorf("empty spec produced axes: %+v", p)
		}
		if p.ScaleAt(2) != 1 || p.AlphaAt(0) != 1 {
			t.Errorf("empty spec should be identity")
		}
	}
}

func TestZoomMonotonic(t *testing.T) {
	tests := []struct {
		name       string
		zoom       config.ZoomSpec
		duration   float64
		from, to   float64
		ramp       float64
		increasing bool
	}{
		{"in over scene", config.ZoomSpec{Type: "in", Scale: 1.5}, 4, 1, 1.5, 4, true},
		{"out over scene", config.ZoomSpec{Type: "out", Scale: 2}, 4, 2, 1, 4, false},
		{"in with short ramp", config.ZoomSpec{Type: "in", Scale: 1.3, Duration: f64(1)}, 4, 1, 1.3, 1, true},
		{"ramp longer than scene", config.ZoomSpec{Type: "out", Scale: 1.2, Duration: f64(10)}, 3, 1.2, 1, 3, false},
		{"default type", config.ZoomSpec{Scale: 1.1}, 2, 1, 1.1, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustCompile(t, tt.duration, &config.EffectSpec{Zoom: &tt.zoom})
			if p.Zoom.From != tt.from || p.Zoom.To != tt.to || p.Zoom.Ramp != tt.ramp {
				t.Fatalf("zoom = %+v", p.Zoom)
			}

			prev := p.ScaleAt(0)
			if prev != tt.from {
				t.Errorf("start scale %v, want %v", prev, tt.from)
			}
			for i := 1; i <= 100; i++ {
				cur := p.ScaleAt(tt.duration * float64(i) / 100)
				if tt.increasing && cur < prev || !tt.increasing && cur > prev {
					t.Fatalf("scale not monotonic at step %d: %v -> %v", i, prev, cur)
				}
				prev = cur
			}
			if math.Abs(p.ScaleAt(tt.ramp)-tt.to) > 1e-12 || p.ScaleAt(tt.duration) != p.ScaleAt(tt.ramp) {
				t.Errorf("scale should hold %v after the ramp", tt.to)
			}
		})
	}
}

func TestImplicitZoom(t *testing.T) {
	p := mustCompile(t, 5, &config.EffectSpec{Motion: &config.MotionSpec{Direction: "left", Intensity: 0.2}})
	if p.Zoom == nil || !p.Zoom.Implicit || p.Zoom.To != config.DefaultImplicitZoom || p.Zoom.Ramp != 5 {
		t.Fatalf("expected implicit zoom, got %+v", p.Zoom)
	}
	if p.Motion.DX != -0.2 || p.Motion.DY != 0 {
		t.Errorf("left motion vector = %v,%v", p.Motion.DX, p.Motion.DY)
	}
}

func TestMotionDirections(t *testing.T) {
	tests := []struct {
		dir    string
		dx, dy float64
	}{
		{"right", 1, 0},
		{"left", -1, 0},
		{"up", 0, -1},
		{"down", 0, 1},
		{"", 1, 0},
	}

	for _, tt := range tests {
		spec := &config.EffectSpec{
			Zoom:   &config.ZoomSpec{Scale: 2},
			Motion: &config.MotionSpec{Direction: tt.dir, Intensity: 0.5},
		}
		p := mustCompile(t, 2, spec)
		end := p.CenterAt(2)
		// slack at zoom 2 is 0.5, so the center moves by 0.25 of the frame.
		if math.Abs(end.X-(0.5+0.25*tt.dx)) > 1e-12 || math.Abs(end.Y-(0.5+0.25*tt.dy)) > 1e-12 {
			t.Errorf("%q: end center %+v", tt.dir, end)
		}
		w := p.WindowAt(2, hd.Width, hd.Height)
		if w.X < 0 || w.Y < 0 || w.X+w.Width > hd.Width+1e-9 || w.Y+w.Height > hd.Height+1e-9 {
			t.Errorf("%q: window %+v leaves the frame", tt.dir, w)
		}
	}
}

func TestFocusCenter(t *testing.T) {
	spec := &config.EffectSpec{
		Zoom: &config.ZoomSpec{Type: "in", Scale: 2},
		Focus: &config.FocusSpec{
			Source: &config.Size{Width: 1000, Height: 500},
			Target: &config.Rect{X: 600, Y: 100, Width: 200, Height: 100},
		},
	}
	p := mustCompile(t, 4, spec)

	if p.Focus.CenterX != 0.7 || p.Focus.CenterY != 0.3 {
		t.Fatalf("normalized center = %v,%v", p.Focus.CenterX, p.Focus.CenterY)
	}
	if c := p.CenterAt(0); c.X != 0.5 || c.Y != 0.5 {
		t.Errorf("focus should start at the image center, got %+v", c)
	}
	if c := p.CenterAt(2); math.Abs(c.X-0.6) > 1e-12 || math.Abs(c.Y-0.4) > 1e-12 {
		t.Errorf("focus midway = %+v", c)
	}
	w := p.WindowAt(4, 1000, 500)
	if math.Abs(w.X-450) > 1e-9 || math.Abs(w.Y-25) > 1e-9 || w.Width != 500 || w.Height != 250 {
		t.Errorf("final window = %+v", w)
	}
}

func TestFocusClamping(t *testing.T) {
	targets := []config.Rect{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 1910, Y: 1070, Width: 10, Height: 10},
		{X: 0, Y: 1000, Width: 1920, Height: 80},
		{X: 1800, Y: 0, Width: 120, Height: 1080},
	}
	motions := []*config.MotionSpec{nil, {Direction: "right", Intensity: 0.5}, {Direction: "up", Intensity: 0.5}}

	for ti, target := range targets {
		for mi, motion := range motions {
			for _, scale := range []float64{1.1, 1.8, 3} {
				spec := &config.EffectSpec{
					Zoom:   &config.ZoomSpec{Type: "in", Scale: scale},
					Motion: motion,
					Focus:  &config.FocusSpec{Target: &target},
				}
				p := mustCompile(t, 3, spec)
				for i := 0; i <= 30; i++ {
					tm := 3 * float64(i) / 30
					w := p.WindowAt(tm, hd.Width, hd.Height)
					if w.X < -1e-9 || w.Y < -1e-9 || w.X+w.Width > hd.Width+1e-9 || w.Y+w.Height > hd.Height+1e-9 {
						t.Fatalf("target %d motion %d scale %v t=%v: window %+v leaves the image", ti, mi, scale, tm, w)
					}
					if z := p.ScaleAt(tm); math.Abs(w.Width-hd.Width/z) > 1e-9 {
						t.Fatalf("clamping changed the window size at t=%v", tm)
					}
				}
			}
		}
	}
}

func TestFocusGeometryErrors(t *testing.T) {
	tests := []struct {
		name  string
		focus config.FocusSpec
		dims  config.Size
		field string
	}{
		{"target outside source", config.FocusSpec{Source: &config.Size{Width: 100, Height: 100}, Target: &config.Rect{X: 50, Y: 50, Width: 60, Height: 10}}, hd, "effects.focus.target"},
		{"negative origin", config.FocusSpec{Target: &config.Rect{X: -1, Y: 0, Width: 10, Height: 10}}, hd, "effects.focus.target"},
		{"zero target", config.FocusSpec{Target: &config.Rect{X: 10, Y: 10, Width: 0, Height: 10}}, hd, "effects.focus.target"},
		{"unknown natural size", config.FocusSpec{Target: &config.Rect{Width: 10, Height: 10}}, config.Size{}, "effects.focus.source"},
		{"zero source", config.FocusSpec{Source: &config.Size{Width: 0, Height: 10}, Target: &config.Rect{Width: 1, Height: 1}}, hd, "effects.focus.source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(2, tt.dims, &config.EffectSpec{Focus: &tt.focus})
			var geoErr *config.GeometryError
			if !errors.As(err, &geoErr) {
				t.Fatalf("expected GeometryError, got %v", err)
			}
			if geoErr.Field != tt.field {
				t.Errorf("field = %q, want %q", geoErr.Field, tt.field)
			}
		})
	}
}

func TestFade(t *testing.T) {
	p := mustCompile(t, 5, &config.EffectSpec{Fade: &config.FadeSpec{Type: "inout", Duration: f64(1.5)}})
	if p.Fade.In == nil || p.Fade.In.Start != 0 || p.Fade.In.Duration != 1.5 {
		t.Errorf("fade in window = %+v", p.Fade.In)
	}
	if p.Fade.Out == nil || p.Fade.Out.Start != 3.5 || p.Fade.Out.Duration != 1.5 {
		t.Errorf("fade out window = %+v", p.Fade.Out)
	}
	if p.AlphaAt(0) != 0 || p.AlphaAt(2.5) != 1 || p.AlphaAt(5) != 0 || math.Abs(p.AlphaAt(0.75)-0.5) > 1e-12 {
		t.Errorf("unexpected alpha curve")
	}

	out := mustCompile(t, 3, &config.EffectSpec{Fade: &config.FadeSpec{Type: "out"}})
	if out.Fade.In != nil || out.Fade.Out.Start != 2 || out.Fade.Out.Duration != config.DefaultFadeDuration {
		t.Errorf("fade out = %+v", out.Fade)
	}
}

func TestCompileConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		spec     config.EffectSpec
		field    string
	}{
		{"inout does not fit", 2.9, config.EffectSpec{Fade: &config.FadeSpec{Type: "inout", Duration: f64(1.5)}}, "effects.fade.duration"},
		{"in longer than scene", 1, config.EffectSpec{Fade: &config.FadeSpec{Type: "in", Duration: f64(2)}}, "effects.fade.duration"},
		{"intensity too high", 3, config.EffectSpec{Motion: &config.MotionSpec{Direction: "up", Intensity: 0.6}}, "effects.motion.intensity"},
		{"zoom scale", 3, config.EffectSpec{Zoom: &config.ZoomSpec{Type: "in", Scale: 1}}, "effects.zoom.scale"},
		{"darken amount", 3, config.EffectSpec{Darken: &config.DarkenSpec{Amount: 1.5}}, "effects.darken.amount"},
		{"vignette angle", 3, config.EffectSpec{Vignette: &config.VignetteSpec{Angle: f64(2)}}, "effects.vignette.angle"},
		{"unresolved auto focus", 3, config.EffectSpec{Focus: &config.FocusSpec{Auto: true}}, "effects.focus.target"},
		{"negative duration", -1, config.EffectSpec{}, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.duration, hd, &tt.spec)
			var cfgErr *config.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestDarkenAndVignette(t *testing.T) {
	p := mustCompile(t, 2, &config.EffectSpec{
		Darken:   &config.DarkenSpec{Amount: 0.5},
		Vignette: &config.VignetteSpec{},
	})
	if p.Darken.Brightness != -0.15 {
		t.Errorf("brightness = %v", p.Darken.Brightness)
	}
	if p.Vignette.Angle != config.DefaultVignetteAngle || p.Vignette.Eval != "init" {
		t.Errorf("vignette = %+v", p.Vignette)
	}
}

func TestFilterChain(t *testing.T) {
	sp := config.SegmentParams{Width: 1280, Height: 720, FPS: 25, Duration: 4, Oversample: 2}

	static := FilterChain(mustCompile(t, 4, &config.EffectSpec{Darken: &config.DarkenSpec{Amount: 1}}), sp)
	if strings.Contains(static, "zoompan") {
		t.Errorf("static scene should not use zoompan: %s", static)
	}
	for _, want := range []string{"scale=1280:720:force_original_aspect_ratio=decrease", "pad=1280:720", "eq=brightness=-0.300000"} {
		if !strings.Contains(static, want) {
			t.Errorf("static chain missing %q: %s", want, static)
		}
	}

	spec := &config.EffectSpec{
		Zoom:     &config.ZoomSpec{Type: "in", Scale: 1.5, Duration: f64(2)},
		Fade:     &config.FadeSpec{Type: "inout", Duration: f64(0.5)},
		Vignette: &config.VignetteSpec{Eval: "frame"},
	}
	chain := FilterChain(mustCompile(t, 4, spec), sp)
	for _, want := range []string{
		"scale=2560:1440:force_original_aspect_ratio=increase",
		"crop=2560:1440",
		"zoompan=z='1.000000+(0.500000)*min(on,50)/50'",
		"d=100:s=2560x1440:fps=25",
		"scale=1280:720:flags=lanczos",
		"fade=t=in:st=0.000000:d=0.500000",
		"fade=t=out:st=3.500000:d=0.500000",
		"vignette=angle=0.600000:eval=frame",
	} {
		if !strings.Contains(chain, want) {
			t.Errorf("chain missing %q:\n%s", want, chain)
		}
	}
	if !strings.HasSuffix(chain, "fps=25,trim=duration=4.000000,format=yuv420p") {
		t.Errorf("chain should end with fps, trim and format: %s", chain)
	}
}

func TestCameraMatchesWindow(t *testing.T) {
	spec := &config.EffectSpec{
		Zoom:   &config.ZoomSpec{Type: "in", Scale: 2},
		Motion: &config.MotionSpec{Direction: "down", Intensity: 0.4},
		Focus:  &config.FocusSpec{Target: &config.Rect{X: 1700, Y: 100, Width: 200, Height: 100}},
	}
	p := mustCompile(t, 2, spec)
	cam := (&CameraEffect{Params: p}).Camera(25)

	for n := 0; n <= 50; n += 5 {
		tm := float64(n) / 25
		s := renderer.Sample(cam, n, hd.Width, hd.Height)
		w := p.WindowAt(tm, hd.Width, hd.Height)
		if math.Abs(s.Zoom-p.ScaleAt(tm)) > 1e-9 {
			t.Errorf("frame %d: zoom %v vs %v", n, s.Zoom, p.ScaleAt(tm))
		}
		if math.Abs(s.X-(w.X+w.Width/2)) > 1e-6 || math.Abs(s.Y-(w.Y+w.Height/2)) > 1e-6 {
			t.Errorf("frame %d: camera %.3f,%.3f vs window center %.3f,%.3f", n, s.X, s.Y, w.X+w.Width/2, w.Y+w.Height/2)
		}
	}
}

func TestCompileTimeline(t *testing.T) {
	tl := &timeline.Timeline{Scenes: []timeline.Scene{
		{Image: "a.png", Start: 0, End: 2, Duration: 2, Effects: &config.EffectSpec{Zoom: &config.ZoomSpec{Scale: 1.2}}},
		{Image: "b.png", Start: 2, End: 2, Duration: 0},
		{Image: "c.png", Start: 2, End: 5, Duration: 3, Effects: &config.EffectSpec{Focus: &config.FocusSpec{Target: &config.Rect{Width: 10, Height: 10}}}},
	}}
	probed := map[string]bool{}
	dims := func(image string) (config.Size, error) {
		probed[image] = true
		return config.Size{Width: 100, Height: 100}, nil
	}

	params, err := CompileTimeline(context.Background(), tl, dims, 1)
	if err != nil {
		t.Fatalf("CompileTimeline failed: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	if params[0].Zoom == nil || params[0].Zoom.To != 1.2 {
		t.Errorf("scene 0 params = %+v", params[0])
	}
	if params[1].Duration != 0 || params[1].HasCamera() {
		t.Errorf("zero-length scene should get identity params: %+v", params[1])
	}
	if params[2].Focus == nil || params[2].Focus.Source.Width != 100 {
		t.Errorf("scene 2 focus = %+v", params[2].Focus)
	}
	if len(probed) != 1 || !probed["c.png"] {
		t.Errorf("only the focus scene needs probing, probed %v", probed)
	}
}

func TestCompileTimelineZeroLengthSceneEffects(t *testing.T) {
	tl := &timeline.Timeline{Scenes: []timeline.Scene{
		{Image: "a.png", Start: 1, End: 1, Duration: 0, Effects: &config.EffectSpec{Fade: &config.FadeSpec{Type: "inout", Duration: f64(1)}}},
		{Image: "b.png", Start: 1, End: 3, Duration: 2},
	}}

	_, err := CompileTimeline(context.Background(), tl, nil, 2)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "effects.fade.duration" || cfgErr.Image != "a.png" {
		t.Errorf("unexpected error: %v", cfgErr)
	}
}

func TestCompileTimelineJoinsErrors(t *testing.T) {
	tl := &timeline.Timeline{Scenes: []timeline.Scene{
		{Image: "a.png", Duration: 1, Effects: &config.EffectSpec{Fade: &config.FadeSpec{Type: "inout", Duration: f64(1)}}},
		{Image: "b.png", Duration: 1},
		{Image: "c.png", Duration: 1, Effects: &config.EffectSpec{Focus: &config.FocusSpec{
			Source: &config.Size{Width: 10, Height: 10},
			Target: &config.Rect{X: 5, Y: 5, Width: 10, Height: 10},
		}}},
	}}

	_, err := CompileTimeline(context.Background(), tl, nil, 4)
	if err == nil {
		t.Fatal("expected an error")
	}

	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Image != "a.png" {
		t.Errorf("expected ConfigError for a.png, got %v", err)
	}
	var geoErr *config.GeometryError
	if !errors.As(err, &geoErr) || geoErr.Image != "c.png" {
		t.Errorf("expected GeometryError for c.png, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "scene 0") || !strings.Contains(msg, "scene 2") || strings.Index(msg, "scene 0") > strings.Index(msg, "scene 2") {
		t.Errorf("errors should be reported in scene order: %s", msg)
	}
}
