package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gofrs/flock"

	"github.com/ivlev/phrase2video/internal/analyzer"
	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/manifest"
	"github.com/ivlev/phrase2video/internal/source"
	"github.com/ivlev/phrase2video/internal/timeline"
	"github.com/ivlev/phrase2video/internal/video"
)

type fakeTranscriber struct {
	tr    *timeline.Transcript
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*timeline.Transcript, error) {
	f.calls++
	cp := *f.tr
	cp.Segments = slices.Clone(f.tr.Segments)
	return &cp, nil
}

// recordingEncoder keeps the real argument assembly but never runs ffmpeg.
type recordingEncoder struct {
	video.FFmpegEncoder
	jobs []video.Job
}

func (e *recordingEncoder) Render(ctx context.Context, job video.Job) error {
	e.jobs = append(e.jobs, job)
	return nil
}

func writePNG(t *testing.T, path string, w, h int, square image.Rectangle) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if !square.Empty() {
		draw.Draw(img, square, image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

const testMapping = `rules:
  - image: intro.png
    text: "Hello world, this is the intro"
  - image: chart.png
    text: "look at the chart"
    effects:
      zoom: {type: in, scale: 1.2}
      fade: {type: in, duration: 0.5}
matching:
  similarity_threshold: 85
`

var testSegments = []timeline.Segment{
	{Index: 0, Start: 0, End: 2, Text: "hello world this is the intro"},
	{Index: 1, Start: 2.5, End: 5, Text: "now look at the chart"},
	{Index: 2, Start: 5, End: 8, Text: "thanks for watching"},
}

func newTestProject(t *testing.T, mapping string) (*VideoProject, *recordingEncoder, *fakeTranscriber) {
	t.Helper()
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	if err := os.MkdirAll(images, 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(images, "intro.png"), 64, 48, image.Rectangle{})
	writePNG(t, filepath.Join(images, "chart.png"), 64, 48, image.Rectangle{})
	writePNG(t, filepath.Join(images, "diagram.png"), 400, 300, image.Rect(250, 50, 350, 150))

	mappingPath := filepath.Join(dir, "mapping.yaml")
	if err := os.WriteFile(mappingPath, []byte(mapping), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		AudioPath:   filepath.Join(dir, "voice.wav"),
		ImagesDir:   images,
		MappingPath: mappingPath,
		OutputDir:   filepath.Join(dir, "out"),
		Width:       320,
		Height:      180,
		FPS:         30,
		Workers:     2,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	enc := &recordingEncoder{}
	tr := &fakeTranscriber{tr: &timeline.Transcript{Language: "en", Segments: testSegments}}
	p := &VideoProject{
		Config:      cfg,
		Transcriber: tr,
		Encoder:     enc,
		Resolver:    source.NewResolver(cfg.ImagesDir, cfg.WorkDir),
		Detector:    analyzer.NewContrastDetector(),
		Probe: func(ctx context.Context, path string) (float64, error) {
			return 10, nil
		},
	}
	return p, enc, tr
}

func TestRunProducesArtifacts(t *testing.T) {
	p, enc, tr := newTestProject(t, testMapping)

	m, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.calls)
	}

	if len(m.Timeline.Scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(m.Timeline.Scenes))
	}
	want := []struct {
		image      string
		start, end float64
	}{
		{"intro.png", 0, 2.5},
		{"chart.png", 2.5, 10},
	}
	for i, w := range want {
		s := m.Timeline.Scenes[i]
		if s.Image != w.image || math.Abs(s.Start-w.start) > 1e-9 || math.Abs(s.End-w.end) > 1e-9 {
			t.Errorf("scene %d = %s [%v, %v], want %s [%v, %v]", i, s.Image, s.Start, s.End, w.image, w.start, w.end)
		}
	}

	if len(enc.jobs) != 1 {
		t.Fatalf("encoder called %d times, want 1", len(enc.jobs))
	}
	job := enc.jobs[0]
	if len(job.Clips) != 2 {
		t.Errorf("got %d clips, want 2", len(job.Clips))
	}
	if job.AudioPath != p.Config.AudioPath || job.Output != p.Config.OutputVideo {
		t.Errorf("unexpected job paths: %+v", job)
	}
	if job.Quality != 23 {
		t.Errorf("Quality = %d, want libx264 default 23", job.Quality)
	}

	for _, path := range []string{p.Config.SegmentsPath, p.Config.TimelinePath, p.Config.ManifestPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}

	saved, err := manifest.Read(p.Config.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if saved.RunID != m.RunID {
		t.Errorf("manifest run id %q, want %q", saved.RunID, m.RunID)
	}
	if len(saved.Scenes) != 2 || saved.Scenes[1].Params.Zoom == nil {
		t.Errorf("manifest scenes not compiled: %+v", saved.Scenes)
	}
	if !slices.Contains(saved.FFmpegArgs, "-shortest") {
		t.Errorf("manifest ffmpeg args missing -shortest: %v", saved.FFmpegArgs)
	}

	tl, err := timeline.Read(p.Config.TimelinePath)
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	if tl.Audio.Duration != 10 || tl.EndPolicy != config.EndPolicyHold {
		t.Errorf("timeline audio/policy = %v/%q", tl.Audio.Duration, tl.EndPolicy)
	}
}

func TestRunFromTranscriptFile(t *testing.T) {
	p, enc, tr := newTestProject(t, testMapping)
	path := filepath.Join(t.TempDir(), "segments.json")
	if err := timeline.WriteTranscript(path, &timeline.Transcript{Segments: testSegments}); err != nil {
		t.Fatal(err)
	}
	p.Config.TranscriptPath = path

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.calls != 0 {
		t.Errorf("transcriber should not run when a transcript is given")
	}
	if len(enc.jobs) != 1 {
		t.Errorf("encoder called %d times, want 1", len(enc.jobs))
	}
}

func TestRenderFillsGapsWithBlack(t *testing.T) {
	p, enc, _ := newTestProject(t, testMapping)
	p.Config.EndPolicy = config.EndPolicySegment

	tl, err := p.Match(context.Background(), &timeline.Transcript{Segments: testSegments})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if _, err := p.Render(context.Background(), tl); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// intro [0,2], gap [2,2.5], chart [2.5,5], tail gap [5,10]
	clips := enc.jobs[0].Clips
	if len(clips) != 4 {
		t.Fatalf("got %d clips, want 4: %+v", len(clips), clips)
	}
	if clips[1].Path != "" || clips[3].Path != "" {
		t.Errorf("expected black gaps at 1 and 3: %+v", clips)
	}
	if math.Abs(clips[3].Duration-5) > 1e-9 {
		t.Errorf("tail gap = %v, want 5", clips[3].Duration)
	}
}

func TestMatchResolvesAutoFocus(t *testing.T) {
	mapping := `rules:
  - image: diagram.png
    text: "hello world this is the intro"
    effects:
      focus: {auto: true}
`
	p, _, _ := newTestProject(t, mapping)

	tl, err := p.Match(context.Background(), &timeline.Transcript{Segments: testSegments})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(tl.Scenes) != 1 {
		t.Fatalf("got %d scenes, want 1", len(tl.Scenes))
	}
	focus := tl.Scenes[0].Effects.Focus
	if focus == nil || focus.Target == nil || focus.Source == nil {
		t.Fatalf("focus not resolved: %+v", focus)
	}
	if focus.Source.Width != 400 || focus.Source.Height != 300 {
		t.Errorf("source = %+v, want 400x300", *focus.Source)
	}
	cx := focus.Target.X + focus.Target.Width/2
	cy := focus.Target.Y + focus.Target.Height/2
	if cx < 280 || cx > 320 || cy < 80 || cy > 120 {
		t.Errorf("focus center %.0f,%.0f not on the bright square", cx, cy)
	}
}

func TestMatchDropsUndetectedFocus(t *testing.T) {
	mapping := `rules:
  - image: intro.png
    text: "hello world this is the intro"
    effects:
      focus: {auto: true}
      darken: {amount: 0.5}
`
	p, _, _ := newTestProject(t, mapping)

	tl, err := p.Match(context.Background(), &timeline.Transcript{Segments: testSegments})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	eff := tl.Scenes[0].Effects
	if eff.Focus != nil {
		t.Errorf("focus should be dropped for a blank image: %+v", eff.Focus)
	}
	if eff.Darken == nil {
		t.Error("other effects must survive")
	}
}

func TestMatchRejectsBadMapping(t *testing.T) {
	mapping := `rules:
  - image: intro.png
    text: "intro"
matching:
  similarity_threshold: 120
`
	p, _, _ := newTestProject(t, mapping)

	_, err := p.Match(context.Background(), &timeline.Transcript{Segments: testSegments})
	var cerr *config.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "matching.similarity_threshold" {
		t.Fatalf("expected threshold ConfigError, got %v", err)
	}
}

func TestRenderReportsGeometryErrors(t *testing.T) {
	mapping := `rules:
  - image: intro.png
    text: "hello world this is the intro"
    effects:
      focus:
        target: {x: 50, y: 0, width: 100, height: 10}
`
	p, enc, _ := newTestProject(t, mapping)

	tl, err := p.Match(context.Background(), &timeline.Transcript{Segments: testSegments})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	_, err = p.Render(context.Background(), tl)
	var gerr *config.GeometryError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GeometryError, got %v", err)
	}
	if gerr.Image != "intro.png" {
		t.Errorf("error image = %q", gerr.Image)
	}
	if len(enc.jobs) != 0 {
		t.Error("encoder must not run after a compile failure")
	}
}

func TestRenderRespectsOutputLock(t *testing.T) {
	p, enc, _ := newTestProject(t, testMapping)
	if err := os.MkdirAll(p.Config.OutputDir, 0755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(filepath.Join(p.Config.OutputDir, LockFile))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("could not take lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	_, err = p.Render(context.Background(), &timeline.Timeline{Version: timeline.Version})
	if !errors.Is(err, ErrOutputLocked) {
		t.Fatalf("expected ErrOutputLocked, got %v", err)
	}
	if len(enc.jobs) != 0 {
		t.Error("encoder ran while output was locked")
	}
}

func TestAudioDurationFallback(t *testing.T) {
	p, _, _ := newTestProject(t, testMapping)
	p.Probe = func(ctx context.Context, path string) (float64, error) {
		return 0, errors.New("ffprobe not found")
	}

	tests := []struct {
		name string
		tr   *timeline.Transcript
		want float64
	}{
		{"transcript duration", &timeline.Transcript{Duration: 12, Segments: testSegments}, 12},
		{"last segment end", &timeline.Transcript{Segments: testSegments}, 8},
		{"empty", &timeline.Transcript{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.audioDuration(context.Background(), tt.tr); got != tt.want {
				t.Errorf("audioDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranscribeRequiresAudio(t *testing.T) {
	p, _, _ := newTestProject(t, testMapping)
	p.Config.AudioPath = ""

	_, err := p.Transcribe(context.Background())
	var cerr *config.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "audio" {
		t.Fatalf("expected audio ConfigError, got %v", err)
	}
}
