package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ivlev/phrase2video/internal/effects"
	"github.com/ivlev/phrase2video/internal/timeline"
)

func TestNewAssignsRunID(t *testing.T) {
	a := New(&timeline.Timeline{}, Settings{})
	b := New(&timeline.Timeline{}, Settings{})
	if _, err := uuid.Parse(a.RunID); err != nil {
		t.Fatalf("invalid run id %q: %v", a.RunID, err)
	}
	if a.RunID == b.RunID {
		t.Error("run ids should be unique")
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestWriteRead(t *testing.T) {
	tl := &timeline.Timeline{
		Version: timeline.Version,
		FPS:     30,
		Scenes:  []timeline.Scene{{Image: "a.png", Start: 0, End: 2, Duration: 2}},
	}
	m := New(tl, Settings{Width: 1920, Height: 1080, FPS: 30, Encoder: "libx264", Quality: 23})
	m.Scenes = []SceneRender{{
		Index: 0, Image: "a.png", Path: "/img/a.png", Start: 0, End: 2,
		Params: effects.Params{Duration: 2, Darken: &effects.DarkenParams{Amount: 1, Brightness: -0.3}},
		Filter: "eq=brightness=-0.300000",
	}}
	m.FFmpegArgs = []string{"-y", "out.mp4"}

	path := filepath.Join(t.TempDir(), "render_manifest.yaml")
	if err := Write(path, m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got.RunID != m.RunID {
		t.Errorf("run id changed: %s -> %s", m.RunID, got.RunID)
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", m.CreatedAt, got.CreatedAt)
	}
	if got.Settings.Quality != 23 || len(got.Timeline.Scenes) != 1 {
		t.Errorf("unexpected manifest %+v", got)
	}
	if p := got.Scenes[0].Params; p.Darken == nil || p.Darken.Brightness != -0.3 {
		t.Errorf("params lost: %+v", p)
	}
}

func TestReadRejectsMissingRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	if err := os.WriteFile(path, []byte("settings:\n  fps: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected error for a manifest without run id")
	}
}
