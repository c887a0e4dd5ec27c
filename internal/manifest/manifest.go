// Package manifest records exactly what was rendered: the timeline, the
// compiled per-scene parameters and the ffmpeg invocation.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/phrase2video/internal/effects"
	"github.com/ivlev/phrase2video/internal/timeline"
)

// Settings are the render settings in effect for a run.
type Settings struct {
	Version    string  `yaml:"version,omitempty"`
	Mapping    string  `yaml:"mapping,omitempty"`
	Audio      string  `yaml:"audio,omitempty"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        int     `yaml:"fps"`
	Oversample int     `yaml:"oversample"`
	Encoder    string  `yaml:"encoder"`
	Quality    int     `yaml:"quality"`
	Threshold  float64 `yaml:"similarity_threshold"`
	EndPolicy  string  `yaml:"end_policy"`
}

// SceneRender is one scene as handed to the encoder.
type SceneRender struct {
	Index  int            `yaml:"index"`
	Image  string         `yaml:"image"`
	Path   string         `yaml:"path"`
	Start  float64        `yaml:"start"`
	End    float64        `yaml:"end"`
	Params effects.Params `yaml:"params"`
	Filter string         `yaml:"filter,omitempty"`
}

type Manifest struct {
	RunID      string             `yaml:"run_id"`
	CreatedAt  time.Time          `yaml:"created_at"`
	Output     string             `yaml:"output"`
	Settings   Settings           `yaml:"settings"`
	Timeline   *timeline.Timeline `yaml:"timeline"`
	Scenes     []SceneRender      `yaml:"scenes"`
	FFmpegArgs []string           `yaml:"ffmpeg_args,omitempty"`
}

// New starts a manifest with a fresh run id.
func New(tl *timeline.Timeline, settings Settings) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Settings:  settings,
		Timeline:  tl,
	}
}

// Write writes a manifest to a YAML file
func Write(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Read reads a manifest from a YAML file
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if _, err := uuid.Parse(m.RunID); err != nil {
		return nil, fmt.Errorf("manifest %s: invalid run id %q: %w", path, m.RunID, err)
	}
	return &m, nil
}
