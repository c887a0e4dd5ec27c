package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// End policies for scene boundaries.
const (
	EndPolicyHold    = "hold"
	EndPolicySegment = "segment"
)

// Config holds the settings of one run. The CLI fills it from flags.
type Config struct {
	AudioPath      string
	ImagesDir      string
	MappingPath    string
	OutputDir      string
	SegmentsPath   string
	// TranscriptPath, when set, is read instead of running transcription.
	TranscriptPath string
	TimelinePath   string
	ManifestPath   string
	OutputVideo    string
	WorkDir        string

	Width        int
	Height       int
	FPS          int
	Preset       string
	Workers      int
	VideoEncoder string
	Quality      int
	Oversample   int

	EndPolicy       string
	RefineSentences bool
	Debug           bool
	FocusDetector   string

	Whisper   WhisperConfig
	CachePath string

	LogLevel     string
	LogFormat    string
	BuildVersion string
}

// WhisperConfig configures the whisper.cpp transcription binary.
type WhisperConfig struct {
	BinaryPath string
	ModelPath  string
	Language   string
	Threads    int
}

// SegmentParams describes the output frame of one rendered scene.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	Oversample    int
	SceneIndex    int
	Debug         bool
}

// ApplyPreset overrides width and height for a named aspect preset.
func (c *Config) ApplyPreset() error {
	switch c.Preset {
	case "":
	case "16:9":
		c.Width, c.Height = 1920, 1080
	case "9:16":
		c.Width, c.Height = 1080, 1920
	case "4:5":
		c.Width, c.Height = 1080, 1350
	default:
		return NewConfigError("preset", "", fmt.Sprintf("unknown preset %q (use 16:9, 9:16 or 4:5)", c.Preset))
	}
	return nil
}

// Validate fills defaults and checks the render settings.
func (c *Config) Validate() error {
	if err := c.ApplyPreset(); err != nil {
		return err
	}
	if c.Width == 0 {
		c.Width = 1920
	}
	if c.Height == 0 {
		c.Height = 1080
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.Width < 0 || c.Height < 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return NewConfigError("size", "", fmt.Sprintf("width and height must be positive and even, got %dx%d", c.Width, c.Height))
	}
	if c.FPS < 0 {
		return NewConfigError("fps", "", fmt.Sprintf("must be positive, got %d", c.FPS))
	}
	if c.Oversample <= 0 {
		c.Oversample = 2
	}
	if c.VideoEncoder == "" {
		c.VideoEncoder = "libx264"
	}

	c.EndPolicy = strings.ToLower(strings.TrimSpace(c.EndPolicy))
	switch c.EndPolicy {
	case "":
		c.EndPolicy = EndPolicyHold
	case EndPolicyHold, EndPolicySegment:
	default:
		return NewConfigError("end_policy", "", fmt.Sprintf("must be %s or %s, got %q", EndPolicyHold, EndPolicySegment, c.EndPolicy))
	}

	if c.OutputDir == "" {
		c.OutputDir = "out"
	}
	if c.SegmentsPath == "" {
		c.SegmentsPath = filepath.Join(c.OutputDir, "segments.yaml")
	}
	if c.TimelinePath == "" {
		c.TimelinePath = filepath.Join(c.OutputDir, "timeline.yaml")
	}
	if c.ManifestPath == "" {
		c.ManifestPath = filepath.Join(c.OutputDir, "render_manifest.yaml")
	}
	if c.OutputVideo == "" {
		c.OutputVideo = filepath.Join(c.OutputDir, "output.mp4")
	}

	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.OutputDir, "work")
	}

	if c.Whisper.BinaryPath == "" {
		c.Whisper.BinaryPath = "whisper-cli"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}
	return nil
}

// DefaultQuality picks an encoder specific quality value when none is set.
func (c *Config) DefaultQuality() int {
	if c.Quality > 0 {
		return c.Quality
	}
	switch c.VideoEncoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}
