// Package timeline turns transcript segments and phrase rules into an ordered,
// non-overlapping list of scenes.
package timeline

import (
	"fmt"

	"github.com/ivlev/phrase2video/internal/config"
)

// Version of the persisted timeline record.
const Version = "1.0"

// Segment is one timestamped transcript unit.
type Segment struct {
	Index int     `json:"id" yaml:"id"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Text  string  `json:"text" yaml:"text"`
}

// Transcript is the persisted output of the transcription stage.
type Transcript struct {
	Language string    `json:"language,omitempty" yaml:"language,omitempty"`
	Duration float64   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// Scene shows one image for [Start, End).
type Scene struct {
	Image    string             `yaml:"image"`
	Start    float64            `yaml:"start"`
	End      float64            `yaml:"end"`
	Duration float64            `yaml:"duration"`
	Effects  *config.EffectSpec `yaml:"effects,omitempty"`
	Source   SceneSource        `yaml:"source"`
}

// SceneSource records which segment and phrase produced a scene.
type SceneSource struct {
	SegmentIndex int     `yaml:"segment_id"`
	SegmentText  string  `yaml:"segment_text"`
	Phrase       string  `yaml:"matched_text"`
	Similarity   float64 `yaml:"similarity"`
}

// Audio describes the soundtrack the timeline was built against.
type Audio struct {
	Path     string  `yaml:"path,omitempty"`
	Duration float64 `yaml:"duration,omitempty"`
}

// Timeline is the ordered scene list of one run.
type Timeline struct {
	Version   string  `yaml:"version"`
	Audio     Audio   `yaml:"audio"`
	FPS       int     `yaml:"fps,omitempty"`
	Threshold float64 `yaml:"similarity_threshold"`
	EndPolicy string  `yaml:"end_policy"`
	Scenes    []Scene `yaml:"scenes"`
}

// Validate checks the scene invariants: chronological, non-overlapping,
// non-negative durations and every image used at most once.
func (t *Timeline) Validate() error {
	seen := make(map[string]int, len(t.Scenes))
	for i, s := range t.Scenes {
		if s.Image == "" {
			return config.NewConfigError(fmt.Sprintf("scenes[%d].image", i), "", "must not be empty")
		}
		if prev, ok := seen[s.Image]; ok {
			return config.NewConfigError(fmt.Sprintf("scenes[%d].image", i), s.Image, fmt.Sprintf("already used by scenes[%d]", prev))
		}
		seen[s.Image] = i
		if !(s.End >= s.Start) || s.Start < 0 {
			return config.NewConfigError(fmt.Sprintf("scenes[%d]", i), s.Image, fmt.Sprintf("invalid range [%v, %v]", s.Start, s.End))
		}
		if i+1 < len(t.Scenes) && s.End > t.Scenes[i+1].Start {
			return config.NewConfigError(fmt.Sprintf("scenes[%d].end", i), s.Image, fmt.Sprintf("%v overlaps next scene start %v", s.End, t.Scenes[i+1].Start))
		}
	}
	return nil
}

// End returns the end of the last scene, or 0 for an empty timeline.
func (t *Timeline) End() float64 {
	if len(t.Scenes) == 0 {
		return 0
	}
	return t.Scenes[len(t.Scenes)-1].End
}
