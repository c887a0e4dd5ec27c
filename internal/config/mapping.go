package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/phrase2video/internal/textnorm"
)

// Matching defaults.
const (
	ModeFullPhrase          = "full_phrase"
	DefaultSimilarityThresh = 85.0
)

// Rule maps one image to the phrase that triggers it.
type Rule struct {
	Image   string      `json:"image" yaml:"image" toml:"image"`
	Text    string      `json:"text" yaml:"text" toml:"text"`
	Effects *EffectSpec `json:"effects,omitempty" yaml:"effects,omitempty" toml:"effects,omitempty"`
}

// Matching configures phrase matching. Threshold is a similarity in [0,100].
type Matching struct {
	Mode                string   `json:"mode" yaml:"mode" toml:"mode"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty" yaml:"similarity_threshold,omitempty" toml:"similarity_threshold,omitempty"`
}

// Mapping is the phrase-to-image configuration file.
type Mapping struct {
	Rules    []Rule   `json:"rules" yaml:"rules" toml:"rules"`
	Matching Matching `json:"matching" yaml:"matching" toml:"matching"`
}

// Threshold returns the configured similarity threshold or the default.
func (m *Mapping) Threshold() float64 {
	if m.Matching.SimilarityThreshold == nil {
		return DefaultSimilarityThresh
	}
	return *m.Matching.SimilarityThreshold
}

// LoadMapping reads a mapping file. The format follows the extension:
// .toml uses TOML, .json uses JSON, anything else is parsed as YAML.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	m, err := ParseMapping(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseMapping decodes and validates mapping data. ext selects the decoder
// (".toml", ".json", or YAML for anything else). Unknown keys are ignored.
func ParseMapping(data []byte, ext string) (*Mapping, error) {
	var m Mapping
	var err error
	switch ext {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate trims rule fields and checks the mapping. Duplicate images, empty
// fields, an unsupported mode or an out-of-range threshold are ConfigErrors.
func (m *Mapping) Validate() error {
	if len(m.Rules) == 0 {
		return NewConfigError("rules", "", "must contain at least one rule")
	}

	seen := make(map[string]int, len(m.Rules))
	for i := range m.Rules {
		r := &m.Rules[i]
		r.Image = strings.TrimSpace(r.Image)
		r.Text = strings.TrimSpace(r.Text)

		if r.Image == "" {
			return NewConfigError(fmt.Sprintf("rules[%d].image", i), "", "must not be empty")
		}
		if r.Text == "" {
			return NewConfigError(fmt.Sprintf("rules[%d].text", i), r.Image, "must not be empty")
		}
		if textnorm.Normalize(r.Text) == "" {
			return NewConfigError(fmt.Sprintf("rules[%d].text", i), r.Image, fmt.Sprintf("%q has no letters or digits to match", r.Text))
		}
		if prev, ok := seen[r.Image]; ok {
			return NewConfigError(fmt.Sprintf("rules[%d].image", i), r.Image, fmt.Sprintf("duplicates rules[%d]", prev))
		}
		seen[r.Image] = i

		if err := r.Effects.Validate(r.Image); err != nil {
			return err
		}
	}

	mode := strings.TrimSpace(m.Matching.Mode)
	if mode == "" {
		mode = ModeFullPhrase
	}
	if mode != ModeFullPhrase {
		return NewConfigError("matching.mode", "", fmt.Sprintf("only %q is supported, got %q", ModeFullPhrase, m.Matching.Mode))
	}
	m.Matching.Mode = mode

	return ValidateThreshold(m.Threshold())
}

// ValidateThreshold checks that a similarity threshold lies in [0,100].
func ValidateThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return NewConfigError("matching.similarity_threshold", "", fmt.Sprintf("must be within [0, 100], got %v", v))
	}
	return nil
}

// SampleMapping is written by `match --init` as a starting point.
const SampleMapping = `# Each rule shows one image when its phrase is spoken.
rules:
  - image: 01.png
    text: "Full sentence or paragraph spoken in the audio"
    effects:
      zoom: {type: in, scale: 1.1, duration: 4}
      motion: {direction: right, intensity: 0.05}
      fade: {type: in, duration: 1}
      focus:
        source: {width: 4000, height: 3000}
        target: {x: 1200, y: 800, width: 600, height: 500}
  - image: 02.png
    text: "The next phrase"
    effects:
      darken: {amount: 0.3}
      vignette: {angle: 0.6, eval: init}
matching:
  mode: full_phrase
  similarity_threshold: 85
`

// WriteSampleMapping writes SampleMapping to path unless a non-empty file
// already exists there. It reports whether a file was written.
func WriteSampleMapping(path string) (bool, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(SampleMapping), 0644); err != nil {
		return false, err
	}
	return true, nil
}
