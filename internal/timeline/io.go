package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Write writes a timeline to a YAML file.
func Write(path string, tl *Timeline) error {
	data, err := yaml.Marshal(tl)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	return writeFile(path, data)
}

// Read reads a timeline from a YAML file and checks its invariants.
func Read(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tl Timeline
	if err := yaml.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("parse timeline %s: %w", path, err)
	}
	if err := tl.Validate(); err != nil {
		return nil, err
	}
	return &tl, nil
}

// WriteTranscript writes transcript segments. A .json extension selects
// JSON, anything else YAML.
func WriteTranscript(path string, tr *Transcript) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(tr, "", "  ")
	} else {
		data, err = yaml.Marshal(tr)
	}
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return writeFile(path, data)
}

// ReadTranscript reads segments written by WriteTranscript. A bare JSON
// array of segments is accepted as well.
func ReadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tr Transcript
	if strings.EqualFold(filepath.Ext(path), ".json") {
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			err = json.Unmarshal(data, &tr.Segments)
		} else {
			err = json.Unmarshal(data, &tr)
		}
	} else {
		err = yaml.Unmarshal(data, &tr)
	}
	if err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	if err := ValidateSegments(tr.Segments); err != nil {
		return nil, err
	}
	return &tr, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
