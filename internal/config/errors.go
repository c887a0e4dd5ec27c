package config

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid configuration or malformed input: duplicate
// images, empty phrases, out-of-range effect values, fade windows that do not
// fit the scene, malformed transcript segments. It aborts the run.
type ConfigError struct {
	Field   string
	Image   string
	Segment int // -1 when the error is not tied to a segment
	Msg     string
}

// NewConfigError returns a ConfigError that is not tied to a segment.
func NewConfigError(field, image, msg string) *ConfigError {
	return &ConfigError{Field: field, Image: image, Segment: -1, Msg: msg}
}

// SegmentError returns a ConfigError for the transcript segment at index.
func SegmentError(index int, field, msg string) *ConfigError {
	return &ConfigError{Field: field, Segment: index, Msg: msg}
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Image != "" {
		parts = append(parts, fmt.Sprintf("image %q", e.Image))
	}
	if e.Segment >= 0 {
		parts = append(parts, fmt.Sprintf("segment %d", e.Segment))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	if len(parts) == 0 {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config: %s: %s", strings.Join(parts, ", "), e.Msg)
}

// GeometryError reports a focus rectangle that does not fit its source
// image, or a source or target with non-positive dimensions.
type GeometryError struct {
	Image string
	Field string
	Msg   string
}

func (e *GeometryError) Error() string {
	if e.Image == "" {
		return fmt.Sprintf("geometry: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("geometry: image %q, %s: %s", e.Image, e.Field, e.Msg)
}
