package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/matcher"
	"github.com/ivlev/phrase2video/internal/textnorm"
)

// Options configures Build. The zero value matches with threshold 0, keeps
// raw timestamps and holds each scene until the next one starts.
type Options struct {
	Threshold     float64
	AudioPath     string
	AudioDuration float64 // 0 when unknown
	FPS           int     // quantize times to frame boundaries when > 0
	EndPolicy     string  // config.EndPolicyHold or config.EndPolicySegment
	Workers       int
	Logger        *slog.Logger
}

// Selection is an accepted (segment, rule) pair.
type Selection struct {
	SegmentIndex int
	Rule         config.Rule
	Similarity   float64
}

// Build matches segments against rules and lays the matches out as scenes.
//
// Each segment triggers at most one rule: the highest scoring rule at or
// above the threshold, ties broken by normalized phrase then image name.
// A rule fires once, at its earliest qualifying segment.
func Build(ctx context.Context, segments []Segment, rules []config.Rule, opts Options) (*Timeline, error) {
	matches, err := Match(ctx, segments, rules, opts)
	if err != nil {
		return nil, err
	}

	policy := opts.EndPolicy
	if policy == "" {
		policy = config.EndPolicyHold
	}

	tl := &Timeline{
		Version:   Version,
		Audio:     Audio{Path: opts.AudioPath, Duration: opts.AudioDuration},
		FPS:       opts.FPS,
		Threshold: opts.Threshold,
		EndPolicy: policy,
		Scenes:    place(segments, matches, opts, policy),
	}

	if opts.Logger != nil {
		opts.Logger.Info("timeline built",
			"segments", len(segments),
			"rules", len(rules),
			"scenes", len(tl.Scenes),
			"threshold", opts.Threshold,
		)
	}
	return tl, nil
}

// Match validates the inputs and selects at most one rule per segment in
// chronological order. The result is ordered by segment.
func Match(ctx context.Context, segments []Segment, rules []config.Rule, opts Options) ([]Selection, error) {
	if err := config.ValidateThreshold(opts.Threshold); err != nil {
		return nil, err
	}
	if err := ValidateSegments(segments); err != nil {
		return nil, err
	}
	if err := validateRules(rules); err != nil {
		return nil, err
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	phrases := make([]string, len(rules))
	normPhrases := make([]string, len(rules))
	for j, r := range rules {
		phrases[j] = r.Text
		normPhrases[j] = textnorm.Normalize(r.Text)
	}

	scores, err := matcher.ScoreMatrix(ctx, texts, phrases, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("score segments: %w", err)
	}

	less := func(a, b int) bool {
		if normPhrases[a] != normPhrases[b] {
			return normPhrases[a] < normPhrases[b]
		}
		return rules[a].Image < rules[b].Image
	}

	used := make([]bool, len(rules))
	firedPhrases := make(map[string]struct{})
	var matches []Selection

	for i, seg := range segments {
		if textnorm.Normalize(seg.Text) == "" {
			continue
		}
		best := -1
		for j := range rules {
			if used[j] || normPhrases[j] == "" {
				continue
			}
			if _, fired := firedPhrases[normPhrases[j]]; fired {
				continue
			}
			score := scores[i][j]
			if score < opts.Threshold {
				continue
			}
			if best < 0 || score > scores[i][best] || (score == scores[i][best] && less(j, best)) {
				best = j
			}
		}
		if best < 0 {
			continue
		}

		used[best] = true
		firedPhrases[normPhrases[best]] = struct{}{}
		matches = append(matches, Selection{
			SegmentIndex: i,
			Rule:         rules[best],
			Similarity:   scores[i][best],
		})
		if opts.Logger != nil {
			opts.Logger.Debug("segment matched",
				"segment", i,
				"image", rules[best].Image,
				"similarity", scores[i][best],
			)
		}
	}
	return matches, nil
}

// ValidateSegments checks the transcript contract: finite times,
// start <= end and non-decreasing starts.
func ValidateSegments(segments []Segment) error {
	for i, s := range segments {
		if !finite(s.Start) {
			return config.SegmentError(i, "start", fmt.Sprintf("must be finite, got %v", s.Start))
		}
		if !finite(s.End) {
			return config.SegmentError(i, "end", fmt.Sprintf("must be finite, got %v", s.End))
		}
		if s.Start < 0 {
			return config.SegmentError(i, "start", fmt.Sprintf("must not be negative, got %v", s.Start))
		}
		if s.Start > s.End {
			return config.SegmentError(i, "end", fmt.Sprintf("%v is before start %v", s.End, s.Start))
		}
		if i > 0 && s.Start < segments[i-1].Start {
			return config.SegmentError(i, "start", fmt.Sprintf("%v is before previous segment start %v", s.Start, segments[i-1].Start))
		}
	}
	return nil
}

func validateRules(rules []config.Rule) error {
	seen := make(map[string]int, len(rules))
	for j, r := range rules {
		if r.Image == "" {
			return config.NewConfigError(fmt.Sprintf("rules[%d].image", j), "", "must not be empty")
		}
		if prev, ok := seen[r.Image]; ok {
			return config.NewConfigError(fmt.Sprintf("rules[%d].image", j), r.Image, fmt.Sprintf("duplicates rules[%d]", prev))
		}
		seen[r.Image] = j
	}
	return nil
}

// place converts matches into scenes. Starts come from the triggering
// segments; ends follow the policy and are always clipped to the next start.
func place(segments []Segment, matches []Selection, opts Options, policy string) []Scene {
	q := func(t float64) float64 {
		if opts.FPS <= 0 {
			return t
		}
		fps := float64(opts.FPS)
		return math.Round(t*fps) / fps
	}

	type placed struct {
		m     Selection
		start float64
	}
	var items []placed
	for _, m := range matches {
		start := q(segments[m.SegmentIndex].Start)
		// A scene starting at the very end of the audio would never be shown.
		if opts.AudioDuration > 0 && start >= opts.AudioDuration {
			if opts.Logger != nil {
				opts.Logger.Warn("match starts at or after the audio end, dropped",
					"image", m.Rule.Image, "start", start, "audio_duration", opts.AudioDuration)
			}
			continue
		}
		items = append(items, placed{m: m, start: start})
	}

	scenes := make([]Scene, 0, len(items))
	for k, it := range items {
		seg := segments[it.m.SegmentIndex]
		hasNext := k+1 < len(items)
		var next float64
		if hasNext {
			next = items[k+1].start
		}

		var end float64
		switch {
		case policy == config.EndPolicySegment:
			end = q(seg.End)
		case hasNext:
			end = next
		case opts.AudioDuration > it.start:
			end = q(opts.AudioDuration)
		default:
			end = q(seg.End)
		}
		if hasNext && end > next {
			end = next
		}
		if opts.AudioDuration > 0 && end > opts.AudioDuration {
			end = opts.AudioDuration
		}
		if end < it.start {
			end = it.start
		}
		if end == it.start && opts.Logger != nil {
			opts.Logger.Warn("scene collapsed to zero length",
				"image", it.m.Rule.Image, "segment", it.m.SegmentIndex, "start", it.start, "fps", opts.FPS)
		}

		scenes = append(scenes, Scene{
			Image:    it.m.Rule.Image,
			Start:    it.start,
			End:      end,
			Duration: end - it.start,
			Effects:  it.m.Rule.Effects,
			Source: SceneSource{
				SegmentIndex: it.m.SegmentIndex,
				SegmentText:  seg.Text,
				Phrase:       it.m.Rule.Text,
				Similarity:   it.m.Similarity,
			},
		})
	}
	return scenes
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
