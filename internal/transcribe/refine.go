package transcribe

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ivlev/phrase2video/internal/timeline"
)

var sentenceBreak = regexp.MustCompile(`[.!?]\s+`)

// minPart keeps split segments strictly increasing when a sentence gets no
// measurable share of the time.
const minPart = 1e-3

// RefineSentences splits multi-sentence segments at sentence punctuation so
// images can trigger on a later sentence of a long segment. Each part gets a
// share of the segment's time proportional to its length in runes. Empty and
// zero-length segments are dropped.
func RefineSentences(segments []timeline.Segment) []timeline.Segment {
	var out []timeline.Segment

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}

		parts := splitSentences(text)
		if len(parts) <= 1 {
			out = append(out, timeline.Segment{Start: seg.Start, End: seg.End, Text: text})
			continue
		}

		total := 0
		for _, p := range parts {
			total += utf8.RuneCountInString(p)
		}

		dur := seg.End - seg.Start
		cur := seg.Start
		for i, p := range parts {
			end := cur + dur*float64(utf8.RuneCountInString(p))/float64(total)
			if i == len(parts)-1 {
				end = seg.End
			}
			if end <= cur {
				end = min(seg.End, cur+minPart)
			}
			out = append(out, timeline.Segment{Start: cur, End: end, Text: p})
			cur = end
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := range out {
		out[i].Index = i
	}
	return out
}

// splitSentences cuts after ., ! or ? followed by whitespace.
func splitSentences(text string) []string {
	var parts []string
	last := 0
	for _, loc := range sentenceBreak.FindAllStringIndex(text, -1) {
		if p := strings.TrimSpace(text[last : loc[0]+1]); p != "" {
			parts = append(parts, p)
		}
		last = loc[1]
	}
	if p := strings.TrimSpace(text[last:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}
