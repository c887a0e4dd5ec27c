package video

// Placement is a scene positioned on the output timeline.
type Placement struct {
	Path   string
	Start  float64
	End    float64
	Filter string
}

// Layout converts placements into a gapless clip sequence from 0 to total.
// Uncovered time before, between and after scenes becomes black gaps, and
// zero-length scenes are skipped. Gaps shorter than half a frame are dropped.
// total <= 0 ends the sequence at the last scene.
func Layout(scenes []Placement, total float64, fps int) []Clip {
	minGap := 0.0
	if fps > 0 {
		minGap = 0.5 / float64(fps)
	}

	var clips []Clip
	gap := func(from, to float64) {
		if to-from > minGap {
			clips = append(clips, Clip{Duration: to - from})
		}
	}

	cursor := 0.0
	for _, s := range scenes {
		if s.End <= s.Start {
			continue
		}
		gap(cursor, s.Start)
		clips = append(clips, Clip{Path: s.Path, Duration: s.End - s.Start, Filter: s.Filter})
		cursor = s.End
	}
	if total > 0 {
		gap(cursor, total)
	}
	return clips
}
