// Package matcher scores transcript segments against configured phrases.
//
// Scoring is a full-phrase, token-set fuzzy similarity on the canonical text
// produced by textnorm: word order does not matter and words present on only
// one side (filler words dropped or added by speech recognition) do not push
// the score below a clean subset match.
package matcher

import (
	"context"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/phrase2video/internal/textnorm"
)

// Score returns the similarity of a segment text and a rule phrase in [0,100].
func Score(segmentText, ruleText string) float64 {
	return TokenSetRatio(textnorm.Normalize(segmentText), textnorm.Normalize(ruleText))
}

// Ratio is the normalized Indel similarity of a and b in [0,100], computed
// over runes.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	lcs := longestCommonSubsequence(ra, rb)
	return 100 * float64(2*lcs) / float64(total)
}

// TokenSetRatio compares the whitespace separated token sets of a and b.
// Inputs are expected in canonical form. A side without tokens scores 0.
func TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var sect, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			sect = append(sect, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(sect)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	joinedSect := strings.Join(sect, " ")
	combinedA := joinTokens(joinedSect, strings.Join(onlyA, " "))
	combinedB := joinTokens(joinedSect, strings.Join(onlyB, " "))

	best := Ratio(combinedA, combinedB)
	if joinedSect == "" {
		return best
	}
	if r := Ratio(joinedSect, combinedA); r > best {
		best = r
	}
	if r := Ratio(joinedSect, combinedB); r > best {
		best = r
	}
	return best
}

// ScoreMatrix scores every segment text against every phrase. Row i holds the
// scores of segments[i]; the layout does not depend on scheduling, so the
// result is identical for any worker count.
func ScoreMatrix(ctx context.Context, segments, phrases []string, workers int) ([][]float64, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	normPhrases := make([]string, len(phrases))
	for i, p := range phrases {
		normPhrases[i] = textnorm.Normalize(p)
	}

	matrix := make([][]float64, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, text := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg := textnorm.Normalize(text)
			row := make([]float64, len(normPhrases))
			if seg != "" {
				for j, phrase := range normPhrases {
					row[j] = TokenSetRatio(seg, phrase)
				}
			}
			matrix[i] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matrix, nil
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func joinTokens(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func longestCommonSubsequence(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
