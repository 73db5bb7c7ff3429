// Package timeline converts between the two representations of an edit
// timeline: removal cuts and surviving keep-segments. Both are half-open
// intervals in seconds relative to the trimmed timeline.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrInvalidTrim = errors.New("trim start must be before trim end")

// MinCutDuration is the default minimum significant duration. Cuts shorter
// than this after clamping are treated as floating-point/UI noise and
// discarded; emitted keep-segments below it are dropped for the same reason.
const MinCutDuration = 0.05

// TimeRange is a half-open interval [Start, End) in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the range in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Valid reports whether the range has positive length.
func (r TimeRange) Valid() bool {
	return r.Start < r.End
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", r.Start, r.End)
}

// TotalDuration sums the durations of the given ranges.
func TotalDuration(ranges []TimeRange) float64 {
	var total float64
	for _, r := range ranges {
		total += r.Duration()
	}
	return total
}

// CutsToSegments converts a trim window plus removal cuts into the ordered,
// disjoint keep-segments that survive. Overlapping and unsorted cuts are
// tolerated: the sort plus monotonic cursor makes overlapping cuts behave as
// their union. An empty result is valid and means no content survives.
func CutsToSegments(trimStart, trimEnd float64, cuts []TimeRange, minDuration float64) ([]TimeRange, error) {
	if trimStart >= trimEnd {
		return nil, fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidTrim, trimStart, trimEnd)
	}
	if minDuration <= 0 {
		minDuration = MinCutDuration
	}

	clamped := make([]TimeRange, 0, len(cuts))
	for _, c := range cuts {
		s := math.Max(c.Start, trimStart)
		e := math.Min(c.End, trimEnd)
		if e-s < minDuration {
			continue
		}
		clamped = append(clamped, TimeRange{Start: s, End: e})
	}

	sort.Slice(clamped, func(i, j int) bool {
		return clamped[i].Start < clamped[j].Start
	})

	segments := make([]TimeRange, 0, len(clamped)+1)
	cursor := trimStart
	for _, c := range clamped {
		if c.Start > cursor && c.Start-cursor >= minDuration {
			segments = append(segments, TimeRange{Start: cursor, End: c.Start})
		}
		if c.End > cursor {
			cursor = c.End
		}
	}
	if cursor < trimEnd && trimEnd-cursor >= minDuration {
		segments = append(segments, TimeRange{Start: cursor, End: trimEnd})
	}

	return segments, nil
}

// SegmentsToCuts is the inverse sweep: it emits a cut for every gap between
// the trim start, consecutive segments, and the trim end. For disjoint sorted
// input the two conversions are exact inverses.
func SegmentsToCuts(trimStart, trimEnd float64, segments []TimeRange) ([]TimeRange, error) {
	if trimStart >= trimEnd {
		return nil, fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidTrim, trimStart, trimEnd)
	}

	sorted := append([]TimeRange(nil), segments...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	cuts := make([]TimeRange, 0, len(sorted)+1)
	cursor := trimStart
	for _, s := range sorted {
		if s.Start > cursor {
			cuts = append(cuts, TimeRange{Start: cursor, End: s.Start})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < trimEnd {
		cuts = append(cuts, TimeRange{Start: cursor, End: trimEnd})
	}

	return cuts, nil
}
