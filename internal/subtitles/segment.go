package subtitles

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Segment is a single timed utterance. Times are absolute positions in the
// source media, stored at millisecond precision.
type Segment struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Offset returns a copy of segments with delta added to every timestamp.
// Chunk-local transcripts are shifted into the job timeline this way.
func Offset(segments []Segment, delta time.Duration) []Segment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		seg.Start += delta
		seg.End += delta
		out[i] = seg
	}
	return out
}

// Renumber sorts segments by start time and assigns sequential indexes
// starting at 1.
func Renumber(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

// Validate checks segment ordering and timing. Segments must carry
// non-negative timestamps, end after they start, and never move backwards.
func Validate(segments []Segment) error {
	var prevStart time.Duration
	for i, seg := range segments {
		if seg.Start < 0 {
			return fmt.Errorf("segment %d: negative start %s", i+1, seg.Start)
		}
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d: end %s before start %s", i+1, seg.End, seg.Start)
		}
		if seg.Start < prevStart {
			return fmt.Errorf("segment %d: start %s precedes previous start %s", i+1, seg.Start, prevStart)
		}
		prevStart = seg.Start
	}
	return nil
}

// TotalCharacters sums the trimmed text length across segments.
func TotalCharacters(segments []Segment) int {
	total := 0
	for _, seg := range segments {
		total += len(strings.TrimSpace(seg.Text))
	}
	return total
}
