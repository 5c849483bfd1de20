package plan

import (
	"fmt"
	"time"

	"dubflow/internal/media"
	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

// Window is a half-open time span [Start, End) of the source media.
type Window struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End - w.Start
}

// Canonical renders the window in the stable form used for idempotency
// keys: millisecond start and end joined by a dash.
func (w Window) Canonical() string {
	return fmt.Sprintf("%d-%d", w.Start.Milliseconds(), w.End.Milliseconds())
}

// SegmentRange is an inclusive span of segment indices (1-based, matching
// subtitles.Segment numbering).
type SegmentRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Count returns the number of segments in the range.
func (r SegmentRange) Count() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Canonical renders the range in the stable form used for idempotency keys.
func (r SegmentRange) Canonical() string {
	return fmt.Sprintf("seg%d-%d", r.First, r.Last)
}

// Chunk is one bounded unit of stage work. Time-based stages populate
// Window; segment-based stages populate Segments. Index defines reassembly
// order and never changes after planning.
type Chunk struct {
	Index    int          `json:"index"`
	Window   Window       `json:"window"`
	Segments SegmentRange `json:"segments"`
	Key      string       `json:"key"`
}

// TimeChunks splits a media duration into contiguous windows no longer
// than maxWindow. The final window carries the remainder. Identical input
// always yields the identical plan.
func TimeChunks(jobID, stage string, total, maxWindow time.Duration) ([]Chunk, error) {
	if total <= 0 {
		return nil, services.Wrap(services.ErrPlanning, stage, "plan", fmt.Sprintf("zero-duration media (%s)", total), nil)
	}
	if maxWindow <= 0 {
		return nil, services.Wrap(services.ErrPlanning, stage, "plan", fmt.Sprintf("invalid max window %s", maxWindow), nil)
	}

	var chunks []Chunk
	for start := time.Duration(0); start < total; start += maxWindow {
		end := start + maxWindow
		if end > total {
			end = total
		}
		window := Window{Start: start, End: end}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Window: window,
			Key:    IdempotencyKey(jobID, stage, len(chunks), window.Canonical()),
		})
	}
	return chunks, nil
}

// AlignToSilence nudges interior chunk boundaries to the midpoint of the
// nearest detected silence within maxShift, keeping the plan contiguous.
// Boundaries without a nearby silence stay fixed, as do shifts that would
// grow a neighbor past maxWindow. The first start and last end never move.
func AlignToSilence(jobID, stage string, chunks []Chunk, silences []media.SilenceRange, maxShift, maxWindow time.Duration) []Chunk {
	if len(chunks) < 2 || len(silences) == 0 || maxShift <= 0 {
		return chunks
	}

	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	for i := 0; i < len(out)-1; i++ {
		boundary := out[i].Window.End
		aligned, ok := nearestSilenceMidpoint(silences, boundary, maxShift)
		if !ok {
			continue
		}
		if aligned <= out[i].Window.Start || aligned >= out[i+1].Window.End {
			continue
		}
		if maxWindow > 0 &&
			(aligned-out[i].Window.Start > maxWindow || out[i+1].Window.End-aligned > maxWindow) {
			continue
		}
		out[i].Window.End = aligned
		out[i+1].Window.Start = aligned
	}
	for i := range out {
		out[i].Key = IdempotencyKey(jobID, stage, out[i].Index, out[i].Window.Canonical())
	}
	return out
}

func nearestSilenceMidpoint(silences []media.SilenceRange, boundary, maxShift time.Duration) (time.Duration, bool) {
	best := time.Duration(0)
	bestDist := maxShift + 1
	found := false
	for _, s := range silences {
		mid := s.Midpoint()
		dist := mid - boundary
		if dist < 0 {
			dist = -dist
		}
		if dist <= maxShift && dist < bestDist {
			best = mid
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// SegmentChunks batches segments into chunks bounded by a maximum segment
// count and a maximum character total. A single segment is never split
// across chunks; an oversized single segment gets a chunk of its own.
func SegmentChunks(jobID, stage string, segments []subtitles.Segment, maxSegments, maxCharacters int) ([]Chunk, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrPlanning, stage, "plan", "empty segment list", nil)
	}
	if maxSegments <= 0 {
		return nil, services.Wrap(services.ErrPlanning, stage, "plan", fmt.Sprintf("invalid max segments %d", maxSegments), nil)
	}

	var chunks []Chunk
	first := 0
	count := 0
	chars := 0
	flush := func(lastExclusive int) {
		window := Window{Start: segments[first].Start, End: segments[lastExclusive-1].End}
		chunk := Chunk{
			Index:    len(chunks),
			Window:   window,
			Segments: SegmentRange{First: first + 1, Last: lastExclusive},
		}
		chunk.Key = IdempotencyKey(jobID, stage, chunk.Index, chunk.Segments.Canonical())
		chunks = append(chunks, chunk)
	}

	for i, seg := range segments {
		segChars := len(seg.Text)
		over := count >= maxSegments ||
			(maxCharacters > 0 && count > 0 && chars+segChars > maxCharacters)
		if over {
			flush(i)
			first = i
			count = 0
			chars = 0
		}
		count++
		chars += segChars
	}
	flush(len(segments))
	return chunks, nil
}

// SingleChunk plans one chunk covering the whole input, used by stages
// that cannot be subdivided.
func SingleChunk(jobID, stage string, total time.Duration) ([]Chunk, error) {
	if total <= 0 {
		return nil, services.Wrap(services.ErrPlanning, stage, "plan", fmt.Sprintf("zero-duration media (%s)", total), nil)
	}
	window := Window{Start: 0, End: total}
	return []Chunk{{
		Index:  0,
		Window: window,
		Key:    IdempotencyKey(jobID, stage, 0, window.Canonical()),
	}}, nil
}
