package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Timed text is the line-per-segment artifact format written alongside SRT
// output: "<start-ms> - <end-ms> - <text>". It is trivial to diff and keeps
// millisecond timestamps machine-readable.

// RenderTimedText formats segments one per line.
func RenderTimedText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "%d - %d - %s\n", seg.Start.Milliseconds(), seg.End.Milliseconds(), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// WriteTimedTextFile renders segments to path in timed-text form.
func WriteTimedTextFile(path string, segments []Segment) error {
	if err := os.WriteFile(path, []byte(RenderTimedText(segments)), 0o644); err != nil {
		return fmt.Errorf("write timed text: %w", err)
	}
	return nil
}

// ParseTimedText parses timed-text lines back into segments. Blank lines
// are skipped. Text may itself contain " - " separators; only the first two
// fields are timestamps.
func ParseTimedText(content string) ([]Segment, error) {
	var segments []Segment
	for lineNo, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		parts := strings.SplitN(trimmed, " - ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: expected \"start - end - text\", got %q", lineNo+1, trimmed)
		}
		startMillis, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid start %q", lineNo+1, parts[0])
		}
		endMillis, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid end %q", lineNo+1, parts[1])
		}
		segments = append(segments, Segment{
			Index: len(segments) + 1,
			Start: time.Duration(startMillis) * time.Millisecond,
			End:   time.Duration(endMillis) * time.Millisecond,
			Text:  strings.TrimSpace(parts[2]),
		})
	}
	return segments, nil
}

// ParseTimedTextFile reads and parses a timed-text file.
func ParseTimedTextFile(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timed text: %w", err)
	}
	return ParseTimedText(string(data))
}
