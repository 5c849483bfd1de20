package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RenderSRT formats segments as SRT text. Indexes are taken from the
// segments as given; callers wanting sequential numbering renumber first.
func RenderSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		index := seg.Index
		if index <= 0 {
			index = i + 1
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			index, FormatSRTTimestamp(seg.Start), FormatSRTTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// WriteSRTFile renders segments to path as an SRT file.
func WriteSRTFile(path string, segments []Segment) error {
	if err := os.WriteFile(path, []byte(RenderSRT(segments)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// ParseSRT parses SRT text into segments. Blocks without a valid
// timestamp line are rejected; the cue index line is optional.
func ParseSRT(content string) ([]Segment, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	var segments []Segment
	for _, block := range strings.Split(trimmed, "\n\n") {
		lines := nonEmptyLines(block)
		if len(lines) == 0 {
			continue
		}

		cursor := 0
		index := len(segments) + 1
		if !strings.Contains(lines[0], "-->") {
			parsed, err := strconv.Atoi(strings.TrimSpace(lines[0]))
			if err != nil {
				return nil, fmt.Errorf("cue %d: invalid index line %q", len(segments)+1, lines[0])
			}
			index = parsed
			cursor = 1
		}
		if cursor >= len(lines) || !strings.Contains(lines[cursor], "-->") {
			return nil, fmt.Errorf("cue %d: missing timestamp line", index)
		}

		start, end, err := parseSRTTimeRange(lines[cursor])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}

		segments = append(segments, Segment{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[cursor+1:], "\n"),
		})
	}
	return segments, nil
}

// ParseSRTFile reads and parses an SRT file.
func ParseSRTFile(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return ParseSRT(string(data))
}

func nonEmptyLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parseSRTTimeRange(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time range %q", line)
	}
	start, err := ParseSRTTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseSRTTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// FormatSRTTimestamp renders a duration as HH:MM:SS,mmm.
func FormatSRTTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	millis := d.Milliseconds()
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	seconds := millis / 1000
	millis -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// ParseSRTTimestamp parses HH:MM:SS,mmm (period also accepted) into a
// duration.
func ParseSRTTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(strings.TrimSpace(hms[0]))
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}
