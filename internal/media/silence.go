package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SilenceRange is one detected span of silence in an audio file.
type SilenceRange struct {
	Start time.Duration
	End   time.Duration
}

// Midpoint returns the center of the silence span.
func (r SilenceRange) Midpoint() time.Duration {
	return r.Start + (r.End-r.Start)/2
}

// DetectSilence runs the silencedetect filter over a window of the audio
// file and returns silence spans in file-absolute time. noise is the
// detection threshold in dB (negative), minDuration the shortest reported
// silence.
func DetectSilence(ctx context.Context, ffmpegBinary, source string, windowStart, windowLength time.Duration, noiseDB float64, minDuration time.Duration) ([]SilenceRange, error) {
	if windowLength <= 0 {
		return nil, fmt.Errorf("detect silence: invalid window length %s", windowLength)
	}
	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", source,
		"-ss", formatSeconds(windowStart),
		"-t", formatSeconds(windowLength),
		"-af", fmt.Sprintf("silencedetect=noise=%.1fdB:d=%.3f", noiseDB, minDuration.Seconds()),
		"-f", "null",
		"-",
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	ranges := parseSilence(string(output))
	for i := range ranges {
		ranges[i].Start += windowStart
		ranges[i].End += windowStart
	}
	return ranges, nil
}

// parseSilence extracts silence spans from silencedetect log output.
// Unterminated trailing silence is closed at the last silence_start.
func parseSilence(output string) []SilenceRange {
	var ranges []SilenceRange
	var pendingStart time.Duration
	pending := false

	for _, line := range strings.Split(output, "\n") {
		if value, ok := silenceValue(line, "silence_start:"); ok {
			pendingStart = value
			pending = true
			continue
		}
		if value, ok := silenceValue(line, "silence_end:"); ok && pending {
			ranges = append(ranges, SilenceRange{Start: pendingStart, End: value})
			pending = false
		}
	}
	if pending {
		ranges = append(ranges, SilenceRange{Start: pendingStart, End: pendingStart})
	}
	return ranges
}

func silenceValue(line, marker string) (time.Duration, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	if cut := strings.IndexAny(rest, " |"); cut >= 0 {
		rest = rest[:cut]
	}
	seconds, err := strconv.ParseFloat(rest, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
