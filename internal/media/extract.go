package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExtractAudio extracts the audio stream as mono 16kHz PCM WAV, the input
// format the transcription service expects. A nonzero trimStart seeks into
// the source before decoding; a nonzero trimEnd stops extraction there, so
// the output timeline starts at the trim point.
func ExtractAudio(ctx context.Context, ffmpegBinary, source string, audioIndex int, trimStart, trimEnd time.Duration, dest string) error {
	if audioIndex < 0 {
		return fmt.Errorf("extract audio: invalid audio stream index %d", audioIndex)
	}
	if trimStart < 0 || trimEnd < 0 {
		return fmt.Errorf("extract audio: negative trim bound")
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
	}
	if trimStart > 0 {
		args = append(args, "-ss", formatSeconds(trimStart))
	}
	if trimEnd > 0 {
		args = append(args, "-to", formatSeconds(trimEnd))
	}
	args = append(args,
		"-i", source,
		"-map", fmt.Sprintf("0:%d", audioIndex),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	)
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExtractAudioWindow cuts a time window out of an extracted WAV file. Seek
// happens on the decoded stream so window boundaries stay sample-accurate.
func ExtractAudioWindow(ctx context.Context, ffmpegBinary, source string, start, duration time.Duration, dest string) error {
	if duration <= 0 {
		return fmt.Errorf("extract window: invalid duration %s", duration)
	}
	if start < 0 {
		return fmt.Errorf("extract window: negative start %s", start)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract window: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
