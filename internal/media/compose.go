package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// TimedClip is a synthesized audio clip placed at an absolute position in
// the output timeline.
type TimedClip struct {
	Path  string
	Start time.Duration
}

// MixClips lays timed clips over a silent base track of the given total
// duration and writes the result as 44.1kHz stereo WAV.
func MixClips(ctx context.Context, ffmpegBinary string, clips []TimedClip, total time.Duration, dest string) error {
	if len(clips) == 0 {
		return fmt.Errorf("mix clips: no clips")
	}
	if total <= 0 {
		return fmt.Errorf("mix clips: invalid total duration %s", total)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=44100:duration=%s", formatSeconds(total)),
	}
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}

	var filter strings.Builder
	labels := []string{"[0:a]"}
	for i, clip := range clips {
		delay := clip.Start.Milliseconds()
		label := fmt.Sprintf("[d%d]", i)
		fmt.Fprintf(&filter, "[%d:a]adelay=%d:all=1%s;", i+1, delay, label)
		labels = append(labels, label)
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:normalize=0:duration=first[out]", strings.Join(labels, ""), len(labels))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-c:a", "pcm_s16le",
		dest,
	)
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mix: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ComposeOptions controls final video assembly. TrimStart and TrimEnd cut
// the video input to the same window the audio pipeline processed so the
// dubbed track lines up.
type ComposeOptions struct {
	VideoPath    string
	AudioPath    string
	SubtitlePath string
	BurnIn       bool
	TrimStart    time.Duration
	TrimEnd      time.Duration
	Dest         string
}

// Compose replaces the source audio with the dubbed track. With BurnIn the
// subtitles are rendered into the video stream, which forces a re-encode;
// otherwise the video stream is copied and the SRT muxed as a soft track.
func Compose(ctx context.Context, ffmpegBinary string, opts ComposeOptions) error {
	if opts.VideoPath == "" || opts.AudioPath == "" || opts.Dest == "" {
		return fmt.Errorf("compose: video, audio, and dest paths are required")
	}
	if opts.TrimStart < 0 || opts.TrimEnd < 0 {
		return fmt.Errorf("compose: negative trim bound")
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
	}
	if opts.TrimStart > 0 {
		args = append(args, "-ss", formatSeconds(opts.TrimStart))
	}
	if opts.TrimEnd > 0 {
		args = append(args, "-to", formatSeconds(opts.TrimEnd))
	}
	args = append(args,
		"-i", opts.VideoPath,
		"-i", opts.AudioPath,
	)

	softSubs := opts.SubtitlePath != "" && !opts.BurnIn
	if softSubs {
		args = append(args, "-i", opts.SubtitlePath)
	}

	args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	if softSubs {
		args = append(args, "-map", "2:0", "-c:s", "mov_text")
	}

	if opts.BurnIn && opts.SubtitlePath != "" {
		args = append(args,
			"-vf", fmt.Sprintf("subtitles=%s", escapeFilterPath(opts.SubtitlePath)),
			"-c:v", "libx264",
			"-preset", "medium",
			"-crf", "20",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		opts.Dest,
	)

	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg compose: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// escapeFilterPath escapes characters the subtitles filter treats as
// syntax.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
	)
	return replacer.Replace(path)
}
