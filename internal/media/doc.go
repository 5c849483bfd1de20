// Package media wraps local ffmpeg and ffprobe invocation: container
// probing, audio extraction, silence detection, synthesized-audio mixing,
// and final video composition.
package media
