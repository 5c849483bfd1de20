package stage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace lays out a job's staging directory. All intermediate artifacts
// live under staging/<job-id>/ so a job can resume or be inspected after a
// failure.
type Workspace struct {
	root string
}

// NewWorkspace returns the workspace for a job id under the staging root.
func NewWorkspace(stagingDir, jobID string) Workspace {
	return Workspace{root: filepath.Join(stagingDir, jobID)}
}

// Ensure creates the workspace directories.
func (w Workspace) Ensure() error {
	for _, dir := range []string{w.root, w.ChunksDir(), w.ClipsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

// Root returns the workspace root directory.
func (w Workspace) Root() string { return w.root }

// AudioPath is the full extracted source audio (mono 16kHz WAV).
func (w Workspace) AudioPath() string { return filepath.Join(w.root, "audio.wav") }

// ChunksDir holds per-chunk audio windows.
func (w Workspace) ChunksDir() string { return filepath.Join(w.root, "chunks") }

// ChunkAudioPath is the audio window for one transcription chunk.
func (w Workspace) ChunkAudioPath(index int) string {
	return filepath.Join(w.ChunksDir(), fmt.Sprintf("chunk-%03d.wav", index))
}

// TranscriptSRT is the merged source-language transcript.
func (w Workspace) TranscriptSRT() string { return filepath.Join(w.root, "transcript.srt") }

// TranscriptText is the transcript in timed-text form.
func (w Workspace) TranscriptText() string { return filepath.Join(w.root, "transcript.txt") }

// TranslationSRT is the merged target-language subtitle file.
func (w Workspace) TranslationSRT() string { return filepath.Join(w.root, "translation.srt") }

// TranslationText is the translation in timed-text form.
func (w Workspace) TranslationText() string { return filepath.Join(w.root, "translation.txt") }

// ClipsDir holds per-segment synthesized audio.
func (w Workspace) ClipsDir() string { return filepath.Join(w.root, "clips") }

// ClipPath is the synthesized audio for one segment index.
func (w Workspace) ClipPath(segmentIndex int) string {
	return filepath.Join(w.ClipsDir(), fmt.Sprintf("seg-%05d.wav", segmentIndex))
}

// DubbedAudioPath is the assembled dubbed track.
func (w Workspace) DubbedAudioPath() string { return filepath.Join(w.root, "dubbed.wav") }
