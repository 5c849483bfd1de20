package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/media"
	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/services/whisper"
	"dubflow/internal/subtitles"
)

const (
	silenceNoiseDB     = -30.0
	silenceMinDuration = 400 * time.Millisecond
)

// Transcriber is the Transcribe stage's service surface, satisfied by
// *whisper.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (whisper.Result, error)
	HealthCheck(ctx context.Context) error
}

// Transcribe extracts the source audio and turns bounded windows of it
// into timed source-language segments.
type Transcribe struct {
	cfg    *config.Config
	store  *queue.Store
	client Transcriber
}

// NewTranscribe constructs the transcription stage.
func NewTranscribe(cfg *config.Config, store *queue.Store, client Transcriber) *Transcribe {
	return &Transcribe{cfg: cfg, store: store, client: client}
}

func (s *Transcribe) Name() string { return queue.StageTranscribe }

// chunkTranscript is the checkpointed result of one transcription chunk.
// Segment timestamps are already offset into the job timeline.
type chunkTranscript struct {
	Segments []subtitles.Segment `json:"segments"`
}

// Prepare probes the source, selects the audio stream, and extracts it as
// mono 16kHz WAV. Skipped when a prior run already extracted it.
func (s *Transcribe) Prepare(ctx context.Context, job *queue.Job) error {
	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	if err := ws.Ensure(); err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "prepare", "create workspace", err)
	}
	if job.WorkDir != ws.Root() {
		if err := s.store.SetWorkDir(ctx, job.ID, ws.Root()); err != nil {
			return err
		}
		job.WorkDir = ws.Root()
	}

	if job.Duration > 0 {
		if _, err := os.Stat(ws.AudioPath()); err == nil {
			return nil
		}
	}

	mediaCtx, cancel := s.mediaContext(ctx)
	defer cancel()

	probed, err := media.Probe(mediaCtx, s.cfg.FFprobeBinary(), job.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "probe", "source not readable", err)
	}
	full := probed.Duration()
	if full <= 0 {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "probe", "zero-duration media", nil)
	}
	if job.TrimStart >= full {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "probe", "trim start beyond media duration", nil)
	}
	// A trim end past the real duration clamps to it; the extracted
	// audio simply stops at end of stream.
	trimEnd := job.TrimEnd
	if trimEnd == 0 || trimEnd > full {
		trimEnd = full
	}
	duration := trimEnd - job.TrimStart
	stream, err := probed.SelectAudioStream(job.SourceLanguage)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "probe", "no usable audio", err)
	}

	if err := media.ExtractAudio(mediaCtx, s.cfg.FFmpegBinary(), job.SourcePath, stream.Index, job.TrimStart, job.TrimEnd, ws.AudioPath()); err != nil {
		return classifyMediaError(s.Name(), "extract audio", err)
	}

	if err := s.store.SetDuration(ctx, job.ID, duration); err != nil {
		return err
	}
	job.Duration = duration
	return nil
}

// Plan windows the media duration, optionally aligning boundaries to
// detected silence so chunks avoid splitting mid-utterance.
func (s *Transcribe) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	maxWindow := time.Duration(s.cfg.Transcriber.MaxChunkSeconds) * time.Second
	chunks, err := plan.TimeChunks(job.ID, s.Name(), job.Duration, maxWindow)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Transcriber.AlignToSilence || len(chunks) < 2 {
		return chunks, nil
	}

	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	mediaCtx, cancel := s.mediaContext(ctx)
	defer cancel()
	silences, err := media.DetectSilence(mediaCtx, s.cfg.FFmpegBinary(), ws.AudioPath(), 0, job.Duration, silenceNoiseDB, silenceMinDuration)
	if err != nil {
		// Fixed windows are a safe fallback when detection fails.
		return chunks, nil
	}
	search := time.Duration(s.cfg.Transcriber.SilenceSearchSeconds) * time.Second
	return plan.AlignToSilence(job.ID, s.Name(), chunks, silences, search, maxWindow), nil
}

// ExecuteChunk cuts the chunk's audio window and submits it for
// transcription. Returned segments are offset into the job timeline.
func (s *Transcribe) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	chunkPath := ws.ChunkAudioPath(chunk.Index)

	mediaCtx, cancel := s.mediaContext(ctx)
	if err := media.ExtractAudioWindow(mediaCtx, s.cfg.FFmpegBinary(), ws.AudioPath(), chunk.Window.Start, chunk.Window.Duration(), chunkPath); err != nil {
		cancel()
		return nil, classifyMediaError(s.Name(), "extract window", err)
	}
	cancel()

	result, err := s.client.Transcribe(ctx, chunkPath, job.SourceLanguage)
	if err != nil {
		return nil, err
	}

	segments := subtitles.Offset(result.TimedSegments(), chunk.Window.Start)
	payload, err := json.Marshal(chunkTranscript{Segments: segments})
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "encode", "marshal chunk transcript", err)
	}
	return payload, nil
}

// Merge concatenates chunk transcripts in index order and writes the
// transcript artifacts.
func (s *Transcribe) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	var merged []subtitles.Segment
	for i, raw := range results {
		var chunk chunkTranscript
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return services.Wrap(services.ErrFatal, s.Name(), "merge", fmt.Sprintf("decode chunk %d", i), err)
		}
		merged = append(merged, chunk.Segments...)
	}
	if len(merged) == 0 {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "merge", "no speech detected", nil)
	}

	merged = subtitles.Renumber(merged)
	if err := subtitles.Validate(merged); err != nil {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "merge", "transcript timing invalid", err)
	}

	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	if err := subtitles.WriteSRTFile(ws.TranscriptSRT(), merged); err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "merge", "write transcript", err)
	}
	if err := subtitles.WriteTimedTextFile(ws.TranscriptText(), merged); err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "merge", "write transcript", err)
	}
	return nil
}

// HealthCheck verifies the transcription service is reachable.
func (s *Transcribe) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *Transcribe) mediaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return mediaContext(ctx, s.cfg)
}

func mediaContext(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Media.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyMediaError maps a local tool failure: deadline overruns are
// transient, any other nonzero exit is treated as an input problem since
// rerunning the same command on the same file will fail the same way.
func classifyMediaError(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, stage, operation, "tool timed out", err)
	}
	return services.Wrap(services.ErrInvalidInput, stage, operation, "tool failed", err)
}
