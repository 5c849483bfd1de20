package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/media"
	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

// SpeechSynthesizer is the Synthesize stage's service surface, satisfied
// by *tts.Client.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice, language, dest string) error
	HealthCheck(ctx context.Context) error
}

// Synthesize renders each translated segment as speech and assembles the
// dubbed audio track.
type Synthesize struct {
	cfg    *config.Config
	client SpeechSynthesizer

	segments []subtitles.Segment
}

// NewSynthesize constructs the synthesis stage.
func NewSynthesize(cfg *config.Config, client SpeechSynthesizer) *Synthesize {
	return &Synthesize{cfg: cfg, client: client}
}

func (s *Synthesize) Name() string { return queue.StageSynthesize }

// synthesizedClip records where one segment's audio landed.
type synthesizedClip struct {
	SegmentIndex int           `json:"segment_index"`
	Path         string        `json:"path"`
	Start        time.Duration `json:"start"`
}

// chunkClips is the checkpointed result of one synthesis chunk.
type chunkClips struct {
	Clips []synthesizedClip `json:"clips"`
}

// Prepare loads the translated segments and resolves the voice.
func (s *Synthesize) Prepare(ctx context.Context, job *queue.Job) error {
	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	segments, err := subtitles.ParseTimedTextFile(ws.TranslationText())
	if err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "prepare", "load translation", err)
	}
	s.segments = segments
	if _, err := s.voice(job); err != nil {
		return err
	}
	return nil
}

// Plan batches translated segments by the synthesizer's per-chunk limit.
func (s *Synthesize) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	return plan.SegmentChunks(job.ID, s.Name(), s.segments, s.cfg.Synthesizer.MaxSegmentsPerChunk, 0)
}

// ExecuteChunk synthesizes each segment in the chunk to its own clip file.
func (s *Synthesize) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	voice, err := s.voice(job)
	if err != nil {
		return nil, err
	}
	if chunk.Segments.First < 1 || chunk.Segments.Last > len(s.segments) {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "execute",
			fmt.Sprintf("segment range %d-%d outside translation of %d", chunk.Segments.First, chunk.Segments.Last, len(s.segments)), nil)
	}

	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	clips := make([]synthesizedClip, 0, chunk.Segments.Count())
	for _, seg := range s.segments[chunk.Segments.First-1 : chunk.Segments.Last] {
		dest := ws.ClipPath(seg.Index)
		if err := s.client.Synthesize(ctx, seg.Text, voice, job.TargetLanguage, dest); err != nil {
			return nil, err
		}
		clips = append(clips, synthesizedClip{SegmentIndex: seg.Index, Path: dest, Start: seg.Start})
	}

	payload, err := json.Marshal(chunkClips{Clips: clips})
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "encode", "marshal chunk clips", err)
	}
	return payload, nil
}

// Merge lays every clip at its segment start over a silent base track.
func (s *Synthesize) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	var clips []media.TimedClip
	for i, raw := range results {
		var chunk chunkClips
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return services.Wrap(services.ErrFatal, s.Name(), "merge", fmt.Sprintf("decode chunk %d", i), err)
		}
		for _, clip := range chunk.Clips {
			clips = append(clips, media.TimedClip{Path: clip.Path, Start: clip.Start})
		}
	}
	if len(clips) == 0 {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "merge", "no clips to assemble", nil)
	}

	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	mediaCtx, cancel := mediaContext(ctx, s.cfg)
	defer cancel()
	if err := media.MixClips(mediaCtx, s.cfg.FFmpegBinary(), clips, job.Duration, ws.DubbedAudioPath()); err != nil {
		return classifyMediaError(s.Name(), "mix clips", err)
	}
	return nil
}

// HealthCheck verifies the synthesis service is reachable.
func (s *Synthesize) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// voice resolves the configured speaker for the job's target language and
// gender. A missing mapping is a configuration problem, not retryable.
func (s *Synthesize) voice(job *queue.Job) (string, error) {
	voices, ok := s.cfg.Synthesizer.Voices[job.TargetLanguage]
	if !ok {
		return "", services.Wrap(services.ErrFatal, s.Name(), "voice",
			fmt.Sprintf("no voices configured for language %q", job.TargetLanguage), nil)
	}
	name := voices.Female
	if job.VoiceGender == "male" {
		name = voices.Male
	}
	if name == "" {
		return "", services.Wrap(services.ErrFatal, s.Name(), "voice",
			fmt.Sprintf("no %s voice configured for language %q", job.VoiceGender, job.TargetLanguage), nil)
	}
	return name, nil
}
