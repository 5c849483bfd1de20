package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"dubflow/internal/config"
	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

// SegmentTranslator is the Translate stage's service surface, satisfied by
// *translate.Client.
type SegmentTranslator interface {
	TranslateBatch(ctx context.Context, segments []subtitles.Segment, sourceLang, targetLang string) ([]subtitles.Segment, error)
	HealthCheck(ctx context.Context) error
}

// Translate turns the source-language transcript into target-language
// segments, batch by batch.
type Translate struct {
	cfg    *config.Config
	client SegmentTranslator

	segments []subtitles.Segment
}

// NewTranslate constructs the translation stage.
func NewTranslate(cfg *config.Config, client SegmentTranslator) *Translate {
	return &Translate{cfg: cfg, client: client}
}

func (s *Translate) Name() string { return queue.StageTranslate }

// chunkTranslation is the checkpointed result of one translation batch.
type chunkTranslation struct {
	Segments []subtitles.Segment `json:"segments"`
}

// Prepare loads the transcript produced by the transcribe stage.
func (s *Translate) Prepare(ctx context.Context, job *queue.Job) error {
	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	segments, err := subtitles.ParseTimedTextFile(ws.TranscriptText())
	if err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "prepare", "load transcript", err)
	}
	s.segments = segments
	return nil
}

// Plan batches transcript segments bounded by the translator's segment and
// character limits.
func (s *Translate) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	return plan.SegmentChunks(job.ID, s.Name(), s.segments,
		s.cfg.Translator.MaxSegmentsPerChunk, s.cfg.Translator.MaxCharactersPerChunk)
}

// ExecuteChunk translates one batch.
func (s *Translate) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	batch, err := s.slice(chunk.Segments)
	if err != nil {
		return nil, err
	}
	translated, err := s.client.TranslateBatch(ctx, batch, job.SourceLanguage, job.TargetLanguage)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(chunkTranslation{Segments: translated})
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "encode", "marshal chunk translation", err)
	}
	return payload, nil
}

// Merge writes the full translated subtitle artifacts in index order.
func (s *Translate) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	var merged []subtitles.Segment
	for i, raw := range results {
		var chunk chunkTranslation
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return services.Wrap(services.ErrFatal, s.Name(), "merge", fmt.Sprintf("decode chunk %d", i), err)
		}
		merged = append(merged, chunk.Segments...)
	}
	if len(merged) != len(s.segments) {
		return services.Wrap(services.ErrInvalidInput, s.Name(), "merge",
			fmt.Sprintf("translated %d segments, transcript has %d", len(merged), len(s.segments)), nil)
	}

	merged = subtitles.Renumber(merged)
	ws := NewWorkspace(s.cfg.Paths.StagingDir, job.ID)
	if err := subtitles.WriteSRTFile(ws.TranslationSRT(), merged); err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "merge", "write translation", err)
	}
	if err := subtitles.WriteTimedTextFile(ws.TranslationText(), merged); err != nil {
		return services.Wrap(services.ErrFatal, s.Name(), "merge", "write translation", err)
	}
	return nil
}

// HealthCheck verifies the translation API key and model respond.
func (s *Translate) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *Translate) slice(r plan.SegmentRange) ([]subtitles.Segment, error) {
	if r.First < 1 || r.Last > len(s.segments) || r.First > r.Last {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "slice",
			fmt.Sprintf("segment range %d-%d outside transcript of %d", r.First, r.Last, len(s.segments)), nil)
	}
	return s.segments[r.First-1 : r.Last], nil
}
