package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dubflow/internal/config"
	"dubflow/internal/media"
	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/services"
)

// Compose muxes the dubbed audio track back into the source video, with
// the translated subtitles either burned in or carried as a soft track.
type Compose struct {
	cfg   *config.Config
	store *queue.Store
}

// NewCompose constructs the composition stage.
func NewCompose(cfg *config.Config, store *queue.Store) *Compose {
	return &Compose{cfg: cfg, store: store}
}

func (c *Compose) Name() string { return queue.StageCompose }

// composeResult is the checkpointed output of the single compose chunk.
type composeResult struct {
	FinalFile string `json:"final_file"`
}

// Prepare verifies the dubbed track exists before composition starts.
func (c *Compose) Prepare(ctx context.Context, job *queue.Job) error {
	ws := NewWorkspace(c.cfg.Paths.StagingDir, job.ID)
	if _, err := os.Stat(ws.DubbedAudioPath()); err != nil {
		return services.Wrap(services.ErrFatal, c.Name(), "prepare", "dubbed audio missing", err)
	}
	return nil
}

// Plan always yields exactly one chunk; composition is a single ffmpeg run.
func (c *Compose) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	return plan.SingleChunk(job.ID, c.Name(), job.Duration)
}

// ExecuteChunk writes the final dubbed video into the output directory.
func (c *Compose) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	ws := NewWorkspace(c.cfg.Paths.StagingDir, job.ID)
	dest := c.outputPath(job)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, services.Wrap(services.ErrFatal, c.Name(), "execute", "create output directory", err)
	}

	mediaCtx, cancel := mediaContext(ctx, c.cfg)
	defer cancel()
	err := media.Compose(mediaCtx, c.cfg.FFmpegBinary(), media.ComposeOptions{
		VideoPath:    job.SourcePath,
		AudioPath:    ws.DubbedAudioPath(),
		SubtitlePath: ws.TranslationSRT(),
		BurnIn:       job.BurnSubtitles,
		TrimStart:    job.TrimStart,
		TrimEnd:      job.TrimEnd,
		Dest:         dest,
	})
	if err != nil {
		return nil, classifyMediaError(c.Name(), "compose video", err)
	}

	payload, err := json.Marshal(composeResult{FinalFile: dest})
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, c.Name(), "encode", "marshal compose result", err)
	}
	return payload, nil
}

// Merge records where the final file landed on the job.
func (c *Compose) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	if len(results) != 1 {
		return services.Wrap(services.ErrFatal, c.Name(), "merge",
			fmt.Sprintf("expected one result, got %d", len(results)), nil)
	}
	var result composeResult
	if err := json.Unmarshal(results[0], &result); err != nil {
		return services.Wrap(services.ErrFatal, c.Name(), "merge", "decode compose result", err)
	}
	if result.FinalFile == "" {
		return services.Wrap(services.ErrFatal, c.Name(), "merge", "compose result missing final file", nil)
	}
	// Durable before the job's terminal transition: a restart between the
	// two must not lose the asset reference.
	if err := c.store.SetFinalFile(ctx, job.ID, result.FinalFile); err != nil {
		return err
	}
	job.FinalFile = result.FinalFile
	return nil
}

// HealthCheck confirms ffmpeg is on the path.
func (c *Compose) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(c.cfg.FFmpegBinary()); err != nil {
		return services.Wrap(services.ErrFatal, c.Name(), "health", "ffmpeg not found", err)
	}
	return nil
}

// outputPath derives the final file name from the source, tagged with the
// target language.
func (c *Compose) outputPath(job *queue.Job) string {
	base := filepath.Base(job.SourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(c.cfg.Paths.OutputDir, fmt.Sprintf("%s.%s%s", stem, job.TargetLanguage, ext))
}
