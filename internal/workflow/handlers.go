package workflow

import (
	"fmt"

	"dubflow/internal/config"
	"dubflow/internal/queue"
	"dubflow/internal/services/translate"
	"dubflow/internal/services/tts"
	"dubflow/internal/services/whisper"
	"dubflow/internal/stage"
)

// HandlerFactory builds a fresh stage handler for one job run. Stage
// handlers carry per-job state between Prepare and Merge, so instances
// are never shared across jobs.
type HandlerFactory func(name string, job *queue.Job) (stage.Handler, error)

// NewHandlerFactory wires the real service clients into stage handlers.
// Clients are shared; handler instances are not.
func NewHandlerFactory(cfg *config.Config, store *queue.Store) HandlerFactory {
	transcriber := whisper.NewClient(whisper.Config{
		URL:            cfg.Transcriber.URL,
		TimeoutSeconds: cfg.Transcriber.TimeoutSeconds,
	})
	translator := translate.NewClient(translate.Config{
		APIKey:         cfg.Translator.APIKey,
		BaseURL:        cfg.Translator.BaseURL,
		Model:          cfg.Translator.Model,
		TimeoutSeconds: cfg.Translator.TimeoutSeconds,
	})
	synthesizer := tts.NewClient(tts.Config{
		URL:            cfg.Synthesizer.URL,
		TimeoutSeconds: cfg.Synthesizer.TimeoutSeconds,
	})

	return func(name string, job *queue.Job) (stage.Handler, error) {
		switch name {
		case queue.StageTranscribe:
			return stage.NewTranscribe(cfg, store, transcriber), nil
		case queue.StageTranslate:
			return stage.NewTranslate(cfg, translator), nil
		case queue.StageSynthesize:
			return stage.NewSynthesize(cfg, synthesizer), nil
		case queue.StageCompose:
			return stage.NewCompose(cfg, store), nil
		default:
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}
}
