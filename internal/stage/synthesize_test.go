package stage

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

type fakeSynthesizer struct {
	calls  []string
	voices []string
	fail   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voice, language, dest string) error {
	f.calls = append(f.calls, text)
	f.voices = append(f.voices, voice)
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func (f *fakeSynthesizer) HealthCheck(ctx context.Context) error { return nil }

func writeTranslation(t *testing.T, ws Workspace, segments []subtitles.Segment) {
	t.Helper()
	if err := ws.Ensure(); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	if err := subtitles.WriteTimedTextFile(ws.TranslationText(), segments); err != nil {
		t.Fatalf("write translation: %v", err)
	}
}

func TestSynthesizeStageExecuteChunk(t *testing.T) {
	cfg := testStageConfig(t)
	cfg.Synthesizer.MaxSegmentsPerChunk = 2
	job := testStageJob("job-synth")
	ws := NewWorkspace(cfg.Paths.StagingDir, job.ID)
	writeTranslation(t, ws, makeSegments(5))

	synth := &fakeSynthesizer{}
	st := NewSynthesize(cfg, synth)
	ctx := context.Background()

	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	chunks, err := st.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 5 segments at 2 per chunk, got %d", len(chunks))
	}

	payload, err := st.ExecuteChunk(ctx, job, chunks[1])
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var result chunkClips
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(result.Clips))
	}
	for _, clip := range result.Clips {
		if _, err := os.Stat(clip.Path); err != nil {
			t.Fatalf("clip %d not written: %v", clip.SegmentIndex, err)
		}
	}
	if result.Clips[0].SegmentIndex != 3 || result.Clips[1].SegmentIndex != 4 {
		t.Fatalf("chunk 1 should cover segments 3-4, got %d-%d",
			result.Clips[0].SegmentIndex, result.Clips[1].SegmentIndex)
	}
	for _, voice := range synth.voices {
		if voice != "en_female_1" {
			t.Fatalf("expected configured female voice, got %q", voice)
		}
	}
}

func TestSynthesizeStageMaleVoice(t *testing.T) {
	cfg := testStageConfig(t)
	job := testStageJob("job-male")
	job.VoiceGender = "male"
	ws := NewWorkspace(cfg.Paths.StagingDir, job.ID)
	writeTranslation(t, ws, makeSegments(1))

	synth := &fakeSynthesizer{}
	st := NewSynthesize(cfg, synth)
	ctx := context.Background()
	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	chunks, err := st.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := st.ExecuteChunk(ctx, job, chunks[0]); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(synth.voices) != 1 || synth.voices[0] != "en_male_1" {
		t.Fatalf("expected male voice, got %v", synth.voices)
	}
}

func TestSynthesizeStageUnknownLanguageIsFatal(t *testing.T) {
	cfg := testStageConfig(t)
	job := testStageJob("job-novoice")
	job.TargetLanguage = "fr"
	ws := NewWorkspace(cfg.Paths.StagingDir, job.ID)
	writeTranslation(t, ws, makeSegments(1))

	st := NewSynthesize(cfg, &fakeSynthesizer{})
	err := st.Prepare(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for unmapped language")
	}
	if services.Classify(err) != services.ClassFatal {
		t.Fatalf("expected fatal classification, got %v", err)
	}
}

func TestSynthesizeStagePropagatesAdapterError(t *testing.T) {
	cfg := testStageConfig(t)
	job := testStageJob("job-synthfail")
	ws := NewWorkspace(cfg.Paths.StagingDir, job.ID)
	writeTranslation(t, ws, makeSegments(2))

	wantErr := services.Wrap(services.ErrTransient, "synthesize", "request", "service unavailable", nil)
	st := NewSynthesize(cfg, &fakeSynthesizer{fail: wantErr})
	ctx := context.Background()
	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	chunks, err := st.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := st.ExecuteChunk(ctx, job, chunks[0]); services.Classify(err) != services.ClassTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}
