package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/subtitles"
	"dubflow/internal/testsupport"
)

func testStageConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t)
}

func testStageJob(id string) *queue.Job {
	return &queue.Job{
		ID:             id,
		SourcePath:     "/media/source.mkv",
		SourceLanguage: "ko",
		TargetLanguage: "en",
		VoiceGender:    "female",
		Duration:       90 * time.Second,
	}
}

func writeTranscript(t *testing.T, cfg *config.Config, jobID string, segments []subtitles.Segment) Workspace {
	t.Helper()
	ws := NewWorkspace(cfg.Paths.StagingDir, jobID)
	if err := ws.Ensure(); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	if err := subtitles.WriteTimedTextFile(ws.TranscriptText(), segments); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return ws
}

func makeSegments(n int) []subtitles.Segment {
	segments := make([]subtitles.Segment, n)
	for i := range segments {
		segments[i] = subtitles.Segment{
			Index: i + 1,
			Start: time.Duration(i*2) * time.Second,
			End:   time.Duration(i*2+1) * time.Second,
			Text:  fmt.Sprintf("line %d", i+1),
		}
	}
	return segments
}

type fakeTranslator struct {
	calls int
	fail  error
}

func (f *fakeTranslator) TranslateBatch(ctx context.Context, segments []subtitles.Segment, sourceLang, targetLang string) ([]subtitles.Segment, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([]subtitles.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		out[i].Text = "EN " + seg.Text
	}
	return out, nil
}

func (f *fakeTranslator) HealthCheck(ctx context.Context) error { return nil }

func TestTranslateStageRoundTrip(t *testing.T) {
	cfg := testStageConfig(t)
	cfg.Translator.MaxSegmentsPerChunk = 3
	job := testStageJob("job-translate")
	ws := writeTranscript(t, cfg, job.ID, makeSegments(7))

	translator := &fakeTranslator{}
	st := NewTranslate(cfg, translator)
	ctx := context.Background()

	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	chunks, err := st.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 7 segments at 3 per chunk, got %d", len(chunks))
	}

	results := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		payload, err := st.ExecuteChunk(ctx, job, chunk)
		if err != nil {
			t.Fatalf("execute chunk %d: %v", i, err)
		}
		results[i] = payload
	}
	if translator.calls != 3 {
		t.Fatalf("expected 3 translator calls, got %d", translator.calls)
	}

	if err := st.Merge(ctx, job, results); err != nil {
		t.Fatalf("merge: %v", err)
	}
	merged, err := subtitles.ParseTimedTextFile(ws.TranslationText())
	if err != nil {
		t.Fatalf("parse translation: %v", err)
	}
	if len(merged) != 7 {
		t.Fatalf("expected 7 translated segments, got %d", len(merged))
	}
	for i, seg := range merged {
		if seg.Index != i+1 {
			t.Fatalf("segment %d has index %d", i, seg.Index)
		}
		if !strings.HasPrefix(seg.Text, "EN ") {
			t.Fatalf("segment %d not translated: %q", i, seg.Text)
		}
	}
}

func TestTranslateStagePrepareMissingTranscript(t *testing.T) {
	cfg := testStageConfig(t)
	st := NewTranslate(cfg, &fakeTranslator{})

	err := st.Prepare(context.Background(), testStageJob("job-missing"))
	if err == nil {
		t.Fatal("expected error for missing transcript")
	}
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
}

func TestTranslateStageMergeCountMismatch(t *testing.T) {
	cfg := testStageConfig(t)
	job := testStageJob("job-mismatch")
	writeTranscript(t, cfg, job.ID, makeSegments(4))

	st := NewTranslate(cfg, &fakeTranslator{})
	ctx := context.Background()
	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	short := []byte(`{"segments":[{"index":1,"start":0,"end":1000000000,"text":"only one"}]}`)
	err := st.Merge(ctx, job, [][]byte{short})
	if err == nil {
		t.Fatal("expected error for incomplete translation")
	}
	if !services.Classify(err).IsPermanent() {
		t.Fatalf("count mismatch must be permanent, got %v", err)
	}
}

func TestTranslateStageExecuteChunkPropagatesError(t *testing.T) {
	cfg := testStageConfig(t)
	job := testStageJob("job-fail")
	writeTranscript(t, cfg, job.ID, makeSegments(2))

	wantErr := services.Wrap(services.ErrTransient, "translate", "request", "connection refused", nil)
	st := NewTranslate(cfg, &fakeTranslator{fail: wantErr})
	ctx := context.Background()
	if err := st.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	chunks, err := st.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := st.ExecuteChunk(ctx, job, chunks[0]); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error from adapter, got %v", err)
	}
}
