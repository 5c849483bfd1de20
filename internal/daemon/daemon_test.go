package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"dubflow/internal/api"
	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/stage"
	"dubflow/internal/testsupport"
	"dubflow/internal/workflow"
)

// noopStage completes instantly so daemon tests exercise the HTTP surface
// without external services.
type noopStage struct {
	name string
}

func (s *noopStage) Name() string { return s.name }

func (s *noopStage) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (s *noopStage) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	return plan.SingleChunk(job.ID, s.name, time.Minute)
}

func (s *noopStage) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	return []byte(`{}`), nil
}

func (s *noopStage) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	if s.name == queue.StageCompose {
		job.FinalFile = "/output/final.mkv"
	}
	return nil
}

func (s *noopStage) HealthCheck(ctx context.Context) error { return nil }

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := workflow.HandlerFactory(func(name string, job *queue.Job) (stage.Handler, error) {
		return &noopStage{name: name}, nil
	})
	mgr := workflow.NewManagerWithFactory(cfg, store, nil, factory)
	d, err := New(cfg, store, nil, mgr)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("daemon did not bind an API address")
	}
	return d, "http://" + addr
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeJob(t *testing.T, resp *http.Response) api.Job {
	t.Helper()
	defer resp.Body.Close()
	var wrapped api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		t.Fatalf("decode job response: %v", err)
	}
	return wrapped.Job
}

func TestDaemonSubmitAndProcessJob(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/jobs", api.SubmitRequest{SourcePath: "/media/ep1.mkv"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	job := decodeJob(t, resp)
	if job.ID == "" || job.Status != "queued" {
		t.Fatalf("unexpected submitted job: %+v", job)
	}
	if job.SourceLanguage != "ko" || job.TargetLanguage != "en" {
		t.Fatalf("pipeline defaults not applied: %+v", job)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/api/jobs/" + job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		current := decodeJob(t, resp)
		if current.Status == "completed" {
			if current.FinalFile != "/output/final.mkv" {
				t.Fatalf("final file %q", current.FinalFile)
			}
			if len(current.Stages) != 4 {
				t.Fatalf("expected 4 stages in detail view, got %d", len(current.Stages))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s: %s", current.Status, current.ErrorMessage)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonStatusEndpoint(t *testing.T) {
	_, base := startTestDaemon(t)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.StageHealth) != 4 {
		t.Fatalf("expected 4 stage health entries, got %d", len(status.StageHealth))
	}
}

func TestDaemonRejectsSameLanguagePair(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/jobs", api.SubmitRequest{
		SourcePath:     "/media/ep1.mkv",
		SourceLanguage: "en",
		TargetLanguage: "en",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for identical languages, got %d", resp.StatusCode)
	}
}

func TestDaemonSubmitTrimWindow(t *testing.T) {
	d, base := startTestDaemon(t)
	d.workflow.Stop()

	resp := postJSON(t, base+"/api/jobs", api.SubmitRequest{
		SourcePath:  "/media/ep1.mkv",
		TrimStartMs: 90_000,
		TrimEndMs:   300_000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	job := decodeJob(t, resp)
	if job.TrimStartMs != 90_000 || job.TrimEndMs != 300_000 {
		t.Fatalf("trim window not persisted: %+v", job)
	}

	resp = postJSON(t, base+"/api/jobs", api.SubmitRequest{
		SourcePath:  "/media/ep1.mkv",
		TrimStartMs: 60_000,
		TrimEndMs:   30_000,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted trim window, got %d", resp.StatusCode)
	}
}

func TestDaemonSecondInstanceFailsLock(t *testing.T) {
	d, _ := startTestDaemon(t)

	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	factory := workflow.HandlerFactory(func(name string, job *queue.Job) (stage.Handler, error) {
		return &noopStage{name: name}, nil
	})
	second, err := New(d.cfg, store, nil, workflow.NewManagerWithFactory(d.cfg, store, nil, factory))
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestDaemonCancelQueuedJobOverAPI(t *testing.T) {
	d, base := startTestDaemon(t)
	// Stop the workflow so the job stays queued for the cancel call.
	d.workflow.Stop()

	resp := postJSON(t, base+"/api/jobs", api.SubmitRequest{SourcePath: "/media/ep2.mkv"})
	job := decodeJob(t, resp)

	cancelResp := postJSON(t, fmt.Sprintf("%s/api/jobs/%s/cancel", base, job.ID), struct{}{})
	cancelled := decodeJob(t, cancelResp)
	if cancelled.Status != "cancelled" {
		t.Fatalf("queued job should cancel immediately, got %s", cancelled.Status)
	}

	retryResp := postJSON(t, fmt.Sprintf("%s/api/jobs/%s/retry", base, job.ID), struct{}{})
	retried := decodeJob(t, retryResp)
	if retried.Status != "queued" {
		t.Fatalf("retried job should be queued, got %s", retried.Status)
	}
}
