package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestReopenKeepsSchemaAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	job := newJob(t, store)
	if err := store.UpdateProgress(ctx, job.ID, 60, "synthesizing"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := OpenPath(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job after reopen: %v", err)
	}
	if loaded.ProgressPercent != 60 {
		t.Fatalf("progress %d after reopen, want 60", loaded.ProgressPercent)
	}
	// Progress stays monotonic across the reopen.
	if err := reopened.UpdateProgress(ctx, job.ID, 30, "stale write"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	loaded, err = reopened.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if loaded.ProgressPercent != 60 {
		t.Fatalf("progress regressed to %d after reopen", loaded.ProgressPercent)
	}
}

func TestOpenRejectsUnknownSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")

	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = ?", schemaVersion+1); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if _, err := OpenPath(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
