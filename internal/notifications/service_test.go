package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dubflow/internal/config"
	"dubflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "Example", "/output/example.en.mkv"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceSendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotTags, gotPriority, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notify.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyJobCompleted(context.Background(), "Episode 1", "/output/ep1.en.mkv"); err != nil {
		t.Fatalf("notify completed: %v", err)
	}
	if gotTitle != "dubflow - Complete" {
		t.Errorf("unexpected title %q", gotTitle)
	}
	if gotTags != "dubflow,job,completed" {
		t.Errorf("unexpected tags %q", gotTags)
	}
	if gotPriority != "high" {
		t.Errorf("unexpected priority %q", gotPriority)
	}
	if gotBody != "Dub complete: Episode 1\nFile: /output/ep1.en.mkv" {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestNtfyServiceFailedIncludesReason(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notify.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyJobFailed(context.Background(), "Episode 2", "translate: segment count mismatch"); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if gotBody != "Dub failed: Episode 2\nReason: translate: segment count mismatch" {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notify.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
