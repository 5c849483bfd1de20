package media

import (
	"context"
	"testing"
	"time"
)

func TestExtractAudioValidation(t *testing.T) {
	ctx := context.Background()
	if err := ExtractAudio(ctx, "ffmpeg", "in.mkv", -1, 0, 0, "out.wav"); err == nil {
		t.Fatal("expected error for negative stream index")
	}
	if err := ExtractAudio(ctx, "ffmpeg", "in.mkv", 0, -time.Second, 0, "out.wav"); err == nil {
		t.Fatal("expected error for negative trim start")
	}
	if err := ExtractAudio(ctx, "ffmpeg", "in.mkv", 0, 0, -time.Second, "out.wav"); err == nil {
		t.Fatal("expected error for negative trim end")
	}
}

func TestComposeValidation(t *testing.T) {
	ctx := context.Background()
	err := Compose(ctx, "ffmpeg", ComposeOptions{AudioPath: "a.wav", Dest: "out.mkv"})
	if err == nil {
		t.Fatal("expected error for missing video path")
	}
	err = Compose(ctx, "ffmpeg", ComposeOptions{
		VideoPath: "in.mkv",
		AudioPath: "a.wav",
		Dest:      "out.mkv",
		TrimStart: -time.Second,
	})
	if err == nil {
		t.Fatal("expected error for negative trim bound")
	}
}
