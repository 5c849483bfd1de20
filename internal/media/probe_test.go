package media

import (
	"encoding/json"
	"testing"
	"time"
)

const sampleProbeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "tags": {"language": "eng"}},
    {"index": 2, "codec_name": "aac", "codec_type": "audio", "channels": 2, "tags": {"language": "kor", "title": "Korean"}}
  ],
  "format": {"filename": "movie.mp4", "nb_streams": 3, "duration": "185.300000", "format_name": "mov,mp4"}
}`

func sampleProbe(t *testing.T) ProbeResult {
	t.Helper()
	var result ProbeResult
	if err := json.Unmarshal([]byte(sampleProbeJSON), &result); err != nil {
		t.Fatalf("unmarshal probe fixture: %v", err)
	}
	return result
}

func TestProbeResultDuration(t *testing.T) {
	result := sampleProbe(t)
	want := 185*time.Second + 300*time.Millisecond
	if got := result.Duration(); got != want {
		t.Fatalf("Duration = %s, want %s", got, want)
	}
}

func TestProbeResultStreams(t *testing.T) {
	result := sampleProbe(t)
	if !result.HasVideoStream() {
		t.Fatal("expected video stream")
	}
	if got := len(result.AudioStreams()); got != 2 {
		t.Fatalf("audio stream count = %d, want 2", got)
	}
}

func TestSelectAudioStreamPrefersLanguage(t *testing.T) {
	result := sampleProbe(t)
	stream, err := result.SelectAudioStream("ko")
	if err != nil {
		t.Fatalf("SelectAudioStream: %v", err)
	}
	if stream.Index != 2 {
		t.Fatalf("selected stream %d, want 2", stream.Index)
	}
}

func TestSelectAudioStreamFallsBack(t *testing.T) {
	result := sampleProbe(t)
	stream, err := result.SelectAudioStream("fr")
	if err != nil {
		t.Fatalf("SelectAudioStream: %v", err)
	}
	if stream.Index != 1 {
		t.Fatalf("selected stream %d, want first audio stream 1", stream.Index)
	}
}

func TestSelectAudioStreamNoAudio(t *testing.T) {
	result := ProbeResult{Streams: []Stream{{Index: 0, CodecType: "video"}}}
	if _, err := result.SelectAudioStream("ko"); err == nil {
		t.Fatal("expected error when container has no audio")
	}
}
