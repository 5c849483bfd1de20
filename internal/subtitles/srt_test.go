package subtitles

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSegments() []Segment {
	return []Segment{
		{Index: 1, Start: 1500 * time.Millisecond, End: 3200 * time.Millisecond, Text: "First line"},
		{Index: 2, Start: 4 * time.Second, End: 6*time.Second + 750*time.Millisecond, Text: "Second line\ncontinues here"},
	}
}

func TestRenderSRT(t *testing.T) {
	got := RenderSRT(sampleSegments())
	want := "1\n00:00:01,500 --> 00:00:03,200\nFirst line\n\n2\n00:00:04,000 --> 00:00:06,750\nSecond line\ncontinues here\n"
	if got != want {
		t.Fatalf("unexpected SRT output:\n%s", got)
	}
}

func TestParseSRTRoundTrip(t *testing.T) {
	original := sampleSegments()
	parsed, err := ParseSRT(RenderSRT(original))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("segment count %d, want %d", len(parsed), len(original))
	}
	for i, seg := range parsed {
		if seg.Start != original[i].Start || seg.End != original[i].End {
			t.Errorf("segment %d timing %s-%s, want %s-%s", i, seg.Start, seg.End, original[i].Start, original[i].End)
		}
		if seg.Text != original[i].Text {
			t.Errorf("segment %d text %q, want %q", i, seg.Text, original[i].Text)
		}
	}
}

func TestParseSRTAcceptsPeriodMillis(t *testing.T) {
	segments, err := ParseSRT("1\n00:00:01.500 --> 00:00:02.000\nhello\n")
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(segments) != 1 || segments[0].Start != 1500*time.Millisecond {
		t.Fatalf("unexpected parse result: %+v", segments)
	}
}

func TestParseSRTRejectsMissingTimestamp(t *testing.T) {
	if _, err := ParseSRT("1\nno timestamps here\n"); err == nil {
		t.Fatal("expected error for cue without timestamp line")
	}
}

func TestParseSRTEmptyInput(t *testing.T) {
	segments, err := ParseSRT("  \n\n ")
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(segments))
	}
}

func TestWriteAndParseSRTFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	if err := WriteSRTFile(path, sampleSegments()); err != nil {
		t.Fatalf("WriteSRTFile: %v", err)
	}
	segments, err := ParseSRTFile(path)
	if err != nil {
		t.Fatalf("ParseSRTFile: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
}

func TestFormatSRTTimestamp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00,000"},
		{1*time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "01:02:03,045"},
		{-time.Second, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := FormatSRTTimestamp(tc.in); got != tc.want {
			t.Errorf("FormatSRTTimestamp(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTimedTextRoundTrip(t *testing.T) {
	original := sampleSegments()
	original[1].Text = "dash - inside - text"
	parsed, err := ParseTimedText(RenderTimedText(original))
	if err != nil {
		t.Fatalf("ParseTimedText: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(parsed))
	}
	if parsed[1].Text != "dash - inside - text" {
		t.Fatalf("text with separators mangled: %q", parsed[1].Text)
	}
	if parsed[0].Start != 1500*time.Millisecond || parsed[0].End != 3200*time.Millisecond {
		t.Fatalf("timing lost: %+v", parsed[0])
	}
}

func TestParseTimedTextRejectsMalformedLine(t *testing.T) {
	_, err := ParseTimedText("1500 3200 missing separators")
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line 1 error, got %v", err)
	}
}
