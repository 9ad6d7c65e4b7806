package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

func testLines() []timeline.SubtitleLine {
	words1 := []timeline.Word{
		{Text: "A", Start: 0, End: 200 * time.Millisecond},
		{Text: "dog", Start: 200 * time.Millisecond, End: 500 * time.Millisecond},
		{Text: "runs.", Start: 500 * time.Millisecond, End: 1200 * time.Millisecond},
	}
	words2 := []timeline.Word{
		{Text: "A", Start: 1500 * time.Millisecond, End: 1700 * time.Millisecond},
		{Text: "cat", Start: 1700 * time.Millisecond, End: 2 * time.Second},
		{Text: "sleeps.", Start: 2 * time.Second, End: 3 * time.Second},
	}
	return []timeline.SubtitleLine{
		{Words: words1, Start: 0, End: 1200 * time.Millisecond},
		{Words: words2, Start: 1500 * time.Millisecond, End: 3 * time.Second},
	}
}

func TestSRTWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	w := &SRTWriter{}
	if err := w.Write(testLines(), path); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "00:00:00,000 --> 00:00:01,200") {
		t.Errorf("missing first timestamp line:\n%s", content)
	}
	if !strings.Contains(content, "00:00:01,500 --> 00:00:03,000") {
		t.Errorf("missing second timestamp line:\n%s", content)
	}
	if !strings.Contains(content, "A dog runs.") {
		t.Errorf("missing first line text:\n%s", content)
	}
	if !strings.HasPrefix(content, "1\n") {
		t.Errorf("entries should be 1-indexed:\n%s", content)
	}
}

func TestVTTWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.vtt")
	w := &VTTWriter{}
	if err := w.Write(testLines(), path); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "WEBVTT\n") {
		t.Errorf("missing WEBVTT header:\n%s", content)
	}
	if !strings.Contains(content, "00:00:00.000 --> 00:00:01.200") {
		t.Errorf("missing dot-separated timestamps:\n%s", content)
	}
}

func TestNewWriter(t *testing.T) {
	if _, err := NewWriter(FormatSRT); err != nil {
		t.Errorf("NewWriter(srt) error: %v", err)
	}
	if _, err := NewWriter(FormatVTT); err != nil {
		t.Errorf("NewWriter(vtt) error: %v", err)
	}
	if _, err := NewWriter(Format("ass")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestGetFormatFromExtension(t *testing.T) {
	if GetFormatFromExtension("a.vtt") != FormatVTT {
		t.Error("vtt extension should map to VTT")
	}
	if GetFormatFromExtension("a.srt") != FormatSRT {
		t.Error("srt extension should map to SRT")
	}
	if GetFormatFromExtension("a.unknown") != FormatSRT {
		t.Error("unknown extension should default to SRT")
	}
}
