package audio

import "testing"

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"movie.mp4", true},
		{"movie.MKV", true},
		{"clip.webm", true},
		{"song.mp3", false},
		{"image.jpg", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.path); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"narration.mp3", true},
		{"narration.WAV", true},
		{"voice.m4a", true},
		{"movie.mp4", false},
		{"doc.txt", false},
	}
	for _, tt := range tests {
		if got := IsAudioFile(tt.path); got != tt.want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsMediaFile(t *testing.T) {
	if !IsMediaFile("a.mp3") || !IsMediaFile("a.mp4") {
		t.Error("audio and video files are media files")
	}
	if IsMediaFile("a.pdf") {
		t.Error("pdf is not a media file")
	}
}

func TestGetDurationMissingFile(t *testing.T) {
	if _, err := GetDuration("/nonexistent/audio.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
}
