package progress

import "testing"

func TestPercentAfter(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  int
	}{
		{"assemble", "Assemble - 37%", 37},
		{"assemble zero", "Assemble - 0%", 0},
		{"assemble hundred", "Assemble - 100%", 100},
		{"over hundred rejected", "Assemble - 250%", -1},
		{"too many digits", "Assemble - 1000%", -1},
		{"no digits", "Assemble - done", -1},
		{"marker absent", "something else", -1},
		{"last occurrence wins", "Assemble - 10%\rAssemble - 20%", 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentAfter([]byte(tt.chunk), markerAssemble); got != tt.want {
				t.Fatalf("percentAfter(%q) = %d, want %d", tt.chunk, got, tt.want)
			}
		})
	}
}

func TestFFmpegMediaSeconds(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  int
	}{
		{"stats line", "size=1024kB time=00:12:34.56 bitrate=63.9kbits/s speed=31.2x", 754},
		{"hours", "size=90112kB time=01:00:00.00 bitrate=... speed=30x", 3600},
		{"missing size and speed", "time=00:12:34.56 bitrate=...", -1},
		{"malformed time", "size=10kB time=0:12:34", -1},
		{"no time at all", "size=10kB speed=1x", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ffmpegMediaSeconds([]byte(tt.chunk)); got != tt.want {
				t.Fatalf("ffmpegMediaSeconds(%q) = %d, want %d", tt.chunk, got, tt.want)
			}
		})
	}
}

func TestContainsRareMarker(t *testing.T) {
	if containsRareMarker([]byte("Assemble - 37%")) {
		t.Fatal("high-frequency assemble line misclassified as rare")
	}
	if !containsRareMarker([]byte("Processing chapter 3 of 12: The Journey")) {
		t.Fatal("chapter start line not recognized as rare")
	}
	if !containsRareMarker([]byte(`{"status": "ok", "output_file": "/out/book.m4b"}`)) {
		t.Fatal("success JSON not recognized as rare")
	}
}
