package progress

import "bytes"

// High-frequency markers. Lines carrying these can repeat hundreds of times
// per second; they are handled on raw bytes, with no string materialization,
// because the transient allocation of decoding each one dominates memory on
// long books.
var (
	markerAssemble   = []byte("Assemble - ")
	markerExport     = []byte("Export - ")
	markerFFmpegTime = []byte("time=")
	markerFFmpegSize = []byte("size=")
	markerFFmpegSpd  = []byte("speed=")
)

// Rare phase-transition markers. A chunk containing any of these is always
// decoded and run through the line matchers, regardless of throttle state.
var rareMarkers = [][]byte{
	[]byte("Found "),
	[]byte("Processing chapter"),
	[]byte("Finished chapter"),
	[]byte("Concatenating"),
	[]byte("Writing concat list"),
	[]byte("Merging audio"),
	[]byte("Normalizing loudness"),
	[]byte("Encoding AAC"),
	[]byte("saved to"),
	[]byte("output_file"),
	[]byte("Adding cover"),
	[]byte("Writing VTT"),
	[]byte("chapter markers"),
}

func containsRareMarker(chunk []byte) bool {
	for _, marker := range rareMarkers {
		if bytes.Contains(chunk, marker) {
			return true
		}
	}
	return false
}

// percentAfter extracts the integer percentage following marker in chunk
// ("Assemble - 37%"). Returns -1 when the marker is absent or malformed.
func percentAfter(chunk, marker []byte) int {
	idx := bytes.LastIndex(chunk, marker)
	if idx < 0 {
		return -1
	}
	rest := chunk[idx+len(marker):]
	value := 0
	digits := 0
	for _, b := range rest {
		if b < '0' || b > '9' {
			break
		}
		value = value*10 + int(b-'0')
		digits++
		if digits > 3 {
			return -1
		}
	}
	if digits == 0 || value > 100 {
		return -1
	}
	return value
}

// ffmpegMediaSeconds extracts the elapsed media time from an ffmpeg stats
// line ("... size=1024kB time=00:12:34.56 bitrate=... speed=31x"). Returns
// -1 when the line is not an ffmpeg stats line.
func ffmpegMediaSeconds(chunk []byte) int {
	if !bytes.Contains(chunk, markerFFmpegSize) && !bytes.Contains(chunk, markerFFmpegSpd) {
		return -1
	}
	idx := bytes.LastIndex(chunk, markerFFmpegTime)
	if idx < 0 {
		return -1
	}
	rest := chunk[idx+len(markerFFmpegTime):]
	if len(rest) < 8 {
		return -1
	}
	// HH:MM:SS with fixed positions.
	if rest[2] != ':' || rest[5] != ':' {
		return -1
	}
	hours, ok1 := twoDigits(rest[0], rest[1])
	minutes, ok2 := twoDigits(rest[3], rest[4])
	seconds, ok3 := twoDigits(rest[6], rest[7])
	if !ok1 || !ok2 || !ok3 {
		return -1
	}
	return hours*3600 + minutes*60 + seconds
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
