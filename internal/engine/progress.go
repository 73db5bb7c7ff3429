package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// ffmpeg reports processed media time on stderr as e.g.
//
//	frame= 123 fps= 30 q=28.0 size= 1024KiB time=00:01:23.45 bitrate= ...
var timeMarkerRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseTimeMarker extracts the elapsed media seconds from one progress line.
func parseTimeMarker(line string) (float64, bool) {
	m := timeMarkerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, err1 := strconv.Atoi(m[1])
	minutes, err2 := strconv.Atoi(m[2])
	seconds, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, true
}

// trimProgressLines removes the repeating progress lines from a stderr tail
// so diagnostics attached to errors stay readable.
func trimProgressLines(stderr string) string {
	lines := strings.Split(stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "frame=") || strings.HasPrefix(trimmed, "size=") {
			continue
		}
		if timeMarkerRe.MatchString(trimmed) && strings.Contains(trimmed, "bitrate=") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
