package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTime converts a requirement time of the form HH:MM:SS or
// D.HH:MM:SS to seconds. Hours may exceed 23.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var days int64
	if d, rest, ok := strings.Cut(s, "."); ok {
		n, err := strconv.ParseInt(d, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad time %q", s)
		}
		days = n
		s = rest
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad time %q: want HH:MM:SS", s)
	}
	var v [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad time %q", s)
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return 0, fmt.Errorf("bad time %q: minutes and seconds must be below 60", s)
	}
	return days*86400 + v[0]*3600 + v[1]*60 + v[2], nil
}

// FormatSeconds renders a duration as "Xd Yh Zm", dropping zero parts.
// Zero renders as "N/A" and anything under a minute as "0m".
func FormatSeconds(secs int64) string {
	if secs <= 0 {
		return "N/A"
	}
	days := secs / 86400
	hours := secs % 86400 / 3600
	mins := secs % 3600 / 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}
