package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes after midnight as "HH:MM", wrapping past 24h.
func FormatClock(minutes int) string {
	minutes %= 24 * 60
	if minutes < 0 {
		minutes += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

var durationPart = regexp.MustCompile(`(\d+(?:[.,]\d+)?)(?:\s*-\s*(\d+(?:[.,]\d+)?))?\s*(horas?|hours?|hrs?|h|minutos?|minutes?|mins?|m)`)

// ParseDurationLabel reads free-text durations such as "30-45 min", "1.5 hours",
// "2-3 horas" or "1h 30m". Ranges resolve to their upper bound. Returns 0 when
// nothing parses.
func ParseDurationLabel(label string) int {
	total := 0.0
	for _, match := range durationPart.FindAllStringSubmatch(strings.ToLower(label), -1) {
		number := match[1]
		if match[2] != "" {
			number = match[2]
		}
		value, err := strconv.ParseFloat(strings.Replace(number, ",", ".", 1), 64)
		if err != nil {
			continue
		}
		if strings.HasPrefix(match[3], "h") {
			value *= 60
		}
		total += value
	}
	return int(math.Round(total))
}
