package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var unitSuffixes = []struct {
	suffix string
	unit   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// ParseStringTime parses durations written as "30s", "5m", "48h" or "2d".
// Anything else is handed to time.ParseDuration, so "1h30m" and "250ms" work too.
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "" {
		return 0, fmt.Errorf("empty time string")
	}
	for _, s := range unitSuffixes {
		cutString, found := strings.CutSuffix(timeString, s.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(cutString)
		if err != nil {
			break
		}
		if number < 0 {
			return 0, fmt.Errorf("negative time string: %s", timeString)
		}
		return time.Duration(number) * s.unit, nil
	}
	d, err := time.ParseDuration(timeString)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %s", timeString)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative time string: %s", timeString)
	}
	return d, nil
}

// MustParseStringTime is ParseStringTime for values that were already validated.
func MustParseStringTime(timeString string) time.Duration {
	d, err := ParseStringTime(timeString)
	if err != nil {
		panic(err)
	}
	return d
}
