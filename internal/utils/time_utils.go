package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStringTime parses durations such as "500ms", "10s", "5m", "2h" and "1d".
// Anything time.ParseDuration accepts is accepted as well.
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "" || timeString == "0" {
		return 0, nil
	}
	if cutString, found := strings.CutSuffix(timeString, "d"); found {
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time format: %s", timeString)
		}
		return time.Duration(number) * time.Hour * 24, nil
	}
	duration, err := time.ParseDuration(timeString)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %s", timeString)
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration: %s", timeString)
	}
	return duration, nil
}

// MustParseStringTime is ParseStringTime for values that were validated earlier.
func MustParseStringTime(timeString string) time.Duration {
	duration, err := ParseStringTime(timeString)
	if err != nil {
		return 0
	}
	return duration
}
