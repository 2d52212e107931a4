package utils

import (
	"testing"
	"time"
)

func TestParseStringTime(t *testing.T) {
	tests := []struct {
		timeString string
		expected   time.Duration
	}{
		{"10s", 10 * time.Second},
		{"20M", 20 * time.Minute},
		{"48h", 48 * time.Hour},
		{"2d", 2 * time.Hour * 24},
		{"500ms", 500 * time.Millisecond},
		{"1m30s", 90 * time.Second},
		{"", 0},
		{"0", 0},
	}

	for _, test := range tests {
		result, err := ParseStringTime(test.timeString)
		if err != nil {
			t.Errorf("ParseStringTime(%s): unexpected error %v", test.timeString, err)
			continue
		}
		if result != test.expected {
			t.Errorf("ParseStringTime(%s): expected %v, got %v", test.timeString, test.expected, result)
		}
	}
}

func TestParseStringTimeInvalid(t *testing.T) {
	for _, input := range []string{"abc", "10x", "xd", "-5s"} {
		if _, err := ParseStringTime(input); err == nil {
			t.Errorf("ParseStringTime(%s): expected error, got nil", input)
		}
	}
	if got := MustParseStringTime("bogus"); got != 0 {
		t.Errorf("MustParseStringTime(bogus): expected 0, got %v", got)
	}
}
