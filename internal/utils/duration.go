package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day|week|month)s?`)

var unitLengths = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
}

// ParseDuration reads human-written durations like "2 days" or
// "1 hour 30 minutes". Units must be spelled out; all matched terms are
// summed. A month counts as 30 days.
func ParseDuration(input string) (time.Duration, error) {
	matches := durationPattern.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("could not parse duration from %q", input)
	}
	var total time.Duration
	for _, match := range matches {
		amount, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("could not parse duration from %q", input)
		}
		unit := strings.ToLower(match[2])
		total += time.Duration(amount) * unitLengths[unit]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", input)
	}
	return total, nil
}
