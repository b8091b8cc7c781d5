package helpers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string the way configuration values are
// written: everything time.ParseDuration accepts, plus a "d" suffix for days
// ("14d", "30d", "1.5d"). Days are a flat 24 hours.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "d") {
		days, err := strconv.ParseFloat(lower[:len(lower)-1], 64)
		if err == nil && days >= 0 {
			return time.Duration(days * 24 * float64(time.Hour)), nil
		}
	}

	return 0, fmt.Errorf("invalid duration %q", s)
}
