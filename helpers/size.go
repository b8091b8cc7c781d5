package helpers

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable size string ("512", "16kb", "25mb",
// "1gb") into bytes. Suffixes are case-insensitive; a bare number is bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "tb"):
		multiplier = 1 << 40
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "gb"):
		multiplier = 1 << 30
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "mb"):
		multiplier = 1 << 20
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "kb"):
		multiplier = 1 << 10
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "b"):
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
