package util

import (
	"strconv"
	"strings"
)

// ParseInt64 parses a base-10 int64, trimming surrounding spaces.
func ParseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
