// Package util holds small helpers shared by the HTTP layer.
package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimeFlexible parses the time formats accepted in query parameters
// such as the anomaly listing's since bound: RFC3339 with or without
// sub-second precision, or epoch milliseconds. The result is always UTC.
func ParseTimeFlexible(timeStr string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t.UTC(), nil
		}
	}

	if ms, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
}
