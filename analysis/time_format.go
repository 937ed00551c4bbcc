package analysis

import (
	"math"
	"time"
)

func startTimeISO8601(startTime *float64) string {
	if startTime == nil {
		return ""
	}
	// Session start times are unix seconds. Treat non-positive values as unset
	// so human-facing artifacts never show 1970-era strings.
	if *startTime <= 0 {
		return ""
	}
	ns := int64(math.Round(*startTime * 1e9))
	return time.Unix(0, ns).UTC().Format(time.RFC3339)
}

func timestampISO8601(millis int64) string {
	if millis <= 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
