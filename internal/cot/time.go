package cot

import "time"

// timeLayouts are tried in order: with fractional seconds, without, and
// finally a basic literal-Z fallback, per spec.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
}

// parseCotTime parses an ISO-8601 CoT timestamp, defaulting to the
// current time when the input is empty or matches none of the accepted
// layouts.
func parseCotTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// formatCotTime renders t in the millisecond-precision form CoT events
// carry on the wire.
func formatCotTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
