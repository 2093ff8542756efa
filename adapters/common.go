package adapters

import "time"

// parseRFC3339Lenient parses an upstream timestamp, tolerating the bare
// "Z" suffix form as well as full offsets. A value that fails to parse
// comes back as the zero time rather than erroring the whole fetch — a
// single malformed timestamp in a batch shouldn't take down the others.
func parseRFC3339Lenient(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
