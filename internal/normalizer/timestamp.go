package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// unixSecondsFloor is 2000-01-01T00:00:00Z in Unix seconds; numeric
// timestamps at or above this are interpreted as seconds, below as
// milliseconds (§4.2 Timestamp parsing policy, step 2).
const unixSecondsFloor = 946_684_800

// ParseTimestamp applies the §4.2 strict-precedence timestamp parsing
// policy to a raw, permissively-shaped JSON value (string or number). It
// never errors: on total failure it returns now (UTC) and ok=false so the
// caller can log a warning.
func ParseTimestamp(raw json.RawMessage, now func() time.Time) (t time.Time, ok bool) {
	if now == nil {
		now = time.Now
	}
	if len(raw) == 0 {
		return now().UTC(), false
	}

	// Step 1: RFC 3339 string, optional Z, naive time treated as UTC.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, perr := parseRFC3339OrNaive(s); perr == nil {
			return t, true
		}
		// Step 2: numeric string.
		if t, nerr := parseNumeric(s); nerr == nil {
			return t, true
		}
		return now().UTC(), false
	}

	// Step 2: bare numeric literal.
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return unixFromFloat(f), true
	}

	return now().UTC(), false
}

func parseRFC3339OrNaive(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, strconv.ErrSyntax
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	// Naive (no timezone offset, no Z): treat as UTC.
	const naiveLayout = "2006-01-02T15:04:05"
	if t, err := time.Parse(naiveLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, strconv.ErrSyntax
}

func parseNumeric(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, err
	}
	return unixFromFloat(f), nil
}

func unixFromFloat(f float64) time.Time {
	if f >= unixSecondsFloor {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	ms := int64(f)
	return time.UnixMilli(ms).UTC()
}
