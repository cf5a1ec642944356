package database

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit lengths for interval arithmetic. Months and years are the fixed
// civil approximations; premium time is granted in whole days, so the
// approximation never surfaces to clients.
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
	secondsPerMonth  = 30 * secondsPerDay
	secondsPerYear   = 365 * secondsPerDay
)

var intervalUnits = map[string]int64{
	"second":     1,
	"sec":        1,
	"minute":     secondsPerMinute,
	"min":        secondsPerMinute,
	"hour":       secondsPerHour,
	"day":        secondsPerDay,
	"week":       secondsPerWeek,
	"month":      secondsPerMonth,
	"mon":        secondsPerMonth,
	"year":       secondsPerYear,
	"decade":     10 * secondsPerYear,
	"century":    100 * secondsPerYear,
	"centuries":  100 * secondsPerYear,
	"millennium": 1000 * secondsPerYear,
	"millennia":  1000 * secondsPerYear,
}

// ParseInterval converts PostgreSQL interval text to seconds. It accepts
// the postgres and verbose output styles: a sequence of `N unit` pairs,
// an optional `HH:MM:SS[.ffffff]` clock part, a leading `@` and a
// trailing `ago` that negates the whole value. Fractional seconds are
// truncated. The result saturates at the signed 32-bit bounds, which is
// the range timestamps occupy on the wire.
func ParseInterval(text string) (int64, bool) {
	var total int64
	negate := false

	fields := strings.Fields(text)
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "@":
			continue
		case strings.EqualFold(tok, "ago"):
			negate = true
		case strings.ContainsRune(tok, ':'):
			secs, ok := parseClock(tok)
			if !ok {
				return 0, false
			}
			total += secs
		default:
			// Quantity followed by a unit name.
			n, err := strconv.ParseInt(tok, 10, 64)
			if err != nil || i+1 >= len(fields) {
				return 0, false
			}
			i++
			unit, ok := intervalUnits[normalizeUnit(fields[i])]
			if !ok {
				return 0, false
			}
			total += n * unit
		}
	}

	if negate {
		total = -total
	}
	return clampInt32(total), true
}

// normalizeUnit lowercases a unit token and strips a plural s, keeping the
// irregular plurals intact so the unit table can list them.
func normalizeUnit(tok string) string {
	tok = strings.ToLower(tok)
	switch tok {
	case "centuries", "millennia":
		return tok
	}
	return strings.TrimSuffix(tok, "s")
}

// parseClock converts a [+-]HH:MM[:SS[.ffffff]] token to seconds.
func parseClock(tok string) (int64, bool) {
	sign := int64(1)
	switch {
	case strings.HasPrefix(tok, "-"):
		sign = -1
		tok = tok[1:]
	case strings.HasPrefix(tok, "+"):
		tok = tok[1:]
	}

	if i := strings.IndexByte(tok, '.'); i >= 0 {
		tok = tok[:i]
	}

	parts := strings.Split(tok, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}

	var secs int64
	for _, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		secs = secs*60 + v
	}
	if len(parts) == 2 {
		// HH:MM with no seconds field.
		secs *= 60
	}
	return sign * secs, true
}

func clampInt32(v int64) int64 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return v
}

// intervalSeconds scans duration columns. The embedded engine yields plain
// integer seconds; PostgreSQL statements cast intervals to text, which is
// parsed with the interval grammar.
type intervalSeconds int64

func (iv *intervalSeconds) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*iv = 0
	case int64:
		*iv = intervalSeconds(clampInt32(v))
	case string:
		secs, ok := ParseInterval(v)
		if !ok {
			return fmt.Errorf("invalid interval %q", v)
		}
		*iv = intervalSeconds(secs)
	case []byte:
		return iv.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into interval", value)
	}
	return nil
}

// Days rounds the interval up to whole days, the granularity premium time
// is granted in. Negative intervals round to zero.
func (iv intervalSeconds) Days() int {
	if iv <= 0 {
		return 0
	}
	return int((int64(iv) + secondsPerDay - 1) / secondsPerDay)
}
