package database

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochSeconds scans timestamp columns from either backend. SQLite stores
// Unix seconds in INTEGER columns while PostgreSQL returns TIMESTAMPTZ
// values as time.Time. NULL scans to zero, which the callers treat as
// "never" or "expired".
type epochSeconds int64

func (e *epochSeconds) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*e = 0
	case int64:
		*e = epochSeconds(v)
	case time.Time:
		*e = epochSeconds(v.Unix())
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
	return nil
}

// Uint32 saturates the timestamp into the unsigned 32 bit range used on
// the wire.
func (e epochSeconds) Uint32() uint32 {
	if e < 0 {
		return 0
	}
	if e > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(e)
}

// ipValue scans IPv4 address columns. SQLite stores the host byte order
// numeric form, PostgreSQL uses INET columns which arrive as text.
type ipValue uint32

func (v *ipValue) Scan(value any) error {
	switch raw := value.(type) {
	case nil:
		*v = 0
	case int64:
		*v = ipValue(uint32(raw))
	case string:
		return v.parse(raw)
	case []byte:
		return v.parse(string(raw))
	default:
		return fmt.Errorf("cannot scan %T into IP address", value)
	}
	return nil
}

func (v *ipValue) parse(s string) error {
	// INET values may carry a netmask suffix.
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	ip, ok := ParseIP(s)
	if !ok {
		return fmt.Errorf("invalid IP address %q", s)
	}
	*v = ipValue(ip)
	return nil
}

func (v ipValue) Uint32() uint32 { return uint32(v) }

// boolFlag scans flag columns that SQLite stores as INTEGER and
// PostgreSQL expressions yield as BOOLEAN.
type boolFlag bool

func (b *boolFlag) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*b = false
	case bool:
		*b = boolFlag(v)
	case int64:
		*b = v != 0
	default:
		return fmt.Errorf("cannot scan %T into flag", value)
	}
	return nil
}

// ParseIP parses a dotted quad IPv4 address into its host byte order
// numeric form, first octet in the most significant byte. It accepts
// exactly four decimal octets in the 0-255 range.
func ParseIP(s string) (uint32, bool) {
	var ip uint32
	rest := s
	for i := 0; i < 4; i++ {
		part := rest
		if i < 3 {
			dot := strings.IndexByte(rest, '.')
			if dot < 0 {
				return 0, false
			}
			part, rest = rest[:dot], rest[dot+1:]
		}
		octet, err := strconv.Atoi(part)
		if err != nil || octet < 0 || octet > 0xFF {
			return 0, false
		}
		ip = ip<<8 | uint32(octet)
	}
	return ip, true
}

// FormatIP renders a host byte order IPv4 address as a dotted quad.
func FormatIP(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip>>24&0xFF, ip>>16&0xFF, ip>>8&0xFF, ip&0xFF)
}
