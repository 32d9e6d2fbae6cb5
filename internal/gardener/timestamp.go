package gardener

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp is the opaque "seconds[.microseconds]" token Slack uses both as a
// point in time and as a pagination parameter. The raw string is preserved so
// it can be passed back to the API verbatim; ordering only considers the
// integer-seconds prefix.
type Timestamp struct {
	raw string
}

// NewTimestamp wraps a raw Slack timestamp string.
func NewTimestamp(raw string) Timestamp {
	return Timestamp{raw: raw}
}

// TimestampFromTime builds a second-precision Timestamp from a time.Time.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{raw: strconv.FormatInt(t.Unix(), 10)}
}

// String returns the raw token for use as an API parameter.
func (ts Timestamp) String() string {
	return ts.raw
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts.raw == ""
}

// Equal compares timestamps by their exact string form, including any
// sub-second component.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.raw == other.raw
}

// Time converts the integer-seconds prefix to a UTC time.Time. Malformed
// timestamps convert to the zero time.
func (ts Timestamp) Time() time.Time {
	if ts.raw == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(strings.SplitN(ts.raw, ".", 2)[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
