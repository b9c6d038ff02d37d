package lexicon

import (
	"encoding/json"
	"fmt"
	"time"
)

// DatetimeFormat is the canonical wire layout for lexicon datetime strings:
// RFC 3339 in UTC with millisecond precision. The fractional digits and the
// "Z" designator are always emitted, even for whole seconds.
const DatetimeFormat = "2006-01-02T15:04:05.000Z"

// Datetime is a timestamp field in a lexicon record. The zero value encodes
// as year 1; use NewDatetime or Now to construct real values.
type Datetime struct {
	time.Time
}

// NewDatetime returns t as a Datetime normalized to UTC.
func NewDatetime(t time.Time) Datetime {
	return Datetime{t.UTC()}
}

// Now returns the current instant at wire precision.
func Now() Datetime {
	return Datetime{time.Now().UTC().Truncate(time.Millisecond)}
}

func (d Datetime) String() string {
	return d.UTC().Format(DatetimeFormat)
}

func (d Datetime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts any RFC 3339 timestamp, not just the canonical
// layout, since records in the wild carry varying precision and offsets.
// The parsed value is normalized to UTC.
func (d *Datetime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("datetime must be a JSON string: %w", err)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse datetime %q: %w", s, err)
	}
	d.Time = t.UTC()
	return nil
}
