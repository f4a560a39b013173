package todos

import (
	"encoding/json"
	"fmt"
	"time"
)

type Todo struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt Timestamp `json:"created_at"`
}

// Patch carries the fields of a partial update. Nil fields are left untouched.
type Patch struct {
	Title *string
	Done  *bool
}

func (p Patch) empty() bool { return p.Title == nil && p.Done == nil }

const (
	isoLayout      = "2006-01-02T15:04:05"
	isoMicroLayout = "2006-01-02T15:04:05.000000"
)

// Timestamp is a UTC instant serialized as ISO-8601 without a zone suffix.
// Microseconds are printed only when non-zero.
type Timestamp struct {
	time.Time
}

// now is the creation clock; precision matches what every store keeps.
func now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Microsecond)}
}

func (t Timestamp) String() string {
	u := t.Time.UTC()
	if u.Nanosecond()/int(time.Microsecond) == 0 {
		return u.Format(isoLayout)
	}
	return u.Format(isoMicroLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return fmt.Errorf("parse created_at %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}
