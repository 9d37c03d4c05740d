package record

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire and storage layout for CreatedAt values.
// Millisecond precision in UTC, matching what browsers emit for ISO strings.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the canonical layout for BirthDate.
const DateLayout = "2006-01-02"

// Gender of the animal. The empty value means not recorded.
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// Status of the animal in the herd.
type Status string

const (
	StatusActive Status = "active"
	StatusSold   Status = "sold"
	StatusDead   Status = "dead"
)

// Fields is the full animal field set, shared by pending and cached records.
type Fields struct {
	AnimalNumber   string   `json:"animalNumber"`
	MotherNumber   string   `json:"motherNumber,omitempty"`
	FatherNumber   string   `json:"fatherNumber,omitempty"`
	BirthDate      string   `json:"birthDate,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	WeaningWeight  *float64 `json:"weaningWeight,omitempty"`
	Gender         Gender   `json:"gender,omitempty"`
	Status         Status   `json:"status,omitempty"`
	Color          string   `json:"color,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	InseminationID *int64   `json:"inseminationId,omitempty"`
}

// Pending is a record waiting for backend acknowledgment.
type Pending struct {
	LocalID   int64  `json:"localId"`
	CreatedAt string `json:"createdAt"`
	Fields
}

// Key returns the dedup key of the pending record.
func (p Pending) Key() DedupKey {
	return DedupKey{AnimalNumber: p.AnimalNumber, CreatedAt: p.CreatedAt}
}

// Cached is a record as returned by the last backend snapshot.
type Cached struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"createdAt"`
	Fields
}

// Key returns the dedup key of the cached record.
func (c Cached) Key() DedupKey {
	return DedupKey{AnimalNumber: c.AnimalNumber, CreatedAt: c.CreatedAt}
}

// DedupKey correlates a local record with its backend row before the
// backend ID is known on the device.
type DedupKey struct {
	AnimalNumber string `json:"animalNumber"`
	CreatedAt    string `json:"createdAt"`
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s@%s", k.AnimalNumber, k.CreatedAt)
}

// IsZero reports whether either half of the key is missing.
func (k DedupKey) IsZero() bool {
	return k.AnimalNumber == "" || k.CreatedAt == ""
}

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a CreatedAt value. RFC 3339 without milliseconds is
// accepted too, since older backend rows carry it.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
