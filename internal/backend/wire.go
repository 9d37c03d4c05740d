package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/herdsync/internal/record"
)

// Paths of the consumed REST surface.
const (
	PathRegister       = "/register"
	PathRegisterUpdate = "/register/update"
	PathSnapshot       = "/export-multi-tenant"
)

// RecordBody is the request body for create and update: the full field set
// plus the client-assigned creation timestamp.
type RecordBody struct {
	record.Fields
	CreatedAt string `json:"createdAt"`
}

// KeyBody is the request body for delete.
type KeyBody struct {
	AnimalNumber string `json:"animalNumber"`
	CreatedAt    string `json:"createdAt"`
}

// CreateResponse is what POST /register answers with.
type CreateResponse struct {
	ID FlexInt `json:"id"`
}

// Row is one snapshot item as the service serializes it.
type Row struct {
	ID             FlexInt    `json:"id"`
	AnimalNumber   string     `json:"animal_number"`
	MotherNumber   string     `json:"mother_number,omitempty"`
	FatherNumber   string     `json:"father_number,omitempty"`
	BirthDate      string     `json:"birth_date,omitempty"`
	Weight         *FlexFloat `json:"weight,omitempty"`
	WeaningWeight  *FlexFloat `json:"weaning_weight,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	Status         string     `json:"status,omitempty"`
	Color          string     `json:"color,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	InseminationID *FlexInt   `json:"insemination_id,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

// Snapshot is the enveloped form of GET /export-multi-tenant.
type Snapshot struct {
	Count int   `json:"count"`
	Items []Row `json:"items"`
}

// ToCached converts a service row into the cache shape.
func (r Row) ToCached() record.Cached {
	c := record.Cached{
		ID:        int64(r.ID),
		CreatedAt: r.CreatedAt,
		Fields: record.Fields{
			AnimalNumber: r.AnimalNumber,
			MotherNumber: r.MotherNumber,
			FatherNumber: r.FatherNumber,
			BirthDate:    dateOnly(r.BirthDate),
			Gender:       record.Gender(r.Gender),
			Status:       record.Status(r.Status),
			Color:        r.Color,
			Notes:        r.Notes,
		},
	}
	if r.Weight != nil {
		v := float64(*r.Weight)
		c.Weight = &v
	}
	if r.WeaningWeight != nil {
		v := float64(*r.WeaningWeight)
		c.WeaningWeight = &v
	}
	if r.InseminationID != nil {
		v := int64(*r.InseminationID)
		c.InseminationID = &v
	}
	return c
}

// RowFromCached is the inverse of ToCached, used by the reference server.
func RowFromCached(c record.Cached) Row {
	r := Row{
		ID:           FlexInt(c.ID),
		AnimalNumber: c.AnimalNumber,
		MotherNumber: c.MotherNumber,
		FatherNumber: c.FatherNumber,
		BirthDate:    c.BirthDate,
		Gender:       string(c.Gender),
		Status:       string(c.Status),
		Color:        c.Color,
		Notes:        c.Notes,
		CreatedAt:    c.CreatedAt,
	}
	if c.Weight != nil {
		v := FlexFloat(*c.Weight)
		r.Weight = &v
	}
	if c.WeaningWeight != nil {
		v := FlexFloat(*c.WeaningWeight)
		r.WeaningWeight = &v
	}
	if c.InseminationID != nil {
		v := FlexInt(*c.InseminationID)
		r.InseminationID = &v
	}
	return r
}

// DecodeSnapshot accepts either {count, items[]} or a bare array. An object
// must carry items; {"items": null} is an empty snapshot.
func DecodeSnapshot(raw []byte) ([]record.Cached, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode snapshot: empty body")
	}

	var rows []Row
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	case '{':
		// An object without items is an error body or a broken proxy, not
		// an empty herd.
		var env map[string]json.RawMessage
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		items, ok := env["items"]
		if !ok {
			return nil, fmt.Errorf("decode snapshot: %w: %s", ErrMalformedSnapshot, truncate(string(raw), 64))
		}
		if err := json.Unmarshal(items, &rows); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode snapshot: unexpected body %q", truncate(string(raw), 32))
	}

	out := make([]record.Cached, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToCached())
	}
	return out, nil
}

// FlexInt decodes a JSON number or numeric string.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		v = int64(f)
	}
	*n = FlexInt(v)
	return nil
}

// FlexFloat decodes a JSON number or numeric string. Decimal columns are
// commonly serialized as strings by the service's database driver.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = FlexFloat(v)
	return nil
}

// dateOnly trims a timestamp rendering of a DATE column to YYYY-MM-DD.
func dateOnly(s string) string {
	if len(s) > len(record.DateLayout) && s[len(record.DateLayout)] == 'T' {
		return s[:len(record.DateLayout)]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
