package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCodec() *Codec {
	today := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return NewCodecAt(func() time.Time { return today })
}

func TestCodec_Normalize_FullDraft(t *testing.T) {
	f, err := fixedCodec().Normalize(Draft{
		AnimalNumber:   "  a-12 ",
		MotherNumber:   "m 7",
		FatherNumber:   " t\t99 ",
		BirthDate:      "05/02/2025",
		Weight:         "32,5",
		WeaningWeight:  "180.25",
		Gender:         "Hembra",
		Status:         "VIVO",
		Color:          "  black   and white ",
		Notes:          "  born at night\nhealthy  ",
		InseminationID: "14",
	})
	require.NoError(t, err)

	assert.Equal(t, "A-12", f.AnimalNumber)
	assert.Equal(t, "M 7", f.MotherNumber)
	assert.Equal(t, "T 99", f.FatherNumber)
	assert.Equal(t, "2025-02-05", f.BirthDate)
	require.NotNil(t, f.Weight)
	assert.InDelta(t, 32.5, *f.Weight, 1e-9)
	require.NotNil(t, f.WeaningWeight)
	assert.InDelta(t, 180.25, *f.WeaningWeight, 1e-9)
	assert.Equal(t, GenderFemale, f.Gender)
	assert.Equal(t, StatusActive, f.Status)
	assert.Equal(t, "Black And White", f.Color)
	assert.Equal(t, "born at night\nhealthy", f.Notes)
	require.NotNil(t, f.InseminationID)
	assert.Equal(t, int64(14), *f.InseminationID)
}

func TestCodec_Normalize_Defaults(t *testing.T) {
	f, err := fixedCodec().Normalize(Draft{AnimalNumber: "x1"})
	require.NoError(t, err)

	assert.Equal(t, "X1", f.AnimalNumber)
	assert.Equal(t, StatusActive, f.Status)
	assert.Equal(t, GenderUnknown, f.Gender)
	assert.Nil(t, f.Weight)
	assert.Nil(t, f.InseminationID)
	assert.Empty(t, f.BirthDate)
}

func TestCodec_Normalize_CollectsAllErrors(t *testing.T) {
	_, err := fixedCodec().Normalize(Draft{
		AnimalNumber:   "   ",
		BirthDate:      "2030-01-01",
		Weight:         "heavy",
		WeaningWeight:  "-3",
		Gender:         "robot",
		Status:         "lost",
		InseminationID: "0",
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	ve := err.(*ValidationError)
	assert.Equal(t, map[string]string{
		"animalNumber":   "required",
		"birthDate":      "in the future",
		"weight":         "not a number",
		"weaningWeight":  "must not be negative",
		"gender":         "unknown gender",
		"status":         "unknown status",
		"inseminationId": "must be a positive integer",
	}, ve.Fields)
	assert.Contains(t, err.Error(), "animalNumber: required")
}

func TestCodec_Normalize_RejectsSelfParent(t *testing.T) {
	_, err := fixedCodec().Normalize(Draft{AnimalNumber: "a1", MotherNumber: "A1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "motherNumber")
}

func TestCodec_Normalize_AnimalNumberTooLong(t *testing.T) {
	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	_, err := fixedCodec().Normalize(Draft{AnimalNumber: long})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")
}

func TestCodec_Normalize_NFC(t *testing.T) {
	// "n" + combining tilde must compare equal to the precomposed form.
	f, err := fixedCodec().Normalize(Draft{AnimalNumber: "pin\u0303a"})
	require.NoError(t, err)
	assert.Equal(t, "PIÑA", f.AnimalNumber)
}

func TestCodec_Normalize_BirthDateToday(t *testing.T) {
	f, err := fixedCodec().Normalize(Draft{AnimalNumber: "a1", BirthDate: "2025-03-10"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", f.BirthDate)
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"12,5", 12.5, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"1.234.567,25", 1234567.25, true},
		{"1,234,567.25", 1234567.25, true},
		{"12,5,0", 0, false},
		{"1.234,5,6", 0, false},
		{"1,23.4.5", 0, false},
		{"1 200", 1200, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDecimal(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCodec_NormalizeFields_RoundTrips(t *testing.T) {
	c := fixedCodec()
	first, err := c.Normalize(Draft{AnimalNumber: "b2", Weight: "40,75", Gender: "m", Color: "red"})
	require.NoError(t, err)

	again, err := c.NormalizeFields(first)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestTimestamp_FormatAndParse(t *testing.T) {
	ts := time.Date(2025, 3, 10, 8, 30, 0, 123_000_000, time.FixedZone("ART", -3*3600))
	s := FormatTimestamp(ts)
	assert.Equal(t, "2025-03-10T11:30:00.123Z", s)

	back, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))

	_, err = ParseTimestamp("2025-03-10T11:30:00Z")
	assert.NoError(t, err)
}

func TestDedupKey(t *testing.T) {
	p := Pending{LocalID: 3, CreatedAt: "2025-03-10T11:30:00.000Z", Fields: Fields{AnimalNumber: "A1"}}
	c := Cached{ID: 9, CreatedAt: "2025-03-10T11:30:00.000Z", Fields: Fields{AnimalNumber: "A1"}}

	assert.Equal(t, p.Key(), c.Key())
	assert.Equal(t, "A1@2025-03-10T11:30:00.000Z", p.Key().String())
	assert.False(t, p.Key().IsZero())
	assert.True(t, DedupKey{AnimalNumber: "A1"}.IsZero())
}
