package record

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxAnimalNumberLen bounds the identifier length, in runes.
const MaxAnimalNumberLen = 32

// Draft is raw form input, one string per field, exactly as typed.
type Draft struct {
	AnimalNumber   string
	MotherNumber   string
	FatherNumber   string
	BirthDate      string
	Weight         string
	WeaningWeight  string
	Gender         string
	Status         string
	Color          string
	Notes          string
	InseminationID string
}

var genderAliases = map[string]Gender{
	"":       GenderUnknown,
	"male":   GenderMale,
	"m":      GenderMale,
	"macho":  GenderMale,
	"female": GenderFemale,
	"f":      GenderFemale,
	"h":      GenderFemale,
	"hembra": GenderFemale,
}

var statusAliases = map[string]Status{
	"":        StatusActive,
	"active":  StatusActive,
	"activo":  StatusActive,
	"vivo":    StatusActive,
	"sold":    StatusSold,
	"vendido": StatusSold,
	"dead":    StatusDead,
	"muerto":  StatusDead,
}

// inputDateLayouts are tried in order when parsing BirthDate.
var inputDateLayouts = []string{DateLayout, "02/01/2006"}

// Codec normalizes and validates record input. It holds no state besides the
// clock used to reject birth dates in the future.
type Codec struct {
	now func() time.Time
}

// NewCodec creates a codec on the wall clock.
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// NewCodecAt creates a codec whose notion of "today" comes from now.
func NewCodecAt(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

// Normalize turns a Draft into Fields. All field problems are reported
// together in a *ValidationError.
func (c *Codec) Normalize(d Draft) (Fields, error) {
	verr := &ValidationError{}
	upper := cases.Upper(language.Und)
	title := cases.Title(language.Und)

	var f Fields

	f.AnimalNumber = upper.String(cleanLine(d.AnimalNumber))
	switch {
	case f.AnimalNumber == "":
		verr.add("animalNumber", "required")
	case utf8.RuneCountInString(f.AnimalNumber) > MaxAnimalNumberLen:
		verr.add("animalNumber", "too long")
	}

	f.MotherNumber = upper.String(cleanLine(d.MotherNumber))
	f.FatherNumber = upper.String(cleanLine(d.FatherNumber))
	if f.MotherNumber != "" && f.MotherNumber == f.AnimalNumber {
		verr.add("motherNumber", "animal cannot be its own mother")
	}
	if f.FatherNumber != "" && f.FatherNumber == f.AnimalNumber {
		verr.add("fatherNumber", "animal cannot be its own father")
	}

	if raw := cleanLine(d.BirthDate); raw != "" {
		bd, ok := parseDate(raw)
		if !ok {
			verr.add("birthDate", "expected YYYY-MM-DD or DD/MM/YYYY")
		} else if bd > c.now().Format(DateLayout) {
			verr.add("birthDate", "in the future")
		} else {
			f.BirthDate = bd
		}
	}

	f.Weight = c.weight(verr, "weight", d.Weight)
	f.WeaningWeight = c.weight(verr, "weaningWeight", d.WeaningWeight)

	if g, ok := genderAliases[strings.ToLower(cleanLine(d.Gender))]; ok {
		f.Gender = g
	} else {
		verr.add("gender", "unknown gender")
	}
	if s, ok := statusAliases[strings.ToLower(cleanLine(d.Status))]; ok {
		f.Status = s
	} else {
		verr.add("status", "unknown status")
	}

	f.Color = title.String(cleanLine(d.Color))
	f.Notes = strings.TrimSpace(norm.NFC.String(d.Notes))

	if raw := cleanLine(d.InseminationID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			verr.add("inseminationId", "must be a positive integer")
		} else {
			f.InseminationID = &id
		}
	}

	if len(verr.Fields) > 0 {
		return Fields{}, verr
	}
	return f, nil
}

// NormalizeFields runs already typed fields through the same rules as
// Normalize. Edits go through here so a stored record never skips the codec.
func (c *Codec) NormalizeFields(f Fields) (Fields, error) {
	return c.Normalize(DraftFromFields(f))
}

// DraftFromFields renders typed fields back into form strings.
func DraftFromFields(f Fields) Draft {
	d := Draft{
		AnimalNumber: f.AnimalNumber,
		MotherNumber: f.MotherNumber,
		FatherNumber: f.FatherNumber,
		BirthDate:    f.BirthDate,
		Gender:       string(f.Gender),
		Status:       string(f.Status),
		Color:        f.Color,
		Notes:        f.Notes,
	}
	if f.Weight != nil {
		d.Weight = strconv.FormatFloat(*f.Weight, 'f', -1, 64)
	}
	if f.WeaningWeight != nil {
		d.WeaningWeight = strconv.FormatFloat(*f.WeaningWeight, 'f', -1, 64)
	}
	if f.InseminationID != nil {
		d.InseminationID = strconv.FormatInt(*f.InseminationID, 10)
	}
	return d
}

func (c *Codec) weight(verr *ValidationError, field, raw string) *float64 {
	raw = cleanLine(raw)
	if raw == "" {
		return nil
	}
	v, err := parseDecimal(raw)
	if err != nil {
		verr.add(field, "not a number")
		return nil
	}
	if v < 0 {
		verr.add(field, "must not be negative")
		return nil
	}
	return &v
}

// cleanLine NFC-normalizes s, trims it, and collapses inner whitespace runs.
func cleanLine(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// parseDecimal accepts "12.5", "12,5", "1.234,5" and "1,234.5". When both
// separators appear the last one is the decimal mark and the other groups
// thousands.
func parseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot > comma:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func parseDate(s string) (string, bool) {
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}
