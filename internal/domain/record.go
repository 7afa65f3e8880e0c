package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Record is the joined, hydrated view of one row keyed by field name.
type Record map[string]any

// FieldUpdateSpec maps field names to raw JSON values. A missing key leaves the
// column untouched; a JSON null sets it to NULL.
type FieldUpdateSpec map[string]json.RawMessage

type Assignment struct {
	Field *Field
	Value any // nil writes NULL
}

type Changes struct {
	Primary []Assignment
	Core    []Assignment
}

func (c Changes) Empty() bool { return len(c.Primary) == 0 && len(c.Core) == 0 }

func (c Changes) Lookup(name string) (Assignment, bool) {
	for _, set := range [][]Assignment{c.Primary, c.Core} {
		for _, a := range set {
			if a.Field.Name == name {
				return a, true
			}
		}
	}
	return Assignment{}, false
}

type ListQuery struct {
	Limit   int
	Offset  int
	Filters []Assignment
}

const SqFtPerAcre = 43560

type deriver struct {
	arity int
	fn    func(in []*float64) *float64
}

var derivers = map[string]deriver{
	// price / (acres * 43560)
	"pricePerSqFt": {arity: 2, fn: func(in []*float64) *float64 {
		price, acres := in[0], in[1]
		if price == nil || acres == nil || *acres == 0 {
			return nil
		}
		v := *price / (*acres * SqFtPerAcre)
		return &v
	}},
}

// Touches reports whether any input of d is present in the change set.
func (d Derivation) Touches(ch Changes) bool {
	for _, in := range d.Inputs {
		if _, ok := ch.Lookup(in); ok {
			return true
		}
	}
	return false
}

// ApplyDerivations appends recomputed derived fields to ch.Primary. Inputs use the
// value being written when present and the stored value from current otherwise.
// Derivations whose inputs are untouched are skipped.
func ApplyDerivations(e *Entity, ch Changes, current map[string]*float64) Changes {
	for _, d := range e.Derived {
		if !d.Touches(ch) {
			continue
		}
		in := make([]*float64, len(d.Inputs))
		for i, name := range d.Inputs {
			if a, ok := ch.Lookup(name); ok {
				in[i] = AsFloat(a.Value)
			} else {
				in[i] = current[name]
			}
		}
		out, _ := e.Field(d.Field)
		var v any
		if r := derivers[d.Kind].fn(in); r != nil {
			v = *r
		}
		ch.Primary = append(ch.Primary, Assignment{Field: out, Value: v})
	}
	return ch
}

func AsFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	default:
		return nil
	}
	return &f
}

var dateLayouts = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// Coerce converts a raw JSON value into the Go value stored for f.
// Empty strings on non-text fields are read as null.
func (f *Field) Coerce(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, Invalid("%s: malformed value", f.Name)
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && f.Type != TypeText && f.Type != TypeBounded {
		v = nil
	}
	if v == nil {
		if f.NotNull {
			return nil, Invalid("%s cannot be null", f.Name)
		}
		return nil, nil
	}

	switch f.Type {
	case TypeInt:
		var s string
		switch x := v.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.TrimSpace(x)
		default:
			return nil, Invalid("%s must be an integer", f.Name)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, Invalid("%s must be an integer", f.Name)
		}
		return n, nil

	case TypeDecimal:
		var s string
		switch x := v.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		default:
			return nil, Invalid("%s must be a number", f.Name)
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, Invalid("%s must be a number", f.Name)
		}
		return n, nil

	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case json.Number:
			return parseBool(f, x.String())
		case string:
			return parseBool(f, strings.TrimSpace(x))
		}
		return nil, Invalid("%s must be a boolean", f.Name)

	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, Invalid("%s must be a date (YYYY-MM-DD)", f.Name)
		}
		t, ok := ParseDate(s)
		if !ok {
			return nil, Invalid("%s must be a date (YYYY-MM-DD)", f.Name)
		}
		return t, nil

	default:
		s, ok := v.(string)
		if !ok {
			return nil, Invalid("%s must be a string", f.Name)
		}
		if f.Type == TypeBounded && utf8.RuneCountInString(s) > f.MaxLen {
			return nil, Invalid("%s exceeds %d characters", f.Name, f.MaxLen)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return nil, Invalid("%s must be one of: %s", f.Name, strings.Join(f.Enum, ", "))
		}
		return s, nil
	}
}

func parseBool(f *Field, s string) (any, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, Invalid("%s must be a boolean", f.Name)
	}
	return b, nil
}

// ParseDate accepts a calendar date or timestamp and truncates it to a UTC day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
