package labs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// labField binds a canonical lab value to its accepted spellings, in
// priority order, and to the Profile slot it fills.
type labField struct {
	name    string
	aliases []string
	slot    func(*Profile) *float64
}

var (
	sexAliases = []string{"sex", "cinsiyet"}
	ageAliases = []string{"age", "yas"}

	labFields = []labField{
		{"glucose", []string{"glucose", "glukoz", "fasting_glucose", "aclik_glukozu"}, func(p *Profile) *float64 { return &p.Glucose }},
		{"hba1c", []string{"hba1c", "hbA1c", "hba1c_%"}, func(p *Profile) *float64 { return &p.HbA1c }},
		{"ldl", []string{"ldl", "ldl_cholesterol"}, func(p *Profile) *float64 { return &p.LDL }},
		{"hdl", []string{"hdl", "hdl_cholesterol"}, func(p *Profile) *float64 { return &p.HDL }},
		{"triglycerides", []string{"triglycerides", "trigliserid", "tg"}, func(p *Profile) *float64 { return &p.Triglycerides }},
		{"total_cholesterol", []string{"total_cholesterol", "cholesterol_total"}, func(p *Profile) *float64 { return &p.TotalCholesterol }},
		{"hemoglobin", []string{"hemoglobin", "hgb"}, func(p *Profile) *float64 { return &p.Hemoglobin }},
		{"hematocrit", []string{"hematocrit", "hct"}, func(p *Profile) *float64 { return &p.Hematocrit }},
		{"wbc", []string{"wbc", "lökosit", "lokosit"}, func(p *Profile) *float64 { return &p.WBC }},
		{"platelets", []string{"platelets", "plt", "trombosit"}, func(p *Profile) *float64 { return &p.Platelets }},
		{"alt", []string{"alt"}, func(p *Profile) *float64 { return &p.ALT }},
		{"ast", []string{"ast"}, func(p *Profile) *float64 { return &p.AST }},
		{"creatinine", []string{"creatinine", "kreatinin"}, func(p *Profile) *float64 { return &p.Creatinine }},
		{"egfr", []string{"egfr", "glomeruler_filtrasyon_hizi"}, func(p *Profile) *float64 { return &p.EGFR }},
		{"crp", []string{"crp"}, func(p *Profile) *float64 { return &p.CRP }},
	}
)

// Kinds of value a field is coerced to.
const (
	KindString  = "string"
	KindInteger = "integer"
	KindNumber  = "number"
)

// FieldInfo describes one canonical field and the input keys it is read from.
type FieldInfo struct {
	Name    string
	Kind    string
	Aliases []string
}

// Fields lists every field ResolveProfile reads, in summary order.
func Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(labFields)+2)
	out = append(out,
		FieldInfo{Name: "sex", Kind: KindString, Aliases: append([]string(nil), sexAliases...)},
		FieldInfo{Name: "age", Kind: KindInteger, Aliases: append([]string(nil), ageAliases...)},
	)
	for _, f := range labFields {
		out = append(out, FieldInfo{Name: f.name, Kind: KindNumber, Aliases: append([]string(nil), f.aliases...)})
	}
	return out
}

var (
	errNotFinite   = errors.New("value must be a finite number")
	errNegativeAge = errors.New("age must not be negative")
	errAgeRange    = errors.New("age is out of range")
)

// ValidationError reports a field whose value could not be coerced to the
// type its rule needs.
type ValidationError struct {
	Field string // canonical field name
	Key   string // input key the value was read from
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Key != "" && e.Key != e.Field {
		return fmt.Sprintf("invalid value for %s (key %q): %v", e.Field, e.Key, e.Err)
	}
	return fmt.Sprintf("invalid value for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Resolve returns the value of the first key present in rec whose value is
// neither nil nor the empty string, or def when no key qualifies.
func Resolve(rec Record, def any, keys ...string) any {
	if _, v, ok := lookup(rec, keys); ok {
		return v
	}
	return def
}

func lookup(rec Record, keys []string) (string, any, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return k, v, true
	}
	return "", nil, false
}

// ResolveProfile resolves every canonical field of rec. Absent fields take
// their zero value; present values that cannot be coerced produce a
// *ValidationError naming the field.
func ResolveProfile(rec Record) (Profile, error) {
	var p Profile

	if key, v, ok := lookup(rec, sexAliases); ok {
		sex, err := toSex(v)
		if err != nil {
			return Profile{}, &ValidationError{Field: "sex", Key: key, Value: v, Err: err}
		}
		p.Sex = sex
	}

	if key, v, ok := lookup(rec, ageAliases); ok {
		age, err := toAge(v)
		if err != nil {
			return Profile{}, &ValidationError{Field: "age", Key: key, Value: v, Err: err}
		}
		p.Age = age
	}

	for _, f := range labFields {
		key, v, ok := lookup(rec, f.aliases)
		if !ok {
			continue
		}
		n, err := toFloat(v)
		if err != nil {
			return Profile{}, &ValidationError{Field: f.name, Key: key, Value: v, Err: err}
		}
		*f.slot(&p) = n
	}

	return p, nil
}

func toFloat(v any) (float64, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func toAge(v any) (int, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		sign := ""
		if s != "" && (s[0] == '+' || s[0] == '-') {
			if s[0] == '-' {
				sign = "-"
			}
			s = s[1:]
		}
		// cast parses with base prefixes, so "018" would be read as octal.
		if t := strings.TrimLeft(s, "0"); t != s {
			if t == "" || t[0] == '.' {
				t = "0" + t
			}
			s = t
		}
		v = sign + s
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, errNotFinite
		}
		if x >= math.MaxInt {
			return 0, errAgeRange
		}
		if x <= math.MinInt {
			return 0, errNegativeAge
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegativeAge
	}
	return n, nil
}

func toSex(v any) (*string, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	return &s, nil
}
