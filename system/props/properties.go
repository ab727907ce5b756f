// Package props implements an insertion-ordered, typed attribute map used
// for manifest attributes, service properties and archive state files.
//
// The typed-conversion contracts mirror the attribute-pair parsing the
// teacher stack uses for its tracing attribute env var (comma-separated
// key=value pairs, §4.2 of the expanded spec): a conversion either yields a
// value or falls back to a caller-supplied default. String-to-long reads the
// leading digits and ignores what follows them ("42abc" reads as 42); the
// default is returned only when no digit can be read.
package props

import (
	"sort"
	"strconv"
	"strings"

	"github.com/arcforge/bundlehost/system/version"
)

// Value is one of string, int64, float64, bool or version.Version.
type Value struct {
	kind Kind
	str  string
	i64  int64
	f64  float64
	b    bool
	ver  version.Version
}

// Kind identifies a Value's stored type. Filters and other consumers that
// need to know whether an attribute is "really" numeric/version-typed, as
// opposed to a string that merely looks numeric, compare against this
// rather than trying to re-parse String().
type Kind int

const (
	KindString Kind = iota
	KindLong
	KindDouble
	KindBool
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindVersion:
		return "version"
	}
	return "unknown"
}

func String(s string) Value                { return Value{kind: KindString, str: s} }
func Long(i int64) Value                   { return Value{kind: KindLong, i64: i} }
func Double(f float64) Value               { return Value{kind: KindDouble, f64: f} }
func Bool(b bool) Value                    { return Value{kind: KindBool, b: b} }
func VersionValue(v version.Version) Value { return Value{kind: KindVersion, ver: v} }

// Kind reports the value's stored type.
func (v Value) Kind() Kind { return v.kind }

// IsString reports whether the value was stored via String.
func (v Value) IsString() bool { return v.kind == KindString }

// IsLong reports whether the value was stored via Long.
func (v Value) IsLong() bool { return v.kind == KindLong }

// IsDouble reports whether the value was stored via Double.
func (v Value) IsDouble() bool { return v.kind == KindDouble }

// IsBool reports whether the value was stored via Bool.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsVersion reports whether the value was stored via VersionValue.
func (v Value) IsVersion() bool { return v.kind == KindVersion }

// Long returns the raw int64 and true if the value is long-typed; zero and
// false otherwise. Unlike GetLong on Properties, this never reparses a
// string form.
func (v Value) Long() (int64, bool) {
	if v.kind != KindLong {
		return 0, false
	}
	return v.i64, true
}

// Double returns the raw float64 and true if the value is double-typed.
func (v Value) Double() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.f64, true
}

// Version returns the raw version.Version and true if the value is
// version-typed.
func (v Value) Version() (version.Version, bool) {
	if v.kind != KindVersion {
		return version.Version{}, false
	}
	return v.ver, true
}

// String returns a display form of the stored value, independent of type.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindLong:
		return strconv.FormatInt(v.i64, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindVersion:
		return v.ver.String()
	}
	return ""
}

// Equal compares two typed values; values of different kinds are never
// equal even if their string forms coincide.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindLong:
		return v.i64 == o.i64
	case KindDouble:
		return v.f64 == o.f64
	case KindBool:
		return v.b == o.b
	case KindVersion:
		return v.ver.Equal(o.ver)
	}
	return false
}

// Properties is an insertion-ordered map from string keys to typed Values.
type Properties struct {
	order  []string
	values map[string]Value
}

// New returns an empty Properties map.
func New() *Properties {
	return &Properties{values: make(map[string]Value)}
}

// Set stores or overwrites a key's value, preserving original insertion
// position on overwrite.
func (p *Properties) Set(key string, v Value) {
	if _, exists := p.values[key]; !exists {
		p.order = append(p.order, key)
	}
	p.values[key] = v
}

// SetString is a convenience wrapper for the common case of string-typed
// properties (manifest attributes, most service properties).
func (p *Properties) SetString(key, value string) { p.Set(key, String(value)) }

// Get returns the raw stored value and whether the key is present.
func (p *Properties) Get(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Remove deletes key, if present.
func (p *Properties) Remove(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (p *Properties) Keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len reports the number of keys.
func (p *Properties) Len() int { return len(p.order) }

// GetString returns the value as a string if present, else def. Every typed
// value has a display string form, so this never falls through to def when
// the key is present.
func (p *Properties) GetString(key, def string) string {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	return v.String()
}

// GetLong returns the value as int64, converting from string per the
// leading-sign/decimal-digits/trailing-ignored contract.
func (p *Properties) GetLong(key string, def int64) int64 {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	if v.kind == KindLong {
		return v.i64
	}
	if n, ok := parseLongPrefix(v.String()); ok {
		return n
	}
	return def
}

// GetDouble returns the value as float64, converting from string per the
// same trailing-ignored contract as GetLong, extended with '.' and exponent.
func (p *Properties) GetDouble(key string, def float64) float64 {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	if v.kind == KindDouble {
		return v.f64
	}
	if f, ok := parseDoublePrefix(v.String()); ok {
		return f
	}
	return def
}

// GetBool returns the value as bool; strings must be an exact (whitespace
// trimmed) case-insensitive "true" or "false".
func (p *Properties) GetBool(key string, def bool) bool {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	if v.kind == KindBool {
		return v.b
	}
	s := strings.TrimSpace(v.String())
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	default:
		return def
	}
}

// GetVersion returns the value as a version.Version; strings must fully
// parse as MAJOR.MINOR.MICRO[.QUALIFIER].
func (p *Properties) GetVersion(key string, def version.Version) version.Version {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	if v.kind == KindVersion {
		return v.ver
	}
	if parsed, err := version.Parse(v.String()); err == nil {
		return parsed
	}
	return def
}

// Equal reports key-set equality with per-key typed-value equality.
func (p *Properties) Equal(o *Properties) bool {
	if p.Len() != o.Len() {
		return false
	}
	for k, v := range p.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (p *Properties) Clone() *Properties {
	c := New()
	for _, k := range p.order {
		c.Set(k, p.values[k])
	}
	return c
}

// SortedKeys returns keys in lexical order, for deterministic diagnostics
// independent of insertion order.
func (p *Properties) SortedKeys() []string {
	out := p.Keys()
	sort.Strings(out)
	return out
}

func parseLongPrefix(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseDoublePrefix(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digitsStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	if i == digitsStart || (i == digitsStart+1 && s[digitsStart] == '.') {
		return 0, false
	}
	// optional exponent
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > expStart {
			i = j
		}
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
