package tags

import (
	"regexp"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindInt
	KindBool
	KindMatch
)

// Match is a full-string regex match produced by a regex selector. It keeps
// the submatch indices so capture groups can be expanded by templates.
type Match struct {
	Re  *regexp.Regexp
	Src string
	Idx []int // from FindStringSubmatchIndex
}

// Text returns the full matched text.
func (m *Match) Text() string {
	return m.Src[m.Idx[0]:m.Idx[1]]
}

// Expand applies a $1-style expansion template to the match.
func (m *Match) Expand(template string) string {
	return string(m.Re.ExpandString(nil, template, m.Src, m.Idx))
}

// Value is a tagged variant for attribute values: a string, an integer, a
// boolean, a regex match, or absent.
type Value struct {
	kind Kind
	str  string
	num  int64
	b    bool
	m    *Match
}

// Absent is the zero Value.
var Absent = Value{}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue returns an integer Value.
func IntValue(n int64) Value { return Value{kind: KindInt, num: n} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// MatchValue returns a Value wrapping a regex match.
func MatchValue(m *Match) Value { return Value{kind: KindMatch, m: m} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value is absent.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsEmpty reports whether the value is absent or an empty string. This is
// what a null selector matches.
func (v Value) IsEmpty() bool {
	return v.kind == KindAbsent || (v.kind == KindString && v.str == "")
}

// Match returns the wrapped regex match, or nil.
func (v Value) Match() *Match {
	if v.kind == KindMatch {
		return v.m
	}
	return nil
}

// Text returns the string form of the value. A match formats as its matched
// text; absent formats as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindMatch:
		return v.m.Text()
	default:
		return ""
	}
}

// Int returns the value as an integer. The second return is false when the
// value has no integer interpretation.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindString:
		n, err := strconv.ParseInt(v.str, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindMatch:
		n, err := strconv.ParseInt(v.m.Text(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Bool returns the value as a boolean. The second return is false when the
// value is not a boolean.
func (v Value) Bool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

// Equal reports whether two values hold the same content. Matches compare by
// their matched text.
func (v Value) Equal(o Value) bool {
	if v.IsAbsent() != o.IsAbsent() {
		return false
	}
	if v.IsAbsent() {
		return true
	}
	if v.kind == KindBool || o.kind == KindBool {
		return v.kind == o.kind && v.b == o.b
	}
	return v.Text() == o.Text()
}
