package tags

import (
	"sort"
	"strings"

	"github.com/arthur-debert/symfarm/pkg/errors"
)

// Attribute names derived from the file path rather than its tags.
const (
	AttrAbsPath  = "abspath"
	AttrPath     = "path"
	AttrFilename = "filename"
	AttrExt      = "ext"
)

// AttributeSet maps attribute names to values. Canonical metadata tags use
// uppercase names; derived and custom variables use lowercase.
type AttributeSet map[string]Value

// Clone returns a shallow copy of the set.
func (a AttributeSet) Clone() AttributeSet {
	out := make(AttributeSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Names returns the attribute names in sorted order.
func (a AttributeSet) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Tagmap maps a canonical tag name to the ordered candidate tag names tried
// when looking it up. The first candidate with a non-empty value wins.
type Tagmap map[string][]string

// Fallbacks maps a canonical name to a value synthesized when no tag supplies
// one. String fallbacks are templates and may reference other attributes.
type Fallbacks map[string]Value

// numberTags have "x/y" totals stripped to "x" at lookup time.
var numberTags = map[string]bool{
	"DISCNUMBER":  true,
	"TRACKNUMBER": true,
}

// Resolver looks up attribute values applying tagmap aliasing and fallbacks.
// It implements Lookup for template expansion and guards fallback templates
// against self-reference.
type Resolver struct {
	Attrs     AttributeSet
	Tagmap    Tagmap
	Fallbacks Fallbacks

	// Overlay values take precedence over Attrs. The override engine uses
	// this to expose selector matches to operation templates.
	Overlay AttributeSet

	resolving map[string]bool
}

// GetRaw looks the name up with tagmap aliasing but no fallbacks.
func (r *Resolver) GetRaw(name string) Value {
	if r.Overlay != nil {
		if v, ok := r.Overlay[name]; ok && !v.IsEmpty() {
			return v
		}
	}
	keys := r.Tagmap[name]
	if len(keys) == 0 {
		keys = []string{name}
	}
	for _, k := range keys {
		if v, ok := r.Attrs[k]; ok && !v.IsEmpty() {
			return normalizeNumber(name, v)
		}
	}
	return Absent
}

// Get looks the name up, falling back to the configured fallback when no tag
// supplies a value. Fallback templates resolve recursively; a cycle fails
// with a RESOLUTION error instead of recursing forever.
func (r *Resolver) Get(name string) (Value, error) {
	if v := r.GetRaw(name); !v.IsEmpty() {
		return v, nil
	}

	fb, ok := r.Fallbacks[name]
	if !ok {
		return Absent, nil
	}
	if fb.Kind() != KindString {
		return normalizeNumber(name, fb), nil
	}

	if r.resolving[name] {
		return Absent, errors.Newf(errors.ErrResolution,
			"fallback for %q references itself", name)
	}
	if r.resolving == nil {
		r.resolving = make(map[string]bool)
	}
	r.resolving[name] = true
	defer delete(r.resolving, name)

	s, err := Expand(fb.Text(), r)
	if err != nil {
		return Absent, errors.Wrapf(err, errors.ErrResolution,
			"expanding fallback for %q", name)
	}
	return normalizeNumber(name, StringValue(s)), nil
}

func normalizeNumber(name string, v Value) Value {
	if !numberTags[name] || v.Kind() != KindString {
		return v
	}
	if i := strings.IndexByte(v.Text(), '/'); i >= 0 {
		return StringValue(v.Text()[:i])
	}
	return v
}
