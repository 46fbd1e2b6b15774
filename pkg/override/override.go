// Package override implements the rule engine that rewrites a song's
// effective attributes before path planning. Rules form a forest evaluated
// in declared order; a rule matches when every selector entry matches, and
// only then are its operations applied and its children considered.
//
// Selector regexes match code points literally; (?i) performs RE2's simple
// case folding and no Unicode normalization is applied to tag values.
package override

import (
	"regexp"
	"strings"

	"github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/arthur-debert/symfarm/pkg/logging"
	"github.com/arthur-debert/symfarm/pkg/tags"
	"github.com/rs/zerolog"
)

// Operation keys that steer the planner instead of setting attributes.
const (
	KeyIgnore           = "ignore"
	KeyIsCompilation    = "is_compilation"
	KeyPathTemplate     = "path_template"
	KeyFilenameTemplate = "filename_template"
	keyDebug            = "debug"
)

// SelectorKind identifies the variant of a Selector.
type SelectorKind int

const (
	// SelectorNull matches an absent or empty attribute.
	SelectorNull SelectorKind = iota
	// SelectorLiteral matches on exact, case-sensitive string equality.
	SelectorLiteral
	// SelectorRegex matches when the regex matches the entire value.
	SelectorRegex
)

// Selector is a match predicate for one attribute.
type Selector struct {
	kind    SelectorKind
	literal string
	re      *regexp.Regexp
}

// NullSelector matches absent or empty attributes.
func NullSelector() Selector { return Selector{kind: SelectorNull} }

// LiteralSelector matches the exact string.
func LiteralSelector(s string) Selector {
	return Selector{kind: SelectorLiteral, literal: s}
}

// CompileSelector parses a selector from its config form: /pat/ compiles to
// a full-string regex, anything else is a literal. A malformed regex is a
// CONFIG_INVALID error so it fails configuration load, never per-file
// evaluation.
func CompileSelector(s string) (Selector, error) {
	if len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(`\A(?:` + s[1:len(s)-1] + `)\z`)
		if err != nil {
			return Selector{}, errors.Wrapf(err, errors.ErrConfigValid,
				"invalid selector regex %q", s)
		}
		return Selector{kind: SelectorRegex, re: re}, nil
	}
	return LiteralSelector(s), nil
}

// Match evaluates the selector against a value. For regex selectors the
// returned value wraps the match so capture groups are available to the
// rule's operation templates.
func (s Selector) Match(v tags.Value) (tags.Value, bool) {
	switch s.kind {
	case SelectorNull:
		return v, v.IsEmpty()
	case SelectorLiteral:
		if !v.IsEmpty() && v.Text() == s.literal {
			return v, true
		}
		return tags.Absent, false
	default:
		if v.IsEmpty() {
			return tags.Absent, false
		}
		text := v.Text()
		idx := s.re.FindStringSubmatchIndex(text)
		if idx == nil {
			return tags.Absent, false
		}
		return tags.MatchValue(&tags.Match{Re: s.re, Src: text, Idx: idx}), true
	}
}

// Kind returns the selector variant.
func (s Selector) Kind() SelectorKind { return s.kind }

// Operation is one output of a matched rule: set a key to a template or
// literal, or null it out.
type Operation struct {
	Key   string
	Value tags.Value // Absent means null-out
}

// Rule is a selector conjunction plus ordered operations plus nested child
// rules, applied depth-first only when the parent matched.
type Rule struct {
	Match map[string]Selector
	Ops   []Operation
	Debug bool
	Rules []Rule
}

// Directives are the planner-steering outputs of override evaluation. Later
// operations override earlier ones; children override parents.
type Directives struct {
	Ignore           bool
	IsCompilation    *bool // nil when no rule decided
	PathTemplate     string
	FilenameTemplate string
}

// Engine evaluates a rule forest against attribute sets.
type Engine struct {
	rules     []Rule
	tagmap    tags.Tagmap
	fallbacks tags.Fallbacks
	logger    zerolog.Logger
}

// NewEngine creates an engine over compiled rules.
func NewEngine(rules []Rule, tagmap tags.Tagmap, fallbacks tags.Fallbacks) *Engine {
	return &Engine{
		rules:     rules,
		tagmap:    tagmap,
		fallbacks: fallbacks,
		logger:    logging.GetLogger("override.engine"),
	}
}

// Resolve evaluates the rule forest over a copy of attrs and returns the
// rewritten attribute set plus the accumulated directives. The input set is
// never modified.
func (e *Engine) Resolve(attrs tags.AttributeSet) (tags.AttributeSet, Directives) {
	out := attrs.Clone()
	var dir Directives
	e.applyRules(e.rules, out, &dir, false)
	return out, dir
}

func (e *Engine) applyRules(rules []Rule, attrs tags.AttributeSet, dir *Directives, debug bool) {
	for i := range rules {
		rule := &rules[i]
		matched, ok := e.matches(rule, attrs)
		if !ok {
			continue
		}
		e.applyOps(rule, matched, attrs, dir, debug || rule.Debug)
		// Children see the attributes as updated by this rule.
		e.applyRules(rule.Rules, attrs, dir, debug || rule.Debug)
	}
}

// matches checks every selector entry; all must match. The returned set maps
// selector attribute names to their match values (regex matches carry their
// capture groups).
func (e *Engine) matches(rule *Rule, attrs tags.AttributeSet) (tags.AttributeSet, bool) {
	look := &tags.Resolver{Attrs: attrs, Tagmap: e.tagmap}
	matched := make(tags.AttributeSet, len(rule.Match))
	for name, sel := range rule.Match {
		mv, ok := sel.Match(look.GetRaw(name))
		if !ok {
			return nil, false
		}
		matched[name] = mv
	}
	return matched, true
}

func (e *Engine) applyOps(rule *Rule, matched, attrs tags.AttributeSet, dir *Directives, debug bool) {
	abspath := attrs[tags.AttrAbsPath].Text()
	if debug {
		e.logger.Info().
			Str("file", abspath).
			Msg("Song matched override rule")
	}

	for _, op := range rule.Ops {
		v := op.Value

		// Expand string operations as templates with the selector matches
		// overlaid, so capture groups are available. path_template stays a
		// template for the planner and is passed through untouched.
		if v.Kind() == tags.KindString && op.Key != KeyPathTemplate {
			look := &tags.Resolver{
				Attrs:     attrs,
				Tagmap:    e.tagmap,
				Fallbacks: e.fallbacks,
				Overlay:   matched,
			}
			s, err := tags.Expand(v.Text(), look)
			if err != nil {
				e.logger.Warn().
					Err(err).
					Str("key", op.Key).
					Str("file", abspath).
					Str("template", v.Text()).
					Msg("Not setting attribute, template failed to expand")
				continue
			}
			if s == "" {
				v = tags.Absent
			} else {
				v = tags.StringValue(s)
			}
		}

		if e.applyDirective(op.Key, v, dir) {
			continue
		}

		if v.IsAbsent() {
			if debug {
				if _, had := attrs[op.Key]; had {
					e.logger.Info().Str("key", op.Key).Str("file", abspath).
						Msg("Removed attribute")
				}
			}
			delete(attrs, op.Key)
		} else {
			if debug {
				if old, had := attrs[op.Key]; !had || !old.Equal(v) {
					e.logger.Info().Str("key", op.Key).
						Str("value", v.Text()).
						Str("was", old.Text()).
						Str("file", abspath).
						Msg("Set attribute")
				}
			}
			attrs[op.Key] = v
		}
	}
}

// applyDirective routes directive keys into the Directives record. Returns
// false for ordinary attribute operations.
func (e *Engine) applyDirective(key string, v tags.Value, dir *Directives) bool {
	switch key {
	case KeyIgnore:
		dir.Ignore = truthy(v)
	case KeyIsCompilation:
		b := truthy(v)
		dir.IsCompilation = &b
	case KeyPathTemplate:
		dir.PathTemplate = v.Text()
	case KeyFilenameTemplate:
		dir.FilenameTemplate = v.Text()
	default:
		return false
	}
	return true
}

func truthy(v tags.Value) bool {
	if b, ok := v.Bool(); ok {
		return b
	}
	return !v.IsEmpty()
}
