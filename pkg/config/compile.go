package config

import (
	"fmt"
	"regexp"
	"sort"

	symerr "github.com/arthur-debert/symfarm/pkg/errors"
	"github.com/arthur-debert/symfarm/pkg/override"
	"github.com/arthur-debert/symfarm/pkg/tags"
)

// Compiled is the validated, ready-to-run form of a Config. Every regex and
// template in the document is compiled here, so a malformed pattern aborts
// the run before any file is processed.
type Compiled struct {
	Config

	ValidFiles []*regexp.Regexp
	Tagmap     tags.Tagmap
	Fallbacks  tags.Fallbacks
	Rules      []override.Rule
}

// Compile validates the configuration and compiles its regexes, templates
// and override rules.
func (c *Config) Compile() (*Compiled, error) {
	out := &Compiled{
		Config: *c,
		Tagmap: tags.Tagmap(c.Tagmap),
	}

	for _, pattern := range c.ValidFiles {
		re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
		if err != nil {
			return nil, symerr.Wrapf(err, symerr.ErrConfigValid,
				"invalid valid_files pattern %q", pattern)
		}
		out.ValidFiles = append(out.ValidFiles, re)
	}

	for _, field := range []struct{ name, tmpl string }{
		{"structure.path", c.Structure.Path},
		{"structure.path_compilation", c.Structure.PathCompilation},
		{"structure.file", c.Structure.File},
		{"structure.file_multiartist", c.Structure.FileMultiArtist},
		{"structure.file_disc_prefix", c.Structure.FileDiscPrefix},
	} {
		if field.tmpl == "" {
			return nil, symerr.Newf(symerr.ErrConfigValid, "%s is required", field.name)
		}
		if _, err := tags.Parse(field.tmpl); err != nil {
			return nil, symerr.Wrapf(err, symerr.ErrConfigValid,
				"invalid template in %s", field.name)
		}
	}

	if len(c.Structure.CharacterReplace) != 0 && len(c.Structure.CharacterReplace) != 2 {
		return nil, symerr.New(symerr.ErrConfigValid,
			"structure.character_replace must be a [from, to] pair")
	}
	if len(c.Structure.CharacterReplace) == 2 &&
		len([]rune(c.Structure.CharacterReplace[0])) != len([]rune(c.Structure.CharacterReplace[1])) {
		return nil, symerr.New(symerr.ErrConfigValid,
			"structure.character_replace lists must be the same length")
	}

	out.Fallbacks = make(tags.Fallbacks, len(c.Fallbacks))
	for name, raw := range c.Fallbacks {
		v, err := toValue(raw)
		if err != nil {
			return nil, symerr.Wrapf(err, symerr.ErrConfigValid,
				"invalid fallback for %q", name)
		}
		if v.Kind() == tags.KindString {
			if _, err := tags.Parse(v.Text()); err != nil {
				return nil, symerr.Wrapf(err, symerr.ErrConfigValid,
					"invalid fallback template for %q", name)
			}
		}
		out.Fallbacks[name] = v
	}

	rules, err := compileRules(c.Overrides)
	if err != nil {
		return nil, err
	}
	out.Rules = rules

	return out, nil
}

// AcceptsFile reports whether the base filename passes the valid_files
// filter.
func (c *Compiled) AcceptsFile(name string) bool {
	for _, re := range c.ValidFiles {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func compileRules(raw []RawRule) ([]override.Rule, error) {
	var rules []override.Rule
	for i, rr := range raw {
		rule, err := compileRule(rr)
		if err != nil {
			return nil, symerr.Wrapf(err, symerr.ErrConfigValid,
				"in override rule %d", i+1)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(raw RawRule) (override.Rule, error) {
	rule := override.Rule{Match: make(map[string]override.Selector, len(raw.Match))}

	for name, sel := range raw.Match {
		if sel == nil {
			rule.Match[name] = override.NullSelector()
			continue
		}
		compiled, err := override.CompileSelector(scalarText(sel))
		if err != nil {
			return override.Rule{}, err
		}
		rule.Match[name] = compiled
	}

	// Map iteration is unordered; sort the operation keys so evaluation is
	// deterministic run to run.
	keys := make([]string, 0, len(raw.Set))
	for k := range raw.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "debug" {
			v, err := toValue(raw.Set[key])
			if err != nil {
				return override.Rule{}, err
			}
			b, _ := v.Bool()
			rule.Debug = b
			continue
		}
		v, err := toValue(raw.Set[key])
		if err != nil {
			return override.Rule{}, symerr.Wrapf(err, symerr.ErrConfigValid,
				"operation %q", key)
		}
		if v.Kind() == tags.KindString {
			if _, err := tags.Parse(v.Text()); err != nil {
				return override.Rule{}, symerr.Wrapf(err, symerr.ErrConfigValid,
					"template for operation %q", key)
			}
		}
		rule.Ops = append(rule.Ops, override.Operation{Key: key, Value: v})
	}

	for _, child := range raw.Rules {
		compiled, err := compileRule(child)
		if err != nil {
			return override.Rule{}, err
		}
		rule.Rules = append(rule.Rules, compiled)
	}
	return rule, nil
}

// toValue converts a decoded config scalar to a tags.Value. Only null,
// booleans, integers and strings are allowed.
func toValue(raw interface{}) (tags.Value, error) {
	switch v := raw.(type) {
	case nil:
		return tags.Absent, nil
	case bool:
		return tags.BoolValue(v), nil
	case int:
		return tags.IntValue(int64(v)), nil
	case int64:
		return tags.IntValue(v), nil
	case uint64:
		return tags.IntValue(int64(v)), nil
	case float64:
		if v == float64(int64(v)) {
			return tags.IntValue(int64(v)), nil
		}
		return tags.Absent, fmt.Errorf("non-integer number %v", v)
	case string:
		return tags.StringValue(v), nil
	default:
		return tags.Absent, fmt.Errorf("unsupported value type %T", raw)
	}
}

// scalarText renders a selector scalar the way the original config format
// does: numbers and booleans compare as their string forms.
func scalarText(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
