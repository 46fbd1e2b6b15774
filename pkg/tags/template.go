package tags

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arthur-debert/symfarm/pkg/errors"
)

// Lookup resolves attribute names during template expansion.
type Lookup interface {
	Get(name string) (Value, error)
}

// Template is a parsed path/filename template. The placeholder grammar is
// {NAME[/EXPAND/][:SPEC]} where SPEC is an optional /pattern/repl/ regex
// substitution followed by a format spec. {{ and }} escape literal braces;
// \/ escapes a slash inside slash-delimited parts.
type Template struct {
	src  string
	segs []segment
}

type segment struct {
	lit string
	ph  *placeholder
}

// placeholder is the explicit pipeline form of one {...} directive: optional
// extraction, optional substitution, optional format spec, applied in that
// fixed order.
type placeholder struct {
	name   string
	expand string // regex-expand template for a prior match, "" if none
	sub    *substitution
	spec   string
}

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// Parse parses a template, compiling any embedded regex substitutions.
// A malformed template or regex is a CONFIG_PARSE error.
func Parse(src string) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segs = append(t.segs, segment{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case strings.HasPrefix(src[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case src[i] == '}':
			return nil, errors.Newf(errors.ErrConfigParse,
				"unmatched '}' in template %q", src)
		case src[i] == '{':
			body, rest, err := scanBody(src[i+1:])
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse,
					"in template %q", src)
			}
			ph, err := parseBody(body)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse,
					"in template %q", src)
			}
			flush()
			t.segs = append(t.segs, segment{ph: ph})
			i = len(src) - len(rest)
		default:
			lit.WriteByte(src[i])
			i++
		}
	}
	flush()
	return t, nil
}

// scanBody consumes a placeholder body up to its closing brace, un-escaping
// {{ and }} pairs, and returns the body and the remaining input. Brace pairs
// inside the body (regex repetition counts like {0,4}) pass through.
func scanBody(src string) (string, string, error) {
	var body strings.Builder
	depth := 0
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "{{"):
			body.WriteByte('{')
			i += 2
		case strings.HasPrefix(src[i:], "}}"):
			body.WriteByte('}')
			i += 2
		case src[i] == '}':
			if depth == 0 {
				return body.String(), src[i+1:], nil
			}
			depth--
			body.WriteByte('}')
			i++
		case src[i] == '{':
			depth++
			body.WriteByte('{')
			i++
		default:
			body.WriteByte(src[i])
			i++
		}
	}
	return "", "", errors.New(errors.ErrConfigParse, "unterminated placeholder")
}

func parseBody(body string) (*placeholder, error) {
	ph := &placeholder{}

	// Attribute name runs until the expand or spec delimiter.
	i := strings.IndexAny(body, "/:")
	if i < 0 {
		ph.name = body
	} else {
		ph.name = body[:i]
	}
	if ph.name == "" {
		return nil, errors.New(errors.ErrConfigParse, "empty attribute reference")
	}
	if i < 0 {
		return ph, nil
	}

	rest := body[i:]
	if rest[0] == '/' {
		tmpl, after, ok := scanSlashPart(rest[1:])
		if !ok {
			return nil, errors.Newf(errors.ErrConfigParse,
				"unterminated expand pattern in %q", body)
		}
		ph.expand = convertBackrefs(tmpl)
		rest = after
		if rest == "" {
			return ph, nil
		}
		if rest[0] != ':' {
			return nil, errors.Newf(errors.ErrConfigParse,
				"unexpected %q after expand pattern in %q", rest, body)
		}
	}

	// rest starts with ':'
	spec := rest[1:]
	if strings.HasPrefix(spec, "/") {
		pat, after, ok := scanSlashPart(spec[1:])
		if !ok {
			return nil, errors.Newf(errors.ErrConfigParse,
				"unterminated substitution pattern in %q", body)
		}
		repl, after, ok := scanSlashPart(after)
		if !ok {
			return nil, errors.Newf(errors.ErrConfigParse,
				"unterminated substitution replacement in %q", body)
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse,
				"invalid substitution pattern %q", pat)
		}
		ph.sub = &substitution{re: re, repl: convertBackrefs(repl)}
		spec = after
	}
	ph.spec = spec
	if _, err := parseFormatSpec(ph.spec); err != nil {
		return nil, err
	}
	return ph, nil
}

// scanSlashPart consumes up to the next unescaped '/', converting \/ to /.
func scanSlashPart(s string) (part string, rest string, ok bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '/':
			b.WriteByte('/')
			i++
		case s[i] == '/':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", false
}

// convertBackrefs rewrites Python-style \1 and \g<1> group references to the
// ${1} form regexp.Expand understands.
func convertBackrefs(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] != '\\' || i+1 >= len(repl) {
			if repl[i] == '$' {
				b.WriteString("$$")
				continue
			}
			b.WriteByte(repl[i])
			continue
		}
		next := repl[i+1]
		switch {
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
		case next == 'g' && i+2 < len(repl) && repl[i+2] == '<':
			end := strings.IndexByte(repl[i+3:], '>')
			if end < 0 {
				b.WriteByte('\\')
				continue
			}
			b.WriteString("${" + repl[i+3:i+3+end] + "}")
			i = i + 3 + end
		case next == '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte('\\')
		}
	}
	return b.String()
}

// Expand parses and expands a template in one step.
func Expand(template string, look Lookup) (string, error) {
	t, err := Parse(template)
	if err != nil {
		return "", err
	}
	return t.Render(look)
}

// Render expands the template against the lookup.
func (t *Template) Render(look Lookup) (string, error) {
	var out strings.Builder
	for _, seg := range t.segs {
		if seg.ph == nil {
			out.WriteString(seg.lit)
			continue
		}
		s, err := seg.ph.render(look)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}

// References returns the attribute names the template refers to.
func (t *Template) References() []string {
	var refs []string
	for _, seg := range t.segs {
		if seg.ph != nil {
			refs = append(refs, seg.ph.name)
		}
	}
	return refs
}

// String returns the source text of the template.
func (t *Template) String() string { return t.src }

func (ph *placeholder) render(look Lookup) (string, error) {
	v, err := look.Get(ph.name)
	if err != nil {
		return "", err
	}
	if v.IsAbsent() {
		return "", errors.Newf(errors.ErrResolution,
			"no value for %q and no fallback", ph.name)
	}

	if ph.expand != "" {
		m := v.Match()
		if m == nil {
			return "", errors.Newf(errors.ErrFormat,
				"%q is not a regex match and cannot be expanded", ph.name)
		}
		v = StringValue(m.Expand(ph.expand))
	}

	if ph.sub != nil {
		v = StringValue(ph.sub.re.ReplaceAllString(v.Text(), ph.sub.repl))
	}

	return applyFormat(v, ph.spec)
}

// formatSpec is the parsed [[fill]align][0][width] mini-language. Zero
// padding implies integer semantics.
type formatSpec struct {
	fill  byte
	align byte
	zero  bool
	width int
}

func parseFormatSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' '}
	s := spec
	if len(s) >= 2 && isAlign(s[1]) {
		fs.fill = s[0]
		fs.align = s[1]
		s = s[2:]
	} else if len(s) >= 1 && isAlign(s[0]) {
		fs.align = s[0]
		s = s[1:]
	}
	if strings.HasPrefix(s, "0") {
		fs.zero = true
		fs.fill = '0'
		s = s[1:]
	}
	if fs.fill == '0' {
		fs.zero = true
	}
	if s != "" {
		w, err := strconv.Atoi(s)
		if err != nil {
			return fs, errors.Newf(errors.ErrConfigParse,
				"invalid format spec %q", spec)
		}
		fs.width = w
	}
	return fs, nil
}

func isAlign(c byte) bool { return c == '<' || c == '>' || c == '^' }

func applyFormat(v Value, spec string) (string, error) {
	if spec == "" {
		return v.Text(), nil
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}

	if fs.zero {
		n, ok := v.Int()
		if !ok {
			return "", errors.Newf(errors.ErrFormat,
				"value %q is not numeric", v.Text())
		}
		return pad(strconv.FormatInt(n, 10), fs.width, '0', '>'), nil
	}

	align := fs.align
	if align == 0 {
		align = '<'
	}
	return pad(v.Text(), fs.width, fs.fill, align), nil
}

// SplitTemplatePath splits a path template on '/' separators that sit
// outside placeholders, so regex patterns containing slashes stay within
// their segment.
func SplitTemplatePath(src string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "{{") || strings.HasPrefix(src[i:], "}}"):
			cur.WriteString(src[i : i+2])
			i += 2
		case src[i] == '{':
			depth++
			cur.WriteByte('{')
			i++
		case src[i] == '}':
			depth--
			cur.WriteByte('}')
			i++
		case src[i] == '/' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(src[i])
			i++
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func pad(s string, width int, fill byte, align byte) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	padding := strings.Repeat(string(fill), n)
	switch align {
	case '>':
		return padding + s
	case '^':
		left := n / 2
		return padding[:left] + s + padding[left:]
	default:
		return s + padding
	}
}
