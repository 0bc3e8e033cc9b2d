package template

import (
	"fmt"
	"sort"
	"strings"
)

// Template is a parsed prompt. It is safe for concurrent use.
type Template struct {
	parts []part
	names []string
}

// part is either literal text or a variable reference.
type part struct {
	text     string
	variable bool
}

// SyntaxError reports a malformed placeholder.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template: offset %d: %s", e.Offset, e.Reason)
}

// UndefinedVariableError is returned under MissingError.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// Parse splits src into literal text and ${name} references. Names must
// start with a letter or underscore and continue with letters, digits or
// underscores.
func Parse(src string) (*Template, error) {
	t := &Template{}
	seen := make(map[string]bool)
	var lit strings.Builder

	for i := 0; i < len(src); {
		if strings.HasPrefix(src[i:], "$${") {
			lit.WriteString("${")
			i += 3
			continue
		}
		if !strings.HasPrefix(src[i:], "${") {
			lit.WriteByte(src[i])
			i++
			continue
		}

		end := strings.IndexByte(src[i+2:], '}')
		if end < 0 {
			return nil, &SyntaxError{Offset: i, Reason: "unterminated placeholder"}
		}
		name := src[i+2 : i+2+end]
		if !validName(name) {
			return nil, &SyntaxError{Offset: i, Reason: fmt.Sprintf("invalid variable name %q", name)}
		}

		if lit.Len() > 0 {
			t.parts = append(t.parts, part{text: lit.String()})
			lit.Reset()
		}
		t.parts = append(t.parts, part{text: name, variable: true})
		if !seen[name] {
			seen[name] = true
			t.names = append(t.names, name)
		}
		i += end + 3
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, part{text: lit.String()})
	}
	return t, nil
}

// MustParse is Parse that panics on error. Use it for prompts fixed at
// compile time.
func MustParse(src string) *Template {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Vars returns referenced variable names in first-use order.
func (t *Template) Vars() []string {
	return append([]string(nil), t.names...)
}

// Render substitutes vars into the template.
func (t *Template) Render(vars map[string]any, opts ...Option) (string, error) {
	cfg := renderConfig{missing: MissingKeep}
	for _, opt := range opts {
		opt(&cfg)
	}

	var b strings.Builder
	var missing []string
	for _, p := range t.parts {
		if !p.variable {
			b.WriteString(p.text)
			continue
		}
		val, ok := vars[p.text]
		if ok {
			b.WriteString(Format(val))
			continue
		}
		switch cfg.missing {
		case MissingEmpty:
		case MissingError:
			missing = appendUnique(missing, p.text)
		default:
			b.WriteString("${" + p.text + "}")
		}
	}

	if len(missing) > 0 {
		return "", &UndefinedVariableError{Names: missing}
	}
	return b.String(), nil
}

// Expand parses and renders s in one step, keeping missing placeholders.
// A malformed template is returned unchanged.
func Expand(s string, vars map[string]any) string {
	t, err := Parse(s)
	if err != nil {
		return s
	}
	out, _ := t.Render(vars)
	return out
}

// Format renders a value the way it appears inside a prompt.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]any:
		return formatMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return formatMap(m)
	case []string:
		return strings.Join(val, "\n")
	case []any:
		lines := make([]string, len(val))
		for i, item := range val {
			lines[i] = Format(item)
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatMap(m map[string]any) string {
	if len(m) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + Format(m[k])
	}
	return strings.Join(lines, "\n")
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
