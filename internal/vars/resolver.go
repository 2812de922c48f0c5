package vars

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sreq-inc/solo/internal/errdef"
)

// pad is the padding allowed around a name. It is the same set trimPad strips:
// unicode.IsSpace plus the byte order mark.
const pad = `[\t\n\v\f\r\x{85}\p{Z}\x{FEFF}]*`

// The name runs up to the nearest "}}", so "{{a{{b}}" yields the name "a{{b".
var placeholderPattern = regexp.MustCompile(`\{\{` + pad + `([^}]+)` + pad + `\}\}`)

func isPad(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func trimPad(s string) string {
	return strings.TrimFunc(s, isPad)
}

// Placeholder is one {{name}} occurrence. Start and End are byte offsets into
// the scanned text, End exclusive.
type Placeholder struct {
	Name       string
	Resolvable bool
	Value      string
	Raw        string
	Start      int
	End        int
}

// FindPlaceholders reports every occurrence left to right; repeats are kept.
func FindPlaceholders(text string, rows []Variable) []Placeholder {
	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		name := trimPad(text[m[2]:m[3]])
		value, ok := Lookup(rows, name)
		out = append(out, Placeholder{
			Name:       name,
			Resolvable: ok,
			Value:      value,
			Raw:        text[m[0]:m[1]],
			Start:      m[0],
			End:        m[1],
		})
	}
	return out
}

// Lookup returns the trimmed value of the first enabled row whose trimmed key
// matches and whose value is not blank.
func Lookup(rows []Variable, name string) (string, bool) {
	name = trimPad(name)
	if name == "" {
		return "", false
	}
	for _, row := range rows {
		if !row.resolvable() {
			continue
		}
		if trimPad(row.Key) == name {
			return trimPad(row.Value), true
		}
	}
	return "", false
}

// Resolve substitutes rows in table order, one global pass per row. Inserted
// values are not scanned again.
func Resolve(text string, rows []Variable) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	out := text
	for _, row := range rows {
		if !row.resolvable() {
			continue
		}
		pattern := keyPattern(trimPad(row.Key))
		out = pattern.ReplaceAllLiteralString(out, trimPad(row.Value))
	}
	return out
}

// IsFullyResolved reports whether no "{{" survives Resolve, so a lone "{{"
// counts against it even though it names nothing.
func IsFullyResolved(text string, rows []Variable) bool {
	return !strings.Contains(Resolve(text, rows), "{{")
}

// Unresolved lists the distinct placeholder names left after Resolve.
func Unresolved(text string, rows []Variable) []string {
	remaining := FindPlaceholders(Resolve(text, rows), nil)
	if len(remaining) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(remaining))
	names := make([]string, 0, len(remaining))
	for _, ph := range remaining {
		if _, ok := seen[ph.Name]; ok {
			continue
		}
		seen[ph.Name] = struct{}{}
		names = append(names, ph.Name)
	}
	return names
}

func keyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`\{\{` + pad + regexp.QuoteMeta(key) + pad + `\}\}`)
}

// UnresolvedError blocks dispatch or export until every name resolves.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved variables: " + strings.Join(e.Names, ", ")
}

func (e *UnresolvedError) Code() errdef.Code {
	return errdef.CodeResolution
}

// Check returns an *UnresolvedError when any text still has placeholders.
// Only complete {{name}} occurrences block; a lone "{{" is literal text.
func Check(rows []Variable, texts ...string) error {
	var names []string
	seen := map[string]struct{}{}
	for _, text := range texts {
		for _, name := range Unresolved(text, rows) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &UnresolvedError{Names: names}
}
