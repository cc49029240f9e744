// internal/common/oracle/parse.go
package oracle

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the outcome of interpreting oracle output: either a well-formed value or the
// raw text that could not be interpreted. Callers must handle both branches.
type Parsed[T any] struct {
	value   T
	raw     string
	missing []string
	ok      bool
}

func Ok[T any](v T) Parsed[T] {
	return Parsed[T]{value: v, ok: true}
}

func Malformed[T any](raw string, missing []string) Parsed[T] {
	return Parsed[T]{raw: raw, missing: missing}
}

// Get returns the value and whether the output was well formed.
func (p Parsed[T]) Get() (T, bool) { return p.value, p.ok }

func (p Parsed[T]) Raw() string       { return p.raw }
func (p Parsed[T]) Missing() []string { return p.missing }

// Tags holds "TAG: value" sections extracted from oracle output. A section runs until the
// next known tag, so multi-line values such as lists are preserved.
type Tags map[string]string

var tagLine = regexp.MustCompile(`^[\s>*_#-]*([A-Za-z][A-Za-z _]*?)[\s*_]*:\s?(.*)$`)

// ParseTags extracts the known tags from text. Tag names match case-insensitively and
// markdown decoration around them is ignored. Unknown "Key: value" lines are kept as
// content of the current section.
func ParseTags(text string, known ...string) Tags {
	allowed := make(map[string]string, len(known))
	for _, k := range known {
		allowed[normalizeTag(k)] = k
	}

	tags := Tags{}
	current := ""
	var buf []string
	flush := func() {
		if current != "" {
			tags[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := tagLine.FindStringSubmatch(line); m != nil {
			if name, ok := allowed[normalizeTag(m[1])]; ok {
				flush()
				current = name
				buf = []string{strings.TrimSpace(strings.Trim(m[2], "*_"))}
				continue
			}
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return tags
}

func normalizeTag(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}

// Missing returns the names that are absent or empty.
func (t Tags) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if strings.TrimSpace(t[n]) == "" {
			out = append(out, n)
		}
	}
	return out
}

func (t Tags) String(name string) string {
	return strings.TrimSpace(t[name])
}

var (
	firstNumber = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	listBullet  = regexp.MustCompile(`^(?:[-*•]\s*|\d+[.)]\s+)`)
)

// Float returns the first number in the tag value.
func (t Tags) Float(name string) (float64, bool) {
	m := firstNumber.FindString(t[name])
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the first number in the tag value, rounded toward zero.
func (t Tags) Int(name string) (int, bool) {
	f, ok := t.Float(name)
	return int(f), ok
}

// Bool understands yes/no answers in English and Portuguese.
func (t Tags) Bool(name string) (bool, bool) {
	v := strings.ToLower(t.String(name))
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '(' || r == ')' || r == '-'
	})
	if len(fields) == 0 {
		return false, false
	}
	switch fields[0] {
	case "yes", "true", "y", "sim", "1":
		return true, true
	case "no", "false", "n", "nao", "não", "0", "none":
		return false, true
	}
	return false, false
}

// Lines splits a list-valued tag into trimmed non-empty items, dropping bullets.
func (t Tags) Lines(name string) []string {
	var out []string
	for _, line := range strings.Split(t[name], "\n") {
		line = strings.TrimSpace(listBullet.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || strings.EqualFold(line, "none") {
			continue
		}
		out = append(out, line)
	}
	return out
}
