// Package interpolate expands path and URL templates such as
// ":rails_root/public/:attachment/:id/:style/:basename.:extension"
// into concrete strings for one style of one attachment.
//
// Expansion is a pure function of the template and the Context:
// no I/O is performed and unknown tokens are left in place.
package interpolate

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Context carries the attachment identity used to resolve tokens.
type Context struct {
	ClassName      string
	AttachmentName string
	StyleName      string
	RecordID       string
	Basename       string
	Extension      string
	Root           string
	UpdatedAt      time.Time
}

// Func resolves a single token.
type Func func(Context) string

// Interpolator holds a token table. The zero value is not usable; use New.
type Interpolator struct {
	tokens map[string]Func
	names  []string
}

// New returns an Interpolator with the default token set.
func New() *Interpolator {
	return build(map[string]Func{
		"class":        func(c Context) string { return Pluralize(Underscore(c.ClassName)) },
		"attachment":   func(c Context) string { return Pluralize(strings.ToLower(c.AttachmentName)) },
		"style":        func(c Context) string { return c.StyleName },
		"id":           func(c Context) string { return c.RecordID },
		"id_partition": func(c Context) string { return IDPartition(c.RecordID) },
		"basename":     func(c Context) string { return c.Basename },
		"extension":    func(c Context) string { return c.Extension },
		"filename":     filename,
		"rails_root":   func(c Context) string { return c.Root },
		"updated_at":   updatedAt,
	})
}

// With returns a copy of the Interpolator with an additional token.
// An existing token of the same name is replaced.
func (i *Interpolator) With(name string, fn Func) *Interpolator {
	tokens := maps.Clone(i.tokens)
	tokens[name] = fn
	return build(tokens)
}

// Tokens returns the recognized token names in lookup order.
func (i *Interpolator) Tokens() []string {
	return slices.Clone(i.names)
}

// Expand replaces every recognized ":token" in template with its value.
// At each colon the longest matching token name wins, so ":id_partition"
// is never read as ":id" followed by "_partition".
func (i *Interpolator) Expand(template string, ctx Context) string {
	var b strings.Builder
	b.Grow(len(template))

	for pos := 0; pos < len(template); {
		if template[pos] != ':' {
			next := strings.IndexByte(template[pos:], ':')
			if next < 0 {
				b.WriteString(template[pos:])
				break
			}
			b.WriteString(template[pos : pos+next])
			pos += next
			continue
		}

		name := i.match(template[pos+1:])
		if name == "" {
			b.WriteByte(':')
			pos++
			continue
		}

		b.WriteString(i.tokens[name](ctx))
		pos += 1 + len(name)
	}

	return b.String()
}

func (i *Interpolator) match(rest string) string {
	for _, name := range i.names {
		if strings.HasPrefix(rest, name) {
			return name
		}
	}
	return ""
}

func build(tokens map[string]Func) *Interpolator {
	names := slices.Collect(maps.Keys(tokens))
	slices.SortFunc(names, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return &Interpolator{tokens: tokens, names: names}
}

var defaultInterpolator = New()

// Expand expands template with the default token set.
func Expand(template string, ctx Context) string {
	return defaultInterpolator.Expand(template, ctx)
}

// IDPartition shards an id into three directory levels.
// Numeric ids are zero padded to nine digits ("123" -> "000/000/123");
// other ids use their first nine characters.
func IDPartition(id string) string {
	if id == "" {
		return ""
	}

	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		padded := fmt.Sprintf("%09d", n)
		return padded[0:3] + "/" + padded[3:6] + "/" + padded[6:9]
	}

	var parts []string
	for i := 0; i < len(id) && len(parts) < 3; i += 3 {
		parts = append(parts, id[i:min(i+3, len(id))])
	}
	return strings.Join(parts, "/")
}

// Underscore converts a CamelCase name to snake_case.
func Underscore(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == ':' || r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Pluralize applies English plural rules sufficient for directory names.
func Pluralize(word string) string {
	if word == "" {
		return ""
	}

	lower := strings.ToLower(word)
	switch {
	case strings.HasSuffix(lower, "s"),
		strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return word + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

func isVowel(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

func filename(c Context) string {
	if c.Extension == "" {
		return c.Basename
	}
	return c.Basename + "." + c.Extension
}

func updatedAt(c Context) string {
	if c.UpdatedAt.IsZero() {
		return ""
	}
	return strconv.FormatInt(c.UpdatedAt.Unix(), 10)
}
