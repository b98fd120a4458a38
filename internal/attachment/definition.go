package attachment

import (
	"fmt"
	"mime"
	"strings"

	"github.com/kirill555101/paperclip/pkg/geometry"
	"github.com/kirill555101/paperclip/pkg/interpolate"
)

// Original is the style holding the uploaded file.
const Original = "original"

// Default templates.
const (
	DefaultPath = ":rails_root/public/:attachment/:id/:style/:basename.:extension"
	DefaultURL  = "/:attachment/:id/:style/:basename.:extension"
	MissingURL  = "/:attachment/:style/missing.png"

	// ObjectPath suits object stores, which have no root directory.
	ObjectPath = ":class/:attachment/:id/:style/:basename.:extension"
)

// Style is one named derivative of an attachment.
type Style struct {
	Name           string
	Geometry       geometry.Geometry
	Format         string
	ConvertOptions string
}

// passthrough reports whether the style stores the input unchanged.
func (s Style) passthrough() bool {
	return s.Geometry.IsEmpty() && s.Format == "" && s.ConvertOptions == ""
}

// Definition configures one attachment of a record class.
type Definition struct {
	Name      string
	ClassName string
	// Styles are processed in order. An "original" style is added unless
	// one is declared.
	Styles       []Style
	DefaultStyle string
	Path         string
	URL          string
	MissingURL   string
	Root         string
	Whiny        bool
	// ConvertOptions apply to every processed style, before the style's own.
	ConvertOptions string
	Interpolator   *interpolate.Interpolator
}

// Finalize applies defaults and validates the definition.
func (d *Definition) Finalize() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidDefinition)
	}
	if d.ClassName == "" {
		return fmt.Errorf("%w: %s: class name required", ErrInvalidDefinition, d.Name)
	}

	seen := make(map[string]bool, len(d.Styles)+1)
	for _, s := range d.Styles {
		if s.Name == "" {
			return fmt.Errorf("%w: %s: style name required", ErrInvalidDefinition, d.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s: duplicate style %q", ErrInvalidDefinition, d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	if !seen[Original] {
		d.Styles = append([]Style{{Name: Original}}, d.Styles...)
	}

	if d.DefaultStyle == "" {
		d.DefaultStyle = Original
	}
	if _, ok := d.Style(d.DefaultStyle); !ok {
		return fmt.Errorf("%w: %s: default style %q not declared", ErrInvalidDefinition, d.Name, d.DefaultStyle)
	}

	if d.Path == "" {
		d.Path = DefaultPath
	}
	if d.URL == "" {
		d.URL = DefaultURL
	}
	if d.MissingURL == "" {
		d.MissingURL = MissingURL
	}
	if d.Interpolator == nil {
		d.Interpolator = interpolate.New()
	}

	return nil
}

// Style returns the named style.
func (d *Definition) Style(name string) (Style, bool) {
	for _, s := range d.Styles {
		if s.Name == name {
			return s, true
		}
	}
	return Style{}, false
}

// StyleNames returns style names in processing order.
func (d *Definition) StyleNames() []string {
	names := make([]string, len(d.Styles))
	for i, s := range d.Styles {
		names[i] = s.Name
	}
	return names
}

func (d *Definition) convertOptions(s Style) string {
	return strings.TrimSpace(d.ConvertOptions + " " + s.ConvertOptions)
}

func (d *Definition) context(style Style, id string, attrs Attributes) interpolate.Context {
	ctx := interpolate.Context{
		ClassName:      d.ClassName,
		AttachmentName: d.Name,
		StyleName:      style.Name,
		RecordID:       id,
		Root:           d.Root,
	}

	if attrs.FileName != nil {
		name := *attrs.FileName
		ext := ""
		if i := strings.LastIndexByte(name, '.'); i > 0 {
			ctx.Basename, ext = name[:i], name[i+1:]
		} else {
			ctx.Basename = name
		}
		ctx.Extension = ext
	}
	if style.Format != "" {
		ctx.Extension = style.Format
	}
	if attrs.UpdatedAt != nil {
		ctx.UpdatedAt = *attrs.UpdatedAt
	}

	return ctx
}

func (d *Definition) contentType(style Style, attrs Attributes) string {
	if style.Format != "" {
		if ct := mime.TypeByExtension("." + style.Format); ct != "" {
			return ct
		}
	}
	if attrs.ContentType != nil {
		return *attrs.ContentType
	}
	return ""
}
