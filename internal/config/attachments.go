package config

import (
	"fmt"
	"path/filepath"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/geometry"
	"github.com/kirill555101/paperclip/pkg/storage"
)

// StyleConfig declares one derivative of an attachment.
type StyleConfig struct {
	Name           string `toml:"name"`
	Geometry       string `toml:"geometry"`
	Format         string `toml:"format"`
	ConvertOptions string `toml:"convert_options"`
}

// AttachmentConfig declares an attachment of a record class.
//
//	[[attachments]]
//	class = "User"
//	name = "avatar"
//	default_style = "medium"
//	styles = [
//	  { name = "medium", geometry = "300x300>" },
//	  { name = "thumb", geometry = "100x100#", format = "gif" },
//	]
type AttachmentConfig struct {
	Class          string        `toml:"class"`
	Name           string        `toml:"name"`
	Path           string        `toml:"path"`
	URL            string        `toml:"url"`
	MissingURL     string        `toml:"missing_url"`
	DefaultStyle   string        `toml:"default_style"`
	Whiny          *bool         `toml:"whiny"`
	ConvertOptions string        `toml:"convert_options"`
	Styles         []StyleConfig `toml:"styles"`
}

func (c *AttachmentConfig) validate() error {
	if c.Class == "" {
		return fmt.Errorf("class required")
	}
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	for _, s := range c.Styles {
		if _, err := styleGeometry(s.Geometry); err != nil {
			return fmt.Errorf("style %s: %w", s.Name, err)
		}
	}
	return nil
}

// Definition builds the attachment definition. Filesystem storage
// interpolates :rails_root to the storage base path; other backends
// default to a root-less object path.
func (c *AttachmentConfig) Definition(store *storage.Config) (*attachment.Definition, error) {
	def := &attachment.Definition{
		Name:           c.Name,
		ClassName:      c.Class,
		Path:           c.Path,
		URL:            c.URL,
		MissingURL:     c.MissingURL,
		DefaultStyle:   c.DefaultStyle,
		Whiny:          c.Whiny == nil || *c.Whiny,
		ConvertOptions: c.ConvertOptions,
	}

	if store.Backend == storage.KindFilesystem {
		root, err := filepath.Abs(store.BasePath)
		if err != nil {
			return nil, fmt.Errorf("resolve base_path: %w", err)
		}
		def.Root = root
	} else if def.Path == "" {
		def.Path = attachment.ObjectPath
	}

	for _, s := range c.Styles {
		g, err := styleGeometry(s.Geometry)
		if err != nil {
			return nil, fmt.Errorf("%s.%s style %s: %w", c.Class, c.Name, s.Name, err)
		}
		def.Styles = append(def.Styles, attachment.Style{
			Name:           s.Name,
			Geometry:       g,
			Format:         s.Format,
			ConvertOptions: s.ConvertOptions,
		})
	}

	if err := def.Finalize(); err != nil {
		return nil, err
	}
	return def, nil
}

// Definitions builds every configured attachment definition.
func (c *Config) Definitions() ([]*attachment.Definition, error) {
	defs := make([]*attachment.Definition, 0, len(c.Attachments))
	for i := range c.Attachments {
		def, err := c.Attachments[i].Definition(&c.Storage)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// styleGeometry parses spec; an empty spec keeps the source dimensions.
func styleGeometry(spec string) (geometry.Geometry, error) {
	if spec == "" {
		return geometry.Geometry{}, nil
	}
	return geometry.Parse(spec)
}
