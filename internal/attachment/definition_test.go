package attachment_test

import (
	"errors"
	"testing"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/geometry"
)

func TestDefinitionFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		def := &attachment.Definition{
			Name:      "avatar",
			ClassName: "User",
			Styles:    []attachment.Style{{Name: "thumb", Geometry: geometry.MustParse("32x32#")}},
		}
		if err := def.Finalize(); err != nil {
			t.Fatalf("Finalize() failed: %v", err)
		}

		names := def.StyleNames()
		if len(names) != 2 || names[0] != attachment.Original || names[1] != "thumb" {
			t.Errorf("StyleNames() = %v, want [original thumb]", names)
		}
		if def.DefaultStyle != attachment.Original {
			t.Errorf("DefaultStyle = %q, want original", def.DefaultStyle)
		}
		if def.Path != attachment.DefaultPath {
			t.Errorf("Path = %q", def.Path)
		}
		if def.URL != attachment.DefaultURL {
			t.Errorf("URL = %q", def.URL)
		}
		if def.Interpolator == nil {
			t.Error("Interpolator not set")
		}
	})

	t.Run("declared original is kept", func(t *testing.T) {
		def := &attachment.Definition{
			Name:      "avatar",
			ClassName: "User",
			Styles:    []attachment.Style{{Name: attachment.Original, Geometry: geometry.MustParse("2000x2000>")}},
		}
		if err := def.Finalize(); err != nil {
			t.Fatal(err)
		}
		if len(def.Styles) != 1 {
			t.Errorf("Styles = %v, want only the declared original", def.StyleNames())
		}
		s, _ := def.Style(attachment.Original)
		if s.Geometry.String() != "2000x2000>" {
			t.Errorf("original geometry = %q", s.Geometry.String())
		}
	})

	tests := []struct {
		name string
		def  attachment.Definition
	}{
		{"missing name", attachment.Definition{ClassName: "User"}},
		{"missing class", attachment.Definition{Name: "avatar"}},
		{"duplicate style", attachment.Definition{
			Name: "avatar", ClassName: "User",
			Styles: []attachment.Style{{Name: "thumb"}, {Name: "thumb"}},
		}},
		{"unnamed style", attachment.Definition{
			Name: "avatar", ClassName: "User",
			Styles: []attachment.Style{{Geometry: geometry.MustParse("10x10")}},
		}},
		{"unknown default", attachment.Definition{Name: "avatar", ClassName: "User", DefaultStyle: "huge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.def
			if err := def.Finalize(); !errors.Is(err, attachment.ErrInvalidDefinition) {
				t.Errorf("Finalize() = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}
