package interpolate_test

import (
	"testing"
	"time"

	"github.com/kirill555101/paperclip/pkg/interpolate"
)

func testContext() interpolate.Context {
	return interpolate.Context{
		ClassName:      "Dummy",
		AttachmentName: "avatar",
		StyleName:      "thumb",
		RecordID:       "123",
		Basename:       "5k",
		Extension:      "png",
		Root:           "/srv/app",
		UpdatedAt:      time.Unix(1700000000, 0),
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "default path",
			template: ":rails_root/public/:attachment/:id/:style/:basename.:extension",
			want:     "/srv/app/public/avatars/123/thumb/5k.png",
		},
		{
			name:     "class scoped url",
			template: "/:attachment/:class/:style/:id/:basename.:extension",
			want:     "/avatars/dummies/thumb/123/5k.png",
		},
		{
			name:     "id partition",
			template: ":class/:id_partition/:style/:filename",
			want:     "dummies/000/000/123/thumb/5k.png",
		},
		{
			name:     "cache buster",
			template: "/:style/:basename.:extension?:updated_at",
			want:     "/thumb/5k.png?1700000000",
		},
		{
			name:     "unknown tokens pass through",
			template: "/:bucket/:style/:nope",
			want:     "/:bucket/thumb/:nope",
		},
		{
			name:     "token prefix of longer word",
			template: ":rails_root/tmp/:id/:attachments/:style.:extension",
			want:     "/srv/app/tmp/123/avatarss/thumb.png",
		},
		{
			name:     "bare colons",
			template: "a::b:",
			want:     "a::b:",
		},
		{
			name:     "no tokens",
			template: "static/path.png",
			want:     "static/path.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interpolate.Expand(tt.template, testContext())
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestExpand_Pure(t *testing.T) {
	template := ":rails_root/:class/:attachment/:id_partition/:style/:basename.:extension"
	first := interpolate.Expand(template, testContext())
	for range 10 {
		if got := interpolate.Expand(template, testContext()); got != first {
			t.Fatalf("Expand() = %q, want stable %q", got, first)
		}
	}
}

func TestInterpolator_With(t *testing.T) {
	base := interpolate.New()
	custom := base.With("bucket", func(interpolate.Context) string { return "uploads" })

	template := "/:bucket/:style"
	if got := custom.Expand(template, testContext()); got != "/uploads/thumb" {
		t.Errorf("custom Expand() = %q, want %q", got, "/uploads/thumb")
	}
	if got := base.Expand(template, testContext()); got != "/:bucket/thumb" {
		t.Errorf("base Expand() = %q, want base unchanged", got)
	}
}

func TestInterpolator_WithOverride(t *testing.T) {
	custom := interpolate.New().With("id", func(c interpolate.Context) string { return "id-" + c.RecordID })
	if got := custom.Expand(":id/:id_partition", testContext()); got != "id-123/000/000/123" {
		t.Errorf("Expand() = %q", got)
	}
}

func TestIDPartition(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"1", "000/000/001"},
		{"123", "000/000/123"},
		{"123456789", "123/456/789"},
		{"", ""},
		{"4f1c2a9e-0000", "4f1/c2a/9e-"},
		{"abcd", "abc/d"},
	}

	for _, tt := range tests {
		if got := interpolate.IDPartition(tt.id); got != tt.want {
			t.Errorf("IDPartition(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"avatar":  "avatars",
		"dummy":   "dummies",
		"key":     "keys",
		"box":     "boxes",
		"class":   "classes",
		"match":   "matches",
		"":        "",
		"profile": "profiles",
	}

	for in, want := range tests {
		if got := interpolate.Pluralize(in); got != want {
			t.Errorf("Pluralize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnderscore(t *testing.T) {
	tests := map[string]string{
		"Dummy":        "dummy",
		"UserProfile":  "user_profile",
		"HTTPUpload":   "http_upload",
		"Admin::User":  "admin__user",
		"already_done": "already_done",
	}

	for in, want := range tests {
		if got := interpolate.Underscore(in); got != want {
			t.Errorf("Underscore(%q) = %q, want %q", in, got, want)
		}
	}
}
