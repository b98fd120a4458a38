package records_test

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/internal/records"
	"github.com/kirill555101/paperclip/pkg/geometry"
	"github.com/kirill555101/paperclip/pkg/pagination"
	"github.com/kirill555101/paperclip/pkg/storage"
	"github.com/kirill555101/paperclip/pkg/thumbnail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 40, B: 90, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	return path
}

type env struct {
	root    string
	backend *storage.Filesystem
	store   *records.MemoryStore
	sys     records.System
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil)
}

// newEnvWith builds an env whose record system writes through wrap(backend)
// when wrap is non-nil.
func newEnvWith(t *testing.T, wrap func(storage.Backend) storage.Backend) *env {
	t.Helper()
	root := t.TempDir()

	backend, err := storage.NewFilesystem(root, testLogger())
	if err != nil {
		t.Fatalf("NewFilesystem() failed: %v", err)
	}

	registry, err := records.NewRegistry(&attachment.Definition{
		Name:      "avatar",
		ClassName: "User",
		Root:      root,
		Whiny:     true,
		Styles: []attachment.Style{
			{Name: "thumb", Geometry: geometry.MustParse("32x32#"), Format: "gif"},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	store := records.NewMemoryStore(testLogger())
	proc := thumbnail.NewProcessor(thumbnail.NativeRunner{}, thumbnail.Config{TempDir: t.TempDir()}, testLogger())

	var sysBackend storage.Backend = backend
	if wrap != nil {
		sysBackend = wrap(backend)
	}

	return &env{
		root:    root,
		backend: backend,
		store:   store,
		sys:     records.New(store, registry, sysBackend, proc, testLogger(), attachment.WithTempDir(t.TempDir())),
	}
}

func (e *env) attached(t *testing.T) (*records.Model, *attachment.Attachment) {
	t.Helper()
	ctx := context.Background()

	m, err := e.sys.Create(ctx, "User")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	a, err := m.Attachment("avatar")
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(writeImage(t, t.TempDir(), "face.png", 120, 80))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := a.Assign(ctx, f); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if err := e.sys.Save(ctx, m); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return m, a
}

func TestCreateUnknownClass(t *testing.T) {
	e := newEnv(t)
	if _, err := e.sys.Create(context.Background(), "Ghost"); !errors.Is(err, records.ErrUnknownClass) {
		t.Errorf("Create() = %v, want ErrUnknownClass", err)
	}
}

func TestSavePersistsAttributesAndFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, a := e.attached(t)

	for _, style := range []string{attachment.Original, "thumb"} {
		ok, err := a.Exists(ctx, style)
		if err != nil || !ok {
			t.Errorf("style %s not stored: %v", style, err)
		}
	}

	found, err := e.sys.Find(ctx, "User", m.Record().ID)
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	fa, _ := found.Attachment("avatar")
	if fa.FileName() != "face.png" {
		t.Errorf("FileName() = %q, want face.png", fa.FileName())
	}
	if fa.Path("thumb") != a.Path("thumb") {
		t.Errorf("reloaded path %q != %q", fa.Path("thumb"), a.Path("thumb"))
	}
	if found.Dirty() {
		t.Error("found model should be clean")
	}
}

func TestSaveRejectsUnprocessableFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m, err := e.sys.Create(ctx, "User")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m.Attachment("avatar")

	path := filepath.Join(t.TempDir(), "notes.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := a.Assign(ctx, f); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if err := e.sys.Save(ctx, m); !errors.Is(err, attachment.ErrProcessing) {
		t.Fatalf("Save() = %v, want ErrProcessing", err)
	}

	rec, err := e.store.Find(ctx, "User", m.Record().ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attachments["avatar"].Present() {
		t.Error("attributes persisted for an invalid attachment")
	}
}

type flakyBackend struct {
	storage.Backend
	failing bool
}

func (b *flakyBackend) Write(ctx context.Context, t storage.Target, r io.Reader) error {
	if b.failing {
		return fmt.Errorf("%w: store unreachable", storage.ErrConnection)
	}
	return b.Backend.Write(ctx, t, r)
}

func TestSaveRevertsAttributesWhenWriteFails(t *testing.T) {
	flaky := &flakyBackend{}
	e := newEnvWith(t, func(b storage.Backend) storage.Backend {
		flaky.Backend = b
		return flaky
	})
	ctx := context.Background()
	m, a := e.attached(t)
	thumb := a.Path("thumb")

	flaky.failing = true
	f, err := os.Open(writeImage(t, t.TempDir(), "other.png", 60, 60))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := a.Assign(ctx, f); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if err := e.sys.Save(ctx, m); !errors.Is(err, attachment.ErrSave) {
		t.Fatalf("Save() = %v, want ErrSave", err)
	}

	found, err := e.sys.Find(ctx, "User", m.Record().ID)
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	fa, _ := found.Attachment("avatar")
	if fa.FileName() != "face.png" {
		t.Errorf("persisted FileName() = %q, want face.png", fa.FileName())
	}
	if ok, err := fa.Exists(ctx, attachment.Original); err != nil || !ok {
		t.Errorf("persisted original missing: %v, %v", ok, err)
	}
	if _, err := os.Stat(thumb); err != nil {
		t.Errorf("previous thumb removed after failed save: %v", err)
	}
	if !m.Dirty() {
		t.Error("model should keep the unflushed change pending")
	}

	flaky.failing = false
	if err := e.sys.Save(ctx, m); err != nil {
		t.Fatalf("retried Save() failed: %v", err)
	}
	rec, _ := e.store.Find(ctx, "User", m.Record().ID)
	if name := rec.Attachments["avatar"].FileName; name == nil || *name != "other.png" {
		t.Errorf("persisted file name after retry = %v, want other.png", name)
	}
}

func TestSaveFirstUploadFailureLeavesNoAttributes(t *testing.T) {
	e := newEnvWith(t, func(b storage.Backend) storage.Backend {
		return &flakyBackend{Backend: b, failing: true}
	})
	ctx := context.Background()

	m, err := e.sys.Create(ctx, "User")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m.Attachment("avatar")

	f, err := os.Open(writeImage(t, t.TempDir(), "face.png", 40, 40))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := a.Assign(ctx, f); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if err := e.sys.Save(ctx, m); !errors.Is(err, attachment.ErrSave) {
		t.Fatalf("Save() = %v, want ErrSave", err)
	}

	rec, err := e.store.Find(ctx, "User", m.Record().ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attachments["avatar"].Present() {
		t.Error("attributes persisted for a file that was never stored")
	}
}

func TestDetachDeletesFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, a := e.attached(t)
	thumb := a.Path("thumb")

	if err := a.Assign(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.sys.Save(ctx, m); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Errorf("thumb still stored at %s", thumb)
	}
	rec, _ := e.store.Find(ctx, "User", m.Record().ID)
	if rec.Attachments["avatar"].Present() {
		t.Error("detached attributes still persisted")
	}
}

func TestReloadDiscardsPendingChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, a := e.attached(t)

	if err := a.Assign(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if !m.Dirty() {
		t.Fatal("model should be dirty after assigning nil")
	}

	if err := e.sys.Reload(ctx, m); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if a.FileName() != "face.png" {
		t.Errorf("FileName() = %q after reload, want face.png", a.FileName())
	}
	if ok, _ := a.Exists(ctx, "thumb"); !ok {
		t.Error("thumb should still be stored")
	}
}

func TestDestroyRemovesRecordAndFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, a := e.attached(t)
	original := a.Path(attachment.Original)

	if err := e.sys.Destroy(ctx, m); err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}

	if _, err := e.sys.Find(ctx, "User", m.Record().ID); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("Find() after destroy = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Errorf("original still stored at %s", original)
	}
}

func TestList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for range 3 {
		if _, err := e.sys.Create(ctx, "User"); err != nil {
			t.Fatal(err)
		}
	}

	page, err := e.sys.List(ctx, "User", pagination.PageRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Data) != 1 {
		t.Errorf("page = total %d pages %d items %d, want 3/2/1", page.Total, page.TotalPages, len(page.Data))
	}
	if _, ok := page.Data[0].Attachments["avatar"]; !ok {
		t.Error("view is missing the avatar attachment")
	}

	if _, err := e.sys.List(ctx, "Ghost", pagination.PageRequest{Page: 1, PageSize: 2}); !errors.Is(err, records.ErrUnknownClass) {
		t.Errorf("List() = %v, want ErrUnknownClass", err)
	}
}

func TestRegistry(t *testing.T) {
	def := func(class, name string) *attachment.Definition {
		return &attachment.Definition{Name: name, ClassName: class}
	}

	reg, err := records.NewRegistry(def("User", "avatar"), def("Post", "cover"), def("User", "banner"))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	if got := reg.Classes(); len(got) != 2 || got[0] != "Post" || got[1] != "User" {
		t.Errorf("Classes() = %v, want [Post User]", got)
	}
	defs, err := reg.Definitions("User")
	if err != nil || len(defs) != 2 || defs[1].Name != "banner" {
		t.Errorf("Definitions(User) = %v, %v", defs, err)
	}

	if _, err := records.NewRegistry(def("User", "avatar"), def("User", "avatar")); !errors.Is(err, attachment.ErrInvalidDefinition) {
		t.Errorf("duplicate definition error = %v, want ErrInvalidDefinition", err)
	}
}
