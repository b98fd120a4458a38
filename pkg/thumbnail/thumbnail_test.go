package thumbnail_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kirill555101/paperclip/pkg/geometry"
	"github.com/kirill555101/paperclip/pkg/thumbnail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRunner struct {
	geometry string
	kind     string
	convert  thumbnail.Result
	calls    [][]string
}

func (f *fakeRunner) Run(ctx context.Context, argv []string) (thumbnail.Result, error) {
	f.calls = append(f.calls, argv)

	switch argv[0] {
	case "identify":
		if slices.Contains(argv, "%wx%h") {
			if f.geometry == "" {
				return thumbnail.Result{ExitCode: 1, Stderr: "identify: improper image header"}, nil
			}
			return thumbnail.Result{Stdout: f.geometry + "\n"}, nil
		}
		return thumbnail.Result{Stdout: f.kind}, nil
	case "convert":
		if f.convert.ExitCode == 0 && f.convert.Stderr == "" {
			if err := os.WriteFile(argv[len(argv)-1], []byte("processed"), 0644); err != nil {
				return thumbnail.Result{}, err
			}
		}
		return f.convert, nil
	}
	return thumbnail.Result{ExitCode: 127}, nil
}

func (f *fakeRunner) identifyCalls() int {
	n := 0
	for _, c := range f.calls {
		if c[0] == "identify" {
			n++
		}
	}
	return n
}

func sourceFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("source"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommand_Crop(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", kind: "PNG\nPaletteAlpha"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	th := p.New("/src/5k.png", thumbnail.Options{
		Geometry:       geometry.MustParse("100x50#"),
		ConvertOptions: "-strip -depth 8",
		Whiny:          true,
	})

	got, err := th.Command(context.Background(), "/tmp/out.png")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	want := []string{
		"convert", "/src/5k.png[0]", "-auto-orient",
		"-resize", "x50",
		"-crop", "100x50+114+0", "+repage",
		"-strip", "-depth", "8",
		"/tmp/out.png",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Command() = %v\nwant %v", got, want)
	}
}

func TestCommand_ConvertOptionsLast(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", kind: "JPEG\nTrueColor"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	th := p.New("/src/a.jpg", thumbnail.Options{
		Geometry:       geometry.MustParse("300x300>"),
		ConvertOptions: "-strip -depth 8",
	})

	got, err := th.Command(context.Background(), "/tmp/out.jpg")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	tail := strings.Join(got[len(got)-4:], " ")
	if tail != "-strip -depth 8 /tmp/out.jpg" {
		t.Errorf("command tail = %q", tail)
	}
}

func TestCommand_GammaForPalettedPNG(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", kind: "PNG\nPalette"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	got, err := p.New("/src/p.png", thumbnail.Options{Geometry: geometry.MustParse("100x50#")}).
		Command(context.Background(), "/tmp/out.png")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	joined := strings.Join(got, " ")
	want := "-auto-orient -gamma 0.454545 -resize x50 -crop 100x50+114+0 +repage -gamma 2.2 /tmp/out.png"
	if !strings.HasSuffix(joined, want) {
		t.Errorf("Command() = %q, want suffix %q", joined, want)
	}
}

func TestCommand_Noop(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", kind: "PNG\nPalette"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	got, err := p.New("/src/a.png", thumbnail.Options{Geometry: geometry.MustParse("600x600>")}).
		Command(context.Background(), "/tmp/out.png")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	if slices.Contains(got, "-resize") || slices.Contains(got, "-gamma") {
		t.Errorf("Command() = %v, want no resize", got)
	}
}

func TestCommand_EmptyGeometrySkipsIdentify(t *testing.T) {
	runner := &fakeRunner{}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	got, err := p.New("/src/a.png", thumbnail.Options{Whiny: true}).
		Command(context.Background(), "/tmp/out.png")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	want := []string{"convert", "/src/a.png[0]", "-auto-orient", "/tmp/out.png"}
	if !slices.Equal(got, want) {
		t.Errorf("Command() = %v, want %v", got, want)
	}
	if runner.identifyCalls() != 0 {
		t.Errorf("identify called %d times, want 0", runner.identifyCalls())
	}
}

func TestCommand_CustomBinaries(t *testing.T) {
	runner := &fakeRunner{}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{Convert: "magick convert"}, testLogger())

	got, err := p.New("/src/a.png", thumbnail.Options{}).Command(context.Background(), "/tmp/out.png")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if got[0] != "magick" || got[1] != "convert" {
		t.Errorf("Command() = %v, want magick convert prefix", got)
	}
}

func TestCurrentGeometry(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())

	g, err := p.Identify(context.Background(), "/src/a.png")
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if g.Width != 434 || g.Height != 66 {
		t.Errorf("Identify() = %v, want 434x66", g)
	}

	last := runner.calls[len(runner.calls)-1]
	want := []string{"identify", "-format", "%wx%h", "/src/a.png[0]"}
	if !slices.Equal(last, want) {
		t.Errorf("identify argv = %v, want %v", last, want)
	}
}

func TestCurrentGeometry_Unidentifiable(t *testing.T) {
	runner := &fakeRunner{}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{}, testLogger())
	ctx := context.Background()

	_, err := p.New("/src/a.txt", thumbnail.Options{Whiny: true}).CurrentGeometry(ctx)
	if !errors.Is(err, thumbnail.ErrUnidentifiable) {
		t.Errorf("whiny CurrentGeometry() error = %v, want ErrUnidentifiable", err)
	}

	g, err := p.New("/src/a.txt", thumbnail.Options{}).CurrentGeometry(ctx)
	if err != nil {
		t.Errorf("non-whiny CurrentGeometry() error = %v", err)
	}
	if !g.IsEmpty() {
		t.Errorf("non-whiny CurrentGeometry() = %v, want empty", g)
	}
}

func TestMake_Success(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", kind: "PNG\nPaletteAlpha"}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{TempDir: t.TempDir()}, testLogger())

	out, err := p.Make(context.Background(), sourceFile(t, "5k.png"), thumbnail.Options{
		Geometry: geometry.MustParse("32x32#"),
		Format:   "gif",
		Whiny:    true,
	})
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	defer out.Discard()

	if filepath.Ext(out.Path()) != ".gif" {
		t.Errorf("output path = %q, want .gif", out.Path())
	}
	data, _ := os.ReadFile(out.Path())
	if string(data) != "processed" {
		t.Errorf("output = %q, want processed", data)
	}
}

func TestMake_FailureWhiny(t *testing.T) {
	runner := &fakeRunner{
		geometry: "434x66",
		convert:  thumbnail.Result{ExitCode: 1, Stderr: "convert: unrecognized option `-this-aint-no-option'"},
	}
	dir := t.TempDir()
	p := thumbnail.NewProcessor(runner, thumbnail.Config{TempDir: dir}, testLogger())

	_, err := p.Make(context.Background(), sourceFile(t, "5k.png"), thumbnail.Options{
		Geometry:       geometry.MustParse("100x100"),
		ConvertOptions: "-this-aint-no-option",
		Whiny:          true,
	})
	if !errors.Is(err, thumbnail.ErrProcess) {
		t.Fatalf("Make() error = %v, want ErrProcess", err)
	}

	var perr *thumbnail.ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("Make() error is not *ProcessError")
	}
	if !strings.Contains(perr.Stderr, "unrecognized option") {
		t.Errorf("ProcessError.Stderr = %q", perr.Stderr)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files, want 0", len(entries))
	}
}

func TestMake_StderrIsFailure(t *testing.T) {
	runner := &fakeRunner{convert: thumbnail.Result{Stderr: "convert: warning"}}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{TempDir: t.TempDir()}, testLogger())

	_, err := p.Make(context.Background(), sourceFile(t, "a.png"), thumbnail.Options{Whiny: true})
	if !errors.Is(err, thumbnail.ErrProcess) {
		t.Errorf("Make() error = %v, want ErrProcess", err)
	}
}

func TestMake_FailureNotWhiny(t *testing.T) {
	runner := &fakeRunner{geometry: "434x66", convert: thumbnail.Result{ExitCode: 1}}
	p := thumbnail.NewProcessor(runner, thumbnail.Config{TempDir: t.TempDir()}, testLogger())

	out, err := p.Make(context.Background(), sourceFile(t, "5k.png"), thumbnail.Options{
		Geometry: geometry.MustParse("100x100"),
	})
	if err != nil {
		t.Fatalf("Make() error = %v, want fallback", err)
	}
	defer out.Discard()

	data, _ := os.ReadFile(out.Path())
	if string(data) != "source" {
		t.Errorf("fallback output = %q, want source copy", data)
	}
}

func TestProcessError_Message(t *testing.T) {
	err := &thumbnail.ProcessError{
		Command:  []string{"convert", "a.png", "b.png"},
		Stderr:   "boom\n",
		ExitCode: 2,
	}

	msg := err.Error()
	for _, want := range []string{"convert a.png b.png", "exited 2", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
