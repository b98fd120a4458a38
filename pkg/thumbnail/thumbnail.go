// Package thumbnail derives styled images from a source file by shelling out
// to ImageMagick's identify and convert (or an in-process stand-in).
//
// A Thumbnail measures its source, computes the resize and crop needed to
// reach the target geometry, and writes the result to a caller-owned
// temporary file.
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kirill555101/paperclip/pkg/geometry"
	"github.com/kirill555101/paperclip/pkg/tempfile"
)

// Options describes one style's processing.
type Options struct {
	// Geometry is the target size. The empty geometry skips resizing.
	Geometry geometry.Geometry
	// Format is the output extension without the dot ("gif", "png").
	// Empty keeps the source's format.
	Format string
	// ConvertOptions are extra convert arguments, split on whitespace and
	// appended after the resize and crop.
	ConvertOptions string
	// Whiny turns processing failures into errors instead of falling back
	// to an unprocessed copy of the source.
	Whiny bool
}

// Config names the commands the Processor invokes.
type Config struct {
	Convert  string
	Identify string
	TempDir  string
	Timeout  time.Duration
}

// Processor runs thumbnails through a CommandRunner.
type Processor struct {
	runner   CommandRunner
	convert  []string
	identify []string
	tempDir  string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProcessor creates a Processor. Empty command names default to
// "convert" and "identify"; a command may carry leading arguments such as
// "magick convert".
func NewProcessor(runner CommandRunner, cfg Config, logger *slog.Logger) *Processor {
	convert := strings.Fields(cfg.Convert)
	if len(convert) == 0 {
		convert = []string{"convert"}
	}
	identify := strings.Fields(cfg.Identify)
	if len(identify) == 0 {
		identify = []string{"identify"}
	}

	return &Processor{
		runner:   runner,
		convert:  convert,
		identify: identify,
		tempDir:  cfg.TempDir,
		timeout:  cfg.Timeout,
		logger:   logger.With("system", "thumbnail"),
	}
}

// New returns a Thumbnail of source.
func (p *Processor) New(source string, opts Options) *Thumbnail {
	return &Thumbnail{source: source, opts: opts, p: p}
}

// Make processes source and returns the output file. The caller owns the
// file and must Discard it.
func (p *Processor) Make(ctx context.Context, source string, opts Options) (*tempfile.File, error) {
	return p.New(source, opts).Make(ctx)
}

// Identify returns the pixel dimensions of source.
func (p *Processor) Identify(ctx context.Context, source string) (geometry.Geometry, error) {
	return p.New(source, Options{Whiny: true}).CurrentGeometry(ctx)
}

func (p *Processor) run(ctx context.Context, argv []string) (Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.runner.Run(ctx, argv)
}

// Thumbnail is a single processing request.
type Thumbnail struct {
	source string
	opts   Options
	p      *Processor
}

// Source returns the path of the input file.
func (t *Thumbnail) Source() string {
	return t.source
}

// Options returns the processing options.
func (t *Thumbnail) Options() Options {
	return t.opts
}

// CurrentGeometry measures the first frame of the source. When identify
// fails a whiny thumbnail returns ErrUnidentifiable; otherwise the empty
// geometry is returned.
func (t *Thumbnail) CurrentGeometry(ctx context.Context) (geometry.Geometry, error) {
	argv := append(slices.Clone(t.p.identify), "-format", "%wx%h", t.source+"[0]")

	res, err := t.p.run(ctx, argv)
	if err == nil && res.ExitCode == 0 {
		if g, perr := geometry.Parse(strings.TrimSpace(res.Stdout)); perr == nil {
			return g, nil
		}
	}

	if t.opts.Whiny {
		if err != nil {
			return geometry.Geometry{}, fmt.Errorf("%w: %s: %w", ErrUnidentifiable, t.source, err)
		}
		return geometry.Geometry{}, fmt.Errorf("%w: %s: %s", ErrUnidentifiable, t.source, strings.TrimSpace(res.Stderr))
	}
	return geometry.Geometry{}, nil
}

// Command builds the convert argv that writes to dst.
func (t *Thumbnail) Command(ctx context.Context, dst string) ([]string, error) {
	argv := append(slices.Clone(t.p.convert), t.source+"[0]", "-auto-orient")

	if !t.opts.Geometry.IsEmpty() {
		current, err := t.CurrentGeometry(ctx)
		if err != nil {
			return nil, err
		}

		tr := geometry.TransformationFor(current, t.opts.Geometry)
		if !tr.Noop {
			gamma := t.palettedPNG(ctx)
			if gamma {
				argv = append(argv, "-gamma", "0.454545")
			}
			argv = append(argv, "-resize", tr.Scale)
			if tr.Crop != nil {
				argv = append(argv, "-crop", tr.Crop.String(), "+repage")
			}
			if gamma {
				argv = append(argv, "-gamma", "2.2")
			}
		}
	}

	argv = append(argv, strings.Fields(t.opts.ConvertOptions)...)
	return append(argv, dst), nil
}

// Make runs convert and returns the processed file. A non-zero exit or any
// diagnostic output is a failure: whiny thumbnails return a *ProcessError,
// others log it and return a copy of the source.
func (t *Thumbnail) Make(ctx context.Context) (*tempfile.File, error) {
	dst, err := tempfile.New(t.p.tempDir, t.extension())
	if err != nil {
		return nil, err
	}

	argv, err := t.Command(ctx, dst.Path())
	if err != nil {
		dst.Discard()
		return nil, err
	}

	res, runErr := t.p.run(ctx, argv)
	if runErr == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stderr) == "" {
		return dst, nil
	}
	dst.Discard()

	perr := &ProcessError{
		Command:  argv,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Err:      runErr,
	}

	if t.opts.Whiny {
		return nil, perr
	}

	t.p.logger.Warn("processing failed, keeping unprocessed source",
		"source", t.source,
		"error", perr,
	)
	return tempfile.Copy(t.p.tempDir, t.source)
}

func (t *Thumbnail) extension() string {
	if t.opts.Format != "" {
		return "." + strings.TrimPrefix(t.opts.Format, ".")
	}
	return filepath.Ext(t.source)
}

// palettedPNG reports whether the source is a PNG with a palette and no
// alpha channel. Such images are resized in linear light. Probe failures
// count as false.
func (t *Thumbnail) palettedPNG(ctx context.Context) bool {
	argv := append(slices.Clone(t.p.identify), "-format", `%m\n%[type]`, t.source+"[0]")

	res, err := t.p.run(ctx, argv)
	if err != nil || res.ExitCode != 0 {
		return false
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) < 2 {
		return false
	}
	return strings.TrimSpace(lines[0]) == "PNG" && strings.TrimSpace(lines[1]) == "Palette"
}
