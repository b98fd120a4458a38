package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/kirill555101/paperclip/pkg/geometry"
)

// NativeRunner answers the identify and convert subset used by Thumbnail
// in-process with disintegration/imaging, for hosts without ImageMagick.
// Options it does not understand fail the way convert does.
type NativeRunner struct{}

// Run dispatches on the base name of argv[0]. A leading "magick" is skipped.
func (n NativeRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	name := filepath.Base(argv[0])
	args := argv[1:]
	if name == "magick" && len(args) > 0 && (args[0] == "identify" || args[0] == "convert") {
		name, args = args[0], args[1:]
	}

	switch name {
	case "identify":
		return n.identify(args), nil
	case "convert", "magick":
		return n.convert(args), nil
	default:
		return Result{ExitCode: 127, Stderr: fmt.Sprintf("%s: command not found", name)}, nil
	}
}

func (n NativeRunner) identify(args []string) Result {
	format := "%m %wx%h"
	var source string

	for i := 0; i < len(args); i++ {
		if args[i] == "-format" && i+1 < len(args) {
			format = args[i+1]
			i++
			continue
		}
		source = args[i]
	}
	if source == "" {
		return Result{ExitCode: 1, Stderr: "identify: no image specified"}
	}

	path := stripFrame(source)
	f, err := os.Open(path)
	if err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("identify: unable to open image `%s': %v", path, err)}
	}
	defer f.Close()

	cfg, kind, err := image.DecodeConfig(f)
	if err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("identify: no decode delegate for this image format `%s'", path)}
	}

	model := cfg.ColorModel
	if _, ok := model.(color.Palette); ok && strings.Contains(format, "%[type]") {
		// DecodeConfig stops before the transparency chunk.
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				model = img.ColorModel()
			}
		}
	}

	out := strings.NewReplacer(
		`\n`, "\n",
		"%w", strconv.Itoa(cfg.Width),
		"%h", strconv.Itoa(cfg.Height),
		"%m", strings.ToUpper(kind),
		"%[type]", colorType(model),
	).Replace(format)

	return Result{Stdout: out}
}

func colorType(model color.Model) string {
	if p, ok := model.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a < 0xffff {
				return "PaletteAlpha"
			}
		}
		return "Palette"
	}

	switch model {
	case color.GrayModel, color.Gray16Model:
		return "Grayscale"
	case color.NRGBAModel, color.NRGBA64Model:
		return "TrueColorAlpha"
	default:
		return "TrueColor"
	}
}

var cropPattern = regexp.MustCompile(`^(\d+)x(\d+)\+(\d+)\+(\d+)$`)

func (n NativeRunner) convert(args []string) Result {
	if len(args) < 2 {
		return Result{ExitCode: 1, Stderr: "convert: missing an image filename"}
	}

	source := stripFrame(args[0])
	dest := args[len(args)-1]
	ops := args[1 : len(args)-1]

	decode := []imaging.DecodeOption{}
	for _, op := range ops {
		if op == "-auto-orient" {
			decode = append(decode, imaging.AutoOrientation(true))
		}
	}

	img, err := imaging.Open(source, decode...)
	if err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: unable to open image `%s': %v", source, err)}
	}

	var encode []imaging.EncodeOption

	for i := 0; i < len(ops); i++ {
		op := ops[i]
		value := func() (string, bool) {
			if i+1 >= len(ops) {
				return "", false
			}
			i++
			return ops[i], true
		}

		switch op {
		case "-auto-orient", "+repage", "-strip", "-flatten":
		case "-resize":
			v, ok := value()
			if !ok {
				return missingArgument(op)
			}
			target, err := geometry.Parse(v)
			if err != nil {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: invalid argument for option `%s': %s", op, v)}
			}
			b := img.Bounds()
			current := geometry.Geometry{Width: b.Dx(), Height: b.Dy()}
			size := geometry.Fit(current, target)
			if size.Width != current.Width || size.Height != current.Height {
				img = imaging.Resize(img, size.Width, size.Height, imaging.Lanczos)
			}
		case "-crop":
			v, ok := value()
			if !ok {
				return missingArgument(op)
			}
			m := cropPattern.FindStringSubmatch(v)
			if m == nil {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: invalid argument for option `%s': %s", op, v)}
			}
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			x, _ := strconv.Atoi(m[3])
			y, _ := strconv.Atoi(m[4])
			origin := img.Bounds().Min
			img = imaging.Crop(img, image.Rect(origin.X+x, origin.Y+y, origin.X+x+w, origin.Y+y+h))
		case "-gamma":
			v, ok := value()
			if !ok {
				return missingArgument(op)
			}
			g, err := strconv.ParseFloat(v, 64)
			if err != nil || g <= 0 {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: invalid argument for option `%s': %s", op, v)}
			}
			img = imaging.AdjustGamma(img, g)
		case "-quality":
			v, ok := value()
			if !ok {
				return missingArgument(op)
			}
			q, err := strconv.Atoi(v)
			if err != nil {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: invalid argument for option `%s': %s", op, v)}
			}
			encode = append(encode, imaging.JPEGQuality(q))
		case "-depth", "-density", "-colorspace":
			if _, ok := value(); !ok {
				return missingArgument(op)
			}
		default:
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: unrecognized option `%s'", op)}
		}
	}

	if err := save(img, source, dest, encode); err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: unable to write image `%s': %v", dest, err)}
	}

	return Result{}
}

func save(img image.Image, source, dest string, opts []imaging.EncodeOption) error {
	if i := strings.Index(dest, ":"); i > 0 && !strings.ContainsAny(dest[:i], `/\`) {
		dest = dest[i+1:]
	}

	format, err := imaging.FormatFromFilename(dest)
	if err != nil {
		format, err = imaging.FormatFromFilename(source)
		if err != nil {
			return err
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, format, opts...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func missingArgument(op string) Result {
	return Result{ExitCode: 1, Stderr: fmt.Sprintf("convert: argument requires an argument `%s'", op)}
}

func stripFrame(path string) string {
	if strings.HasSuffix(path, "]") {
		if i := strings.LastIndex(path, "["); i > 0 {
			return path[:i]
		}
	}
	return path
}
