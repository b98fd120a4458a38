// Package geometry parses and evaluates ImageMagick-style size specifications
// such as "100x50#", "x50" or "300x300>" and computes the resize and crop
// operations needed to move an image from one geometry to another.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidGeometry indicates a specification with no usable dimension.
var ErrInvalidGeometry = errors.New("geometry: invalid geometry")

// Modifier controls how a target geometry is applied to an image.
type Modifier int

// Modifier values. Pad is the absent modifier: the image is scaled to fit
// within the box while preserving its aspect ratio.
const (
	Pad Modifier = iota
	Crop
	OnlyShrink
	OnlyEnlarge
	FixedAspect
)

// String returns the modifier's specification suffix.
func (m Modifier) String() string {
	switch m {
	case Crop:
		return "#"
	case OnlyShrink:
		return ">"
	case OnlyEnlarge:
		return "<"
	case FixedAspect:
		return "!"
	default:
		return ""
	}
}

func parseModifier(s string) Modifier {
	switch s {
	case "#":
		return Crop
	case ">":
		return OnlyShrink
	case "<":
		return OnlyEnlarge
	case "!":
		return FixedAspect
	default:
		return Pad
	}
}

var pattern = regexp.MustCompile(`^(\d*)(?:x(\d*))?([#><!]?)$`)

// Geometry is an immutable width/height pair with a modifier.
// A zero dimension means the dimension is unspecified.
// The zero Geometry is the "no resize" geometry.
type Geometry struct {
	Width    int
	Height   int
	Modifier Modifier
}

// Parse parses a specification of the form WIDTHxHEIGHT[MODIFIER].
// Either dimension may be omitted, but not both.
func Parse(spec string) (Geometry, error) {
	s := strings.TrimSpace(spec)
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, spec)
	}

	width, err := parseDimension(m[1])
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, spec)
	}
	height, err := parseDimension(m[2])
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, spec)
	}

	if width == 0 && height == 0 {
		return Geometry{}, fmt.Errorf("%w: %q has no positive dimension", ErrInvalidGeometry, spec)
	}

	return Geometry{
		Width:    width,
		Height:   height,
		Modifier: parseModifier(m[3]),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(spec string) Geometry {
	g, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return g
}

func parseDimension(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative dimension %d", n)
	}
	return n, nil
}

// IsEmpty reports whether neither dimension is specified.
func (g Geometry) IsEmpty() bool {
	return g.Width == 0 && g.Height == 0
}

// String returns the canonical specification.
func (g Geometry) String() string {
	var b strings.Builder
	if g.Width > 0 {
		b.WriteString(strconv.Itoa(g.Width))
	}
	if g.Height > 0 {
		b.WriteString("x")
		b.WriteString(strconv.Itoa(g.Height))
	}
	b.WriteString(g.Modifier.String())
	return b.String()
}

// Square reports whether both dimensions are equal.
func (g Geometry) Square() bool {
	return g.Width == g.Height
}

// Horizontal reports whether the geometry is wider than it is tall.
func (g Geometry) Horizontal() bool {
	return g.Height < g.Width
}

// Vertical reports whether the geometry is taller than it is wide.
func (g Geometry) Vertical() bool {
	return g.Height > g.Width
}

// Rect is a crop rectangle in pixels.
type Rect struct {
	Width   int
	Height  int
	XOffset int
	YOffset int
}

// String formats the rectangle as WxH+X+Y.
func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.XOffset, r.YOffset)
}

// Transformation describes the resize (and optional crop) moving an image
// from its current geometry to a target geometry.
type Transformation struct {
	// Scale is the argument for the resize operation.
	Scale string
	// Crop is set only for the crop modifier.
	Crop *Rect
	// Noop is true when the target leaves the image untouched.
	Noop bool
}

// TransformationFor computes the transformation from current to target.
// For the crop modifier the image is scaled along the dominant ratio and
// then center-cropped to exactly the target dimensions.
func TransformationFor(current, target Geometry) Transformation {
	if target.IsEmpty() {
		return Transformation{Noop: true}
	}

	if target.Modifier == Crop {
		if target.Width > 0 && target.Height > 0 && current.Width > 0 && current.Height > 0 {
			return cropTransformation(current, target)
		}
		// Without both sides known there is nothing to center on; fit instead.
		return Transformation{Scale: Geometry{Width: target.Width, Height: target.Height}.String()}
	}

	if current.Width > 0 && current.Height > 0 && !resizes(current, target) {
		return Transformation{Scale: target.String(), Noop: true}
	}

	return Transformation{Scale: target.String()}
}

func cropTransformation(current, target Geometry) Transformation {
	rw := float64(target.Width) / float64(current.Width)
	rh := float64(target.Height) / float64(current.Height)

	rect := &Rect{Width: target.Width, Height: target.Height}

	if rh <= rw {
		scaled := float64(current.Height) * rw
		rect.YOffset = centerOffset(scaled, target.Height)
		return Transformation{Scale: fmt.Sprintf("%dx", target.Width), Crop: rect}
	}

	scaled := float64(current.Width) * rh
	rect.XOffset = centerOffset(scaled, target.Width)
	return Transformation{Scale: fmt.Sprintf("x%d", target.Height), Crop: rect}
}

func centerOffset(scaled float64, target int) int {
	return max(0, int(math.Round((scaled-float64(target))/2)))
}

// resizes reports whether applying target to current changes the image.
func resizes(current, target Geometry) bool {
	switch target.Modifier {
	case OnlyShrink:
		return (target.Width > 0 && current.Width > target.Width) ||
			(target.Height > 0 && current.Height > target.Height)
	case OnlyEnlarge:
		return (target.Width == 0 || current.Width < target.Width) &&
			(target.Height == 0 || current.Height < target.Height)
	default:
		return true
	}
}

// Fit returns the dimensions produced by resizing an image of the current
// geometry to target, rounding the way ImageMagick does.
func Fit(current, target Geometry) Geometry {
	if target.IsEmpty() || current.Width == 0 || current.Height == 0 {
		return Geometry{Width: current.Width, Height: current.Height}
	}

	t := TransformationFor(current, target)
	if t.Noop {
		return Geometry{Width: current.Width, Height: current.Height}
	}
	if t.Crop != nil {
		return Geometry{Width: t.Crop.Width, Height: t.Crop.Height}
	}

	if target.Modifier == FixedAspect && target.Width > 0 && target.Height > 0 {
		return Geometry{Width: target.Width, Height: target.Height}
	}

	return scaleWithin(current, target)
}

func scaleWithin(current, target Geometry) Geometry {
	cw, ch := float64(current.Width), float64(current.Height)

	var scale float64
	switch {
	case target.Width > 0 && target.Height > 0:
		scale = math.Min(float64(target.Width)/cw, float64(target.Height)/ch)
	case target.Width > 0:
		scale = float64(target.Width) / cw
	default:
		scale = float64(target.Height) / ch
	}

	return Geometry{
		Width:  max(1, int(math.Round(cw*scale))),
		Height: max(1, int(math.Round(ch*scale))),
	}
}
