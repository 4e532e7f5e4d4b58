package visualization

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// ErrUnknownColormap is returned for colormap names that are not registered
var ErrUnknownColormap = errors.New("visualization: unknown colormap")

// Segment is one breakpoint of a colour channel: approaching X from below the
// channel has value Y0, leaving X it has value Y1.
type Segment struct {
	X, Y0, Y1 float64
}

// Segmented is a colormap defined by piecewise-linear red, green and blue
// channels over [0, 1], rescaled onto [Min, Max].
type Segmented struct {
	name             string
	red, green, blue []Segment
	min, max         float64
	alpha            float64
}

// NewSegmented validates the channel breakpoints and returns a colormap over [0, 1].
func NewSegmented(name string, red, green, blue []Segment) (*Segmented, error) {
	for _, ch := range [][]Segment{red, green, blue} {
		if len(ch) < 2 {
			return nil, errors.Errorf("colormap %s: channel needs at least 2 breakpoints", name)
		}
		if ch[0].X != 0 || ch[len(ch)-1].X != 1 {
			return nil, errors.Errorf("colormap %s: breakpoints must span [0, 1]", name)
		}
		for i := 1; i < len(ch); i++ {
			if ch[i].X < ch[i-1].X {
				return nil, errors.Errorf("colormap %s: breakpoints must not decrease", name)
			}
		}
	}
	return &Segmented{name: name, red: red, green: green, blue: blue, max: 1, alpha: 1}, nil
}

// Name returns the colormap name
func (s *Segmented) Name() string { return s.name }

// At implements palette.ColorMap.
func (s *Segmented) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < s.min:
		return nil, palette.ErrUnderflow
	case v > s.max:
		return nil, palette.ErrOverflow
	}

	x := 0.0
	if s.max > s.min {
		x = (v - s.min) / (s.max - s.min)
	}
	return color.NRGBA{
		R: channel8(channelAt(s.red, x)),
		G: channel8(channelAt(s.green, x)),
		B: channel8(channelAt(s.blue, x)),
		A: channel8(s.alpha),
	}, nil
}

func (s *Segmented) Max() float64           { return s.max }
func (s *Segmented) Min() float64           { return s.min }
func (s *Segmented) SetMax(v float64)       { s.max = v }
func (s *Segmented) SetMin(v float64)       { s.min = v }
func (s *Segmented) Alpha() float64         { return s.alpha }
func (s *Segmented) SetAlpha(alpha float64) { s.alpha = alpha }

// Palette implements palette.ColorMap, sampling n colours evenly over [Min, Max].
func (s *Segmented) Palette(n int) palette.Palette {
	return sample(s, n)
}

// channelAt finds the segment holding x and interpolates from its right-hand
// value to the next breakpoint's left-hand value.
func channelAt(segs []Segment, x float64) float64 {
	last := len(segs) - 1
	if x >= segs[last].X {
		return segs[last].Y0
	}
	for i := 0; i < last; i++ {
		a, b := segs[i], segs[i+1]
		if x < a.X || x >= b.X {
			continue
		}
		if b.X == a.X {
			return b.Y1
		}
		t := (x - a.X) / (b.X - a.X)
		return a.Y1 + t*(b.Y0-a.Y1)
	}
	return segs[0].Y1
}

func channel8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

type colors []color.Color

func (c colors) Colors() []color.Color { return c }

// sample evaluates cmap at n evenly spaced values over its range.
func sample(cmap palette.ColorMap, n int) palette.Palette {
	out := make(colors, n)
	for i, v := range linspace(cmap.Min(), cmap.Max(), n) {
		c, err := cmap.At(v)
		if err != nil {
			c = color.Black
		}
		out[i] = c
	}
	return out
}

// linspace returns n evenly spaced values from lo to hi inclusive; a single
// value is lo.
func linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Colormap returns a fresh continuous colormap over [0, 1] by name.
func Colormap(name string) (palette.ColorMap, error) {
	var cmap palette.ColorMap
	switch name {
	case "jet":
		return NewSegmented("jet", jetRed, jetGreen, jetBlue)
	case "gray":
		return NewSegmented("gray", ramp, ramp, ramp)
	case "kindlmann":
		cmap = moreland.Kindlmann()
	case "blackbody":
		cmap = moreland.BlackBody()
	case "bluered":
		cmap = moreland.SmoothBlueRed()
	default:
		return nil, errors.Wrapf(ErrUnknownColormap, "%q", name)
	}
	cmap.SetMin(0)
	cmap.SetMax(1)
	return cmap, nil
}

// Discretize returns a colormap of n constant bands over n+1 evenly spaced
// breakpoints. Band k carries the colour cmap has at fraction k/(n-1) of its range.
func Discretize(cmap palette.ColorMap, n int) (*Segmented, error) {
	if n < 1 {
		return nil, errors.Errorf("discretize: need at least one colour, got %d", n)
	}

	// band colours plus the colour at the bottom of the range standing in on
	// either side of the outermost breakpoints
	fracs := linspace(0, 1, n)
	rgb := make([][3]float64, n+1)
	for i := 0; i <= n; i++ {
		f := 0.0
		if i < n {
			f = fracs[i]
		}
		c, err := cmap.At(cmap.Min() + f*(cmap.Max()-cmap.Min()))
		if err != nil {
			return nil, errors.Wrapf(err, "sample colormap at %g", f)
		}
		rgb[i] = toRGB(c)
	}
	below := rgb[n]

	indices := linspace(0, 1, n+1)
	segs := [3][]Segment{}
	for k := 0; k < 3; k++ {
		segs[k] = make([]Segment, n+1)
		for i := 0; i <= n; i++ {
			prev := below
			if i > 0 {
				prev = rgb[i-1]
			}
			segs[k][i] = Segment{X: indices[i], Y0: prev[k], Y1: rgb[i][k]}
		}
	}

	name := "colormap"
	if named, ok := cmap.(interface{ Name() string }); ok {
		name = named.Name()
	}
	return NewSegmented(fmt.Sprintf("%s_%d", name, n), segs[0], segs[1], segs[2])
}

// DiscretizeNamed is Discretize for a colormap given by name.
func DiscretizeNamed(name string, n int) (*Segmented, error) {
	cmap, err := Colormap(name)
	if err != nil {
		return nil, err
	}
	d, err := Discretize(cmap, n)
	if err != nil {
		return nil, err
	}
	d.name = fmt.Sprintf("%s_%d", name, n)
	return d, nil
}

// BandColors evaluates a discretized colormap at the centre of each of its n bands.
func BandColors(cmap palette.ColorMap, n int) ([]color.Color, error) {
	out := make([]color.Color, n)
	width := (cmap.Max() - cmap.Min()) / float64(n)
	for k := 0; k < n; k++ {
		c, err := cmap.At(cmap.Min() + (float64(k)+0.5)*width)
		if err != nil {
			return nil, errors.Wrapf(err, "band %d", k)
		}
		out[k] = c
	}
	return out, nil
}

// MinSeparation returns the smallest CIE L*a*b* distance between neighbouring
// colours; +Inf for fewer than two colours.
func MinSeparation(cs []color.Color) float64 {
	best := math.Inf(1)
	for i := 1; i < len(cs); i++ {
		a, _ := colorful.MakeColor(cs[i-1])
		b, _ := colorful.MakeColor(cs[i])
		best = math.Min(best, a.DistanceLab(b))
	}
	return best
}

func toRGB(c color.Color) [3]float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [3]float64{float64(n.R) / 255, float64(n.G) / 255, float64(n.B) / 255}
}

var ramp = []Segment{{0, 0, 0}, {1, 1, 1}}

// matplotlib's jet
var (
	jetRed = []Segment{
		{0, 0, 0}, {0.35, 0, 0}, {0.66, 1, 1}, {0.89, 1, 1}, {1, 0.5, 0.5},
	}
	jetGreen = []Segment{
		{0, 0, 0}, {0.125, 0, 0}, {0.375, 1, 1}, {0.64, 1, 1}, {0.91, 0, 0}, {1, 0, 0},
	}
	jetBlue = []Segment{
		{0, 0.5, 0.5}, {0.11, 1, 1}, {0.34, 1, 1}, {0.65, 0, 0}, {1, 0, 0},
	}
)
