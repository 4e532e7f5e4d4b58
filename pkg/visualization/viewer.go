package visualization

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"miriwcs/internal/models"
	"miriwcs/pkg/reference"
)

// DefaultRegions is the number of colours used when none is given
const DefaultRegions = 3

// Viewer renders a slice mask with one colour per slice identifier.
type Viewer struct {
	// mask holds integer slice labels, 0 outside any slice
	mask *reference.Plane

	// Colormap names the continuous map the bands are drawn from
	Colormap string

	// Width and Height of the rendered figure
	Width  vg.Length
	Height vg.Length

	// BarWidth is the horizontal space reserved for the colour bar
	BarWidth vg.Length
}

// NewViewer creates a viewer for the given mask
func NewViewer(mask *reference.Plane) *Viewer {
	return &Viewer{
		mask:     mask,
		Colormap: "jet",
		Width:    18 * vg.Centimeter,
		Height:   14 * vg.Centimeter,
		BarWidth: 3 * vg.Centimeter,
	}
}

// maskGrid adapts a plane to plotter.GridXYZ with columns along X
type maskGrid struct {
	p *reference.Plane
}

func (g maskGrid) Dims() (c, r int)   { return g.p.Cols, g.p.Rows }
func (g maskGrid) Z(c, r int) float64 { return g.p.At(r, c) }
func (g maskGrid) X(c int) float64    { return float64(c) }
func (g maskGrid) Y(r int) float64    { return float64(r) }

// Figure draws the mask as a heatmap with nRegions discrete colours next to a
// colour bar ticked at every integer label. Labels outside [0, nRegions-1]
// take the colour of the nearest band.
func (v *Viewer) Figure(nRegions int) (*vgimg.Canvas, error) {
	if v.mask == nil || v.mask.Rows == 0 || v.mask.Cols == 0 {
		return nil, errors.New("mask is empty")
	}
	cmap, err := DiscretizeNamed(v.Colormap, nRegions)
	if err != nil {
		return nil, err
	}
	cmap.SetMin(-0.5)
	cmap.SetMax(float64(nRegions) - 0.5)

	pal := cmap.Palette(nRegions)
	bands := pal.Colors()
	heat := plotter.NewHeatMap(maskGrid{v.mask}, pal)
	heat.Min = 0
	heat.Max = math.Max(1, float64(nRegions-1))
	heat.Underflow = bands[0]
	heat.Overflow = bands[len(bands)-1]
	heat.NaN = color.Transparent
	heat.Rasterized = true

	p := plot.New()
	p.Title.Text = "Slice mask"
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"
	p.Add(heat)

	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: cmap, Vertical: true})
	bar.HideX()
	ticks := make(plot.ConstantTicks, nRegions)
	for k := range ticks {
		ticks[k] = plot.Tick{Value: float64(k), Label: strconv.Itoa(k)}
	}
	bar.Y.Tick.Marker = ticks
	bar.Y.Label.Text = "slice"

	img := vgimg.New(v.Width, v.Height)
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, -v.BarWidth, 0, 0))
	bar.Draw(draw.Crop(dc, v.Width-v.BarWidth, 0, 0, 0))
	return img, nil
}

// Show renders the figure and writes it as PNG to path
func (v *Viewer) Show(nRegions int, path string) error {
	img, err := v.Figure(nRegions)
	if err != nil {
		return errors.Wrap(err, "draw mask figure")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create figure file")
	}
	defer f.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return errors.Wrap(err, "encode figure")
	}
	return f.Close()
}

// Show displays mask with nRegions colours and writes the figure to path.
func Show(mask *reference.Plane, nRegions int, path string) error {
	return NewViewer(mask).Show(nRegions, path)
}

// ExtractRegion returns the mask pixels inside b as an image, one pixel per
// sample, coloured like Figure.
func (v *Viewer) ExtractRegion(b models.Bounds, nRegions int) (image.Image, error) {
	if b.Empty() || b.RowMin < 0 || b.ColMin < 0 || b.RowMax > v.mask.Rows || b.ColMax > v.mask.Cols {
		return nil, errors.Errorf("region %s outside %dx%d mask", b, v.mask.Rows, v.mask.Cols)
	}
	cmap, err := DiscretizeNamed(v.Colormap, nRegions)
	if err != nil {
		return nil, err
	}
	bands, err := BandColors(cmap, nRegions)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, b.Cols(), b.Rows()))
	for r := b.RowMin; r < b.RowMax; r++ {
		for c := b.ColMin; c < b.ColMax; c++ {
			label := v.mask.At(r, c)
			if math.IsNaN(label) {
				continue
			}
			k := int(math.Max(0, math.Min(float64(nRegions-1), math.Round(label))))
			img.Set(c-b.ColMin, r-b.RowMin, bands[k])
		}
	}
	return img, nil
}

// SaveMask writes the whole mask as a PNG image with one pixel per sample
func (v *Viewer) SaveMask(nRegions int, path string) error {
	img, err := v.ExtractRegion(models.Bounds{RowMax: v.mask.Rows, ColMax: v.mask.Cols}, nRegions)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create mask image")
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return errors.Wrap(err, "encode mask image")
	}
	return f.Close()
}
