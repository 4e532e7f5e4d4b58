// Package reference reads the MIRI distortion/cube calibration product: a
// multi-extension FITS file holding a wavelength plane, an along-slice angle
// plane, a slice-assignment mask and the across-slice offset parameters of each
// channel in its primary header.
package reference

import (
	"io"
	"os"
	"sort"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"miriwcs/internal/models"
)

// DefaultPath is the calibration product the models are built from when no
// other file is configured.
const DefaultPath = "MIRI_FM_LW_A_D2C_01.00.00.fits"

// Extensions holds the HDU positions of each part of the product
type Extensions struct {
	Header     int `yaml:"header"`
	Wavelength int `yaml:"wavelength"`
	Angle      int `yaml:"angle"`
	SliceMask  int `yaml:"sliceMask"`
}

// DefaultExtensions returns the layout of the delivered calibration products.
func DefaultExtensions() Extensions {
	return Extensions{Header: 0, Wavelength: 1, Angle: 2, SliceMask: 3}
}

// Reference is a calibration product loaded into memory
type Reference struct {
	// Mask assigns a slice label to each detector pixel; 0 is background
	Mask *Plane

	// Wavelength holds the wavelength of each detector pixel
	Wavelength *Plane

	// Angle holds the along-slice angle (alpha) of each detector pixel
	Angle *Plane

	// Header holds every numeric primary header value
	Header map[string]float64
}

// Load opens the calibration product at path and reads the planes named by ext.
func Load(path string, ext Extensions) (*Reference, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open reference file")
	}
	defer r.Close()

	ref, err := Decode(r, ext)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ref, nil
}

// Decode reads a calibration product from r.
func Decode(r io.Reader, ext Extensions) (*Reference, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse FITS")
	}
	defer f.Close()

	nhdu := len(f.HDUs())
	for _, idx := range []int{ext.Header, ext.Wavelength, ext.Angle, ext.SliceMask} {
		if idx < 0 || idx >= nhdu {
			return nil, errors.Errorf("extension %d not present (file has %d HDUs)", idx, nhdu)
		}
	}

	ref := &Reference{Header: headerValues(f.HDU(ext.Header).Header())}

	if ref.Wavelength, err = readPlane(f.HDU(ext.Wavelength)); err != nil {
		return nil, errors.Wrap(err, "wavelength plane")
	}
	if ref.Angle, err = readPlane(f.HDU(ext.Angle)); err != nil {
		return nil, errors.Wrap(err, "angle plane")
	}
	if ref.Mask, err = readPlane(f.HDU(ext.SliceMask)); err != nil {
		return nil, errors.Wrap(err, "slice mask")
	}

	if ref.Mask.Rows != ref.Wavelength.Rows || ref.Mask.Cols != ref.Wavelength.Cols ||
		ref.Mask.Rows != ref.Angle.Rows || ref.Mask.Cols != ref.Angle.Cols {
		return nil, errors.Errorf("plane shapes differ: mask %dx%d, wavelength %dx%d, angle %dx%d",
			ref.Mask.Rows, ref.Mask.Cols, ref.Wavelength.Rows, ref.Wavelength.Cols,
			ref.Angle.Rows, ref.Angle.Cols)
	}

	return ref, nil
}

// Offset returns the across-slice offset intercept and slope of a channel.
func (r *Reference) Offset(ch models.Channel) (intercept, slope float64, err error) {
	intercept, ok := r.Header[ch.InterceptKey]
	if !ok {
		return 0, 0, errors.Errorf("%s: header key %q missing", ch, ch.InterceptKey)
	}
	slope, ok = r.Header[ch.SlopeKey]
	if !ok {
		return 0, 0, errors.Errorf("%s: header key %q missing", ch, ch.SlopeKey)
	}
	return intercept, slope, nil
}

// ChannelMask returns the part of the slice mask that belongs to ch.
func (r *Reference) ChannelMask(ch models.Channel) *Plane {
	start, end := ch.ColumnRange(r.Mask.Cols)
	return r.Mask.Columns(start, end)
}

// CombinedMask re-labels the slice mask so that every channel's slices carry
// their global identifier. Pixels outside every channel's columns are left at 0.
func CombinedMask(ref *Reference, channels []models.Channel) *Plane {
	out := NewPlane(ref.Mask.Rows, ref.Mask.Cols)
	for _, ch := range channels {
		start, end := ch.ColumnRange(ref.Mask.Cols)
		for r := 0; r < ref.Mask.Rows; r++ {
			for c := start; c < end; c++ {
				v := ref.Mask.At(r, c)
				if v > 0 {
					v += float64(ch.IDOffset)
				}
				out.Set(r, c, v)
			}
		}
	}
	return out
}

func headerValues(hdr *fitsio.Header) map[string]float64 {
	values := make(map[string]float64)
	for _, key := range hdr.Keys() {
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		if v, ok := numeric(card.Value); ok {
			values[key] = v
		}
	}
	return values
}

func numeric(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// readPlane reads a 2-D image HDU of any BITPIX into float64, applying
// BSCALE/BZERO when present.
func readPlane(hdu fitsio.HDU) (*Plane, error) {
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, errors.Errorf("HDU %q is not an image", hdu.Name())
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, errors.Errorf("expected a 2-D image, got %d axes", len(axes))
	}
	plane := NewPlane(axes[1], axes[0])
	n := len(plane.Data)

	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		buf := make([]uint8, n)
		if err := img.Read(&buf); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
		for i, v := range buf {
			plane.Data[i] = float64(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
		for i, v := range buf {
			plane.Data[i] = float64(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
		for i, v := range buf {
			plane.Data[i] = float64(v)
		}
	case 64:
		buf := make([]int64, n)
		if err := img.Read(&buf); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
		for i, v := range buf {
			plane.Data[i] = float64(v)
		}
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
		for i, v := range buf {
			plane.Data[i] = float64(v)
		}
	case -64:
		if err := img.Read(&plane.Data); err != nil {
			return nil, errors.Wrap(err, "read pixels")
		}
	default:
		return nil, errors.Errorf("unsupported BITPIX %d", bitpix)
	}

	scale, zero := 1.0, 0.0
	if card := hdr.Get("BSCALE"); card != nil {
		if v, ok := numeric(card.Value); ok {
			scale = v
		}
	}
	if card := hdr.Get("BZERO"); card != nil {
		if v, ok := numeric(card.Value); ok {
			zero = v
		}
	}
	if scale != 1 || zero != 0 {
		for i, v := range plane.Data {
			plane.Data[i] = zero + scale*v
		}
	}

	return plane, nil
}

// Write stores ref as a FITS file laid out like DefaultExtensions: the header
// values in an empty primary HDU followed by the wavelength, angle and mask images.
func Write(w io.Writer, ref *Reference) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return errors.Wrap(err, "create FITS")
	}
	defer f.Close()

	keys := make([]string, 0, len(ref.Header))
	for k := range ref.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cards := make([]fitsio.Card, 0, len(keys))
	for _, k := range keys {
		cards = append(cards, fitsio.Card{Name: k, Value: ref.Header[k]})
	}

	primary := fitsio.NewImage(8, nil)
	defer primary.Close()
	if err := primary.Header().Append(cards...); err != nil {
		return errors.Wrap(err, "primary header")
	}
	if err := f.Write(primary); err != nil {
		return errors.Wrap(err, "write primary HDU")
	}

	for _, part := range []struct {
		name  string
		plane *Plane
	}{
		{"WAVELENGTH", ref.Wavelength},
		{"ALPHA", ref.Angle},
		{"SLICE", ref.Mask},
	} {
		if err := writePlane(f, part.name, part.plane); err != nil {
			return errors.Wrapf(err, "write %s", part.name)
		}
	}
	return nil
}

func writePlane(f *fitsio.File, name string, p *Plane) error {
	img := fitsio.NewImage(-64, []int{p.Cols, p.Rows})
	defer img.Close()
	if err := img.Header().Append(fitsio.Card{Name: "EXTNAME", Value: name}); err != nil {
		return err
	}
	if err := img.Write(p.Data); err != nil {
		return err
	}
	return f.Write(img)
}
