// Package channel builds the per-slice coordinate transforms of the MIRI
// spectrometer channels from a calibration reference product.
package channel

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"miriwcs/internal/models"
	"miriwcs/pkg/poly"
	"miriwcs/pkg/reference"
	"miriwcs/pkg/transform"
)

var (
	// ErrEmptyRegion is returned when a slice's fit domain has no rows or no columns
	ErrEmptyRegion = errors.New("channel: slice region is empty")

	// ErrSliceNotFound is returned when a label does not occur in the channel mask
	ErrSliceNotFound = errors.New("channel: slice label not in mask")

	// ErrCollision is returned when two slices map to the same global identifier
	ErrCollision = errors.New("channel: slice identifier collision")
)

// Degrees of the fitted surfaces: (row degree, column degree)
const (
	AngleXDegree      = 2
	AngleYDegree      = 1
	WavelengthXDegree = 1
	WavelengthYDegree = 1
)

// Options control how slice surfaces are fitted
type Options struct {
	// Fitter solves for the surface coefficients; nil means poly.LinearLSQFitter
	Fitter poly.Fitter

	// InclusiveBounds fits over [min, max] instead of the half-open [min, max)
	InclusiveBounds bool
}

func (o Options) fitter() poly.Fitter {
	if o.Fitter == nil {
		return poly.LinearLSQFitter{}
	}
	return o.Fitter
}

// SliceModels holds the fitted surfaces of one slice and its offset constant
type SliceModels struct {
	Region     models.SliceRegion
	Wavelength poly.Chebyshev2D
	Angle      poly.Chebyshev2D
	Beta       transform.Const1D

	// fit quality of each surface over its region
	WavelengthStats poly.FitStats
	AngleStats      poly.FitStats
}

// Transform composes the slice models into (row, col) -> (alpha, beta, lambda).
func (s *SliceModels) Transform() (*transform.Compound, error) {
	return transform.NewSliceTransform(s.Angle, s.Beta, s.Wavelength)
}

// Enumerate lists the distinct nonzero labels of a channel mask in ascending
// order. Label 0 is background; NaN and fractional values belong to no slice.
func Enumerate(mask *reference.Plane) []int {
	seen := make(map[int]struct{})
	for _, v := range mask.Data {
		if math.IsNaN(v) || v != math.Trunc(v) {
			continue
		}
		if label := int(v); label != 0 {
			seen[label] = struct{}{}
		}
	}

	labels := make([]int, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}

// FindBounds locates the pixels labelled rawID in the channel mask and returns
// their fit domain in full-mask coordinates, shifting columns by the channel's
// first column. The domain is half-open unless inclusive is set.
func FindBounds(mask *reference.Plane, rawID int, ch models.Channel, inclusive bool) (models.Bounds, error) {
	b := models.Bounds{RowMin: math.MaxInt, ColMin: math.MaxInt, RowMax: -1, ColMax: -1}
	found := false
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			v := mask.At(r, c)
			if v != float64(rawID) {
				continue
			}
			found = true
			b.RowMin = min(b.RowMin, r)
			b.RowMax = max(b.RowMax, r)
			b.ColMin = min(b.ColMin, c)
			b.ColMax = max(b.ColMax, c)
		}
	}
	if !found {
		return models.Bounds{}, errors.Wrapf(ErrSliceNotFound, "%s slice %d", ch, rawID)
	}

	if inclusive {
		b.RowMax++
		b.ColMax++
	}
	b.ColMin += ch.ColumnStart
	b.ColMax += ch.ColumnStart

	if b.Empty() {
		return b, errors.Wrapf(ErrEmptyRegion, "%s slice %d: %s", ch, rawID, b)
	}
	return b, nil
}

// OffsetModel returns the constant across-slice coordinate of a slice:
// intercept + slope * (rawID + channel offset).
func OffsetModel(intercept, slope float64, ch models.Channel, rawID int) transform.Const1D {
	return transform.Const1D{Amplitude: intercept + slope*float64(ch.GlobalID(rawID))}
}

// FitSlice fits the angle and wavelength surfaces of one slice. The angle
// surface has all coefficients free; the wavelength surface holds c0_1 and
// c1_1 at zero.
func FitSlice(ref *reference.Reference, mask *reference.Plane, ch models.Channel, rawID int, opts Options) (*SliceModels, error) {
	bounds, err := FindBounds(mask, rawID, ch, opts.InclusiveBounds)
	if err != nil {
		return nil, err
	}

	rows, cols, lam, err := ref.Wavelength.Window(bounds)
	if err != nil {
		return nil, errors.Wrapf(err, "%s slice %d wavelength", ch, rawID)
	}
	_, _, alpha, err := ref.Angle.Window(bounds)
	if err != nil {
		return nil, errors.Wrapf(err, "%s slice %d angle", ch, rawID)
	}

	fitter := opts.fitter()

	lmodel := poly.NewChebyshev2D(WavelengthXDegree, WavelengthYDegree)
	lmodel.Fix(0, 1)
	lmodel.Fix(1, 1)
	lfitted, err := fitter.Fit(lmodel, rows, cols, lam)
	if err != nil {
		return nil, errors.Wrapf(err, "%s slice %d wavelength fit over %s", ch, rawID, bounds)
	}

	amodel := poly.NewChebyshev2D(AngleXDegree, AngleYDegree)
	afitted, err := fitter.Fit(amodel, rows, cols, alpha)
	if err != nil {
		return nil, errors.Wrapf(err, "%s slice %d angle fit over %s", ch, rawID, bounds)
	}

	intercept, slope, err := ref.Offset(ch)
	if err != nil {
		return nil, err
	}

	return &SliceModels{
		Region: models.SliceRegion{
			ID:      ch.GlobalID(rawID),
			RawID:   rawID,
			Channel: ch.ID,
			Bounds:  bounds,
		},
		Wavelength:      lfitted,
		Angle:           afitted,
		Beta:            OffsetModel(intercept, slope, ch, rawID),
		WavelengthStats: poly.Residuals(lfitted, rows, cols, lam),
		AngleStats:      poly.Residuals(afitted, rows, cols, alpha),
	}, nil
}

// BuildChannel fits every slice of one channel, keyed by global identifier.
// The first failing slice aborts the channel.
func BuildChannel(ref *reference.Reference, ch models.Channel, opts Options) (map[int]*SliceModels, error) {
	if _, _, err := ref.Offset(ch); err != nil {
		return nil, err
	}

	mask := ref.ChannelMask(ch)
	out := make(map[int]*SliceModels)
	for _, rawID := range Enumerate(mask) {
		sm, err := FitSlice(ref, mask, ch, rawID, opts)
		if err != nil {
			return nil, err
		}
		out[sm.Region.ID] = sm
	}
	return out, nil
}
