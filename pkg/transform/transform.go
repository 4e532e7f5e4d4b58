// Package transform provides the callable coordinate-transform models a slice
// is described by, and the compound model that routes detector coordinates to
// several sub-models evaluated side by side.
package transform

import (
	"fmt"

	"github.com/pkg/errors"

	"miriwcs/pkg/poly"
)

// ErrArity is returned when a model is evaluated with the wrong number of
// inputs or a compound model is built from inconsistent parts.
var ErrArity = errors.New("transform: arity mismatch")

// Model is a multi-input, multi-output coordinate transform
type Model interface {
	Inputs() int
	Outputs() int
	Evaluate(in ...float64) ([]float64, error)
}

// Surface evaluates a fitted 2-D Chebyshev surface at (row, col).
type Surface struct {
	Poly poly.Chebyshev2D
}

func (Surface) Inputs() int  { return 2 }
func (Surface) Outputs() int { return 1 }

// Evaluate implements Model.
func (s Surface) Evaluate(in ...float64) ([]float64, error) {
	if len(in) != 2 {
		return nil, errors.Wrapf(ErrArity, "surface takes 2 inputs, got %d", len(in))
	}
	return []float64{s.Poly.Eval(in[0], in[1])}, nil
}

// Const1D returns Amplitude whatever its single input is.
type Const1D struct {
	Amplitude float64
}

func (Const1D) Inputs() int  { return 1 }
func (Const1D) Outputs() int { return 1 }

// Evaluate implements Model.
func (c Const1D) Evaluate(in ...float64) ([]float64, error) {
	if len(in) != 1 {
		return nil, errors.Wrapf(ErrArity, "const takes 1 input, got %d", len(in))
	}
	return []float64{c.Amplitude}, nil
}

// Compound first routes its inputs through Mapping, so routed[i] = in[Mapping[i]],
// then hands consecutive routed values to each sub-model in order and
// concatenates their outputs. Sub-models are independent; none sees another's output.
type Compound struct {
	Mapping []int
	Models  []Model
	inputs  int
}

// NewCompound validates that mapping feeds exactly the inputs the sub-models
// consume and that every index refers to one of nInputs inputs.
func NewCompound(nInputs int, mapping []int, models ...Model) (*Compound, error) {
	want := 0
	for _, m := range models {
		want += m.Inputs()
	}
	if want != len(mapping) {
		return nil, errors.Wrapf(ErrArity, "mapping yields %d values, models consume %d", len(mapping), want)
	}
	for _, idx := range mapping {
		if idx < 0 || idx >= nInputs {
			return nil, errors.Wrapf(ErrArity, "mapping index %d outside %d inputs", idx, nInputs)
		}
	}
	return &Compound{
		Mapping: append([]int(nil), mapping...),
		Models:  models,
		inputs:  nInputs,
	}, nil
}

// Inputs implements Model.
func (c *Compound) Inputs() int { return c.inputs }

// Outputs implements Model.
func (c *Compound) Outputs() int {
	n := 0
	for _, m := range c.Models {
		n += m.Outputs()
	}
	return n
}

// Evaluate implements Model.
func (c *Compound) Evaluate(in ...float64) ([]float64, error) {
	if len(in) != c.inputs {
		return nil, errors.Wrapf(ErrArity, "compound takes %d inputs, got %d", c.inputs, len(in))
	}

	routed := make([]float64, len(c.Mapping))
	for i, idx := range c.Mapping {
		routed[i] = in[idx]
	}

	out := make([]float64, 0, c.Outputs())
	pos := 0
	for i, m := range c.Models {
		n := m.Inputs()
		res, err := m.Evaluate(routed[pos : pos+n]...)
		if err != nil {
			return nil, errors.Wrapf(err, "sub-model %d", i)
		}
		out = append(out, res...)
		pos += n
	}
	return out, nil
}

func (c *Compound) String() string {
	return fmt.Sprintf("Mapping%v | %d models", c.Mapping, len(c.Models))
}

// SliceMapping duplicates (row, col) for the angle surface, the offset
// constant and the wavelength surface: (row, col, row, row, col).
var SliceMapping = []int{0, 1, 0, 0, 1}

// NewSliceTransform builds the per-slice transform
//
//	(row, col) -> (alpha(row, col), beta, lambda(row, col))
func NewSliceTransform(alpha poly.Chebyshev2D, beta Const1D, lambda poly.Chebyshev2D) (*Compound, error) {
	return NewCompound(2, SliceMapping, Surface{Poly: alpha}, beta, Surface{Poly: lambda})
}
