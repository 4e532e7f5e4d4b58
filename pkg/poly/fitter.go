package poly

import (
	"math"

	"github.com/maorshutman/lm"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyDomain is returned when there are no samples to fit
	ErrEmptyDomain = errors.New("poly: no samples to fit")

	// ErrSingular is returned when the free coefficients are not determined by the samples
	ErrSingular = errors.New("poly: design matrix is rank deficient")
)

// Fitter fits the free coefficients of a surface to samples z(x, y). The
// template model is not modified; the fitted copy is returned.
type Fitter interface {
	Fit(model Chebyshev2D, x, y, z []float64) (Chebyshev2D, error)
}

// NewFitter returns the fitter registered under name ("linear" or "levmar").
func NewFitter(name string, iterations int) (Fitter, error) {
	switch name {
	case "", "linear":
		return LinearLSQFitter{}, nil
	case "levmar", "lm":
		return LevMarFitter{Iterations: iterations}, nil
	default:
		return nil, errors.Errorf("unknown fitter %q", name)
	}
}

// LinearLSQFitter solves the ordinary least-squares problem for the free
// coefficients with a QR decomposition. Fixed coefficients keep their value and
// their contribution is removed from the samples before solving.
type LinearLSQFitter struct{}

// Fit implements Fitter.
func (LinearLSQFitter) Fit(model Chebyshev2D, x, y, z []float64) (Chebyshev2D, error) {
	m, free, err := prepare(model, x, y, z)
	if err != nil {
		return Chebyshev2D{}, err
	}
	if len(free) == 0 {
		return m, nil
	}

	n := len(x)
	A := mat.NewDense(n, len(free), nil)
	b := mat.NewVecDense(n, nil)
	row := make([]float64, len(m.Coeffs))
	for k := 0; k < n; k++ {
		m.basis(x[k], y[k], row)
		target := z[k]
		for idx, v := range row {
			if m.Fixed[idx] {
				target -= m.Coeffs[idx] * v
			}
		}
		for col, idx := range free {
			A.Set(k, col, row[idx])
		}
		b.SetVec(k, target)
	}

	var qr mat.QR
	qr.Factorize(A)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return Chebyshev2D{}, errors.Wrapf(ErrSingular, "condition number %g", float64(cond))
		}
		return Chebyshev2D{}, errors.Wrap(err, "solve least squares")
	}

	for col, idx := range free {
		m.Coeffs[idx] = sol.AtVec(col)
	}
	return m, nil
}

// LevMarFitter refines the linear least-squares solution with the
// Levenberg-Marquardt algorithm, seeded with the linear solution.
type LevMarFitter struct {
	// Iterations bounds the number of LM steps; 0 means 100
	Iterations int
}

// Fit implements Fitter.
func (f LevMarFitter) Fit(model Chebyshev2D, x, y, z []float64) (Chebyshev2D, error) {
	seed, err := LinearLSQFitter{}.Fit(model, x, y, z)
	if err != nil {
		return Chebyshev2D{}, err
	}

	_, free, err := prepare(seed, x, y, z)
	if err != nil {
		return Chebyshev2D{}, err
	}
	if len(free) == 0 {
		return seed, nil
	}

	work := seed.Clone()
	residual := func(dst, params []float64) {
		for col, idx := range free {
			work.Coeffs[idx] = params[col]
		}
		for k := range x {
			dst[k] = work.Eval(x[k], y[k]) - z[k]
		}
	}

	start := make([]float64, len(free))
	for col, idx := range free {
		start[col] = seed.Coeffs[idx]
	}

	iterations := f.Iterations
	if iterations <= 0 {
		iterations = 100
	}

	jacobian := lm.NumJac{Func: residual}
	problem := lm.LMProblem{
		Dim:        len(free),
		Size:       len(x),
		Func:       residual,
		Jac:        jacobian.Jac,
		InitParams: start,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}

	result, err := lm.LM(problem, &lm.Settings{Iterations: iterations, ObjectiveTol: 1e-16})
	if err != nil {
		return Chebyshev2D{}, errors.Wrap(err, "levenberg-marquardt")
	}

	out := seed.Clone()
	for col, idx := range free {
		out.Coeffs[idx] = result.X[col]
	}
	return out, nil
}

// prepare validates the samples, copies the template, fills unset domains from
// the data and lists the free coefficient indices.
func prepare(model Chebyshev2D, x, y, z []float64) (Chebyshev2D, []int, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return Chebyshev2D{}, nil, errors.Errorf("sample lengths differ: x=%d y=%d z=%d", len(x), len(y), len(z))
	}
	if len(x) == 0 {
		return Chebyshev2D{}, nil, ErrEmptyDomain
	}

	m := model.Clone()
	if m.XDomain == nil {
		m.XDomain = dataDomain(x)
	}
	if m.YDomain == nil {
		m.YDomain = dataDomain(y)
	}

	var free []int
	for idx, fixed := range m.Fixed {
		if !fixed {
			free = append(free, idx)
		}
	}
	if len(x) < len(free) {
		return Chebyshev2D{}, nil, errors.Wrapf(ErrSingular, "%d samples for %d free coefficients", len(x), len(free))
	}
	return m, free, nil
}

// FitStats summarises how well a fitted surface reproduces its samples
type FitStats struct {
	RMS      float64
	RSquared float64
}

// Residuals evaluates m at every sample and reports the RMS residual and the
// coefficient of determination.
func Residuals(m Chebyshev2D, x, y, z []float64) FitStats {
	if len(z) == 0 {
		return FitStats{}
	}
	est := make([]float64, len(z))
	sq := make([]float64, len(z))
	for k := range z {
		est[k] = m.Eval(x[k], y[k])
		d := est[k] - z[k]
		sq[k] = d * d
	}
	return FitStats{
		RMS:      math.Sqrt(stat.Mean(sq, nil)),
		RSquared: stat.RSquaredFrom(est, z, nil),
	}
}
