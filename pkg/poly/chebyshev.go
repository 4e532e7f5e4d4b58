// Package poly implements 2-D Chebyshev polynomial surfaces and the
// least-squares fitters used to fit them to calibration planes.
package poly

import (
	"fmt"
	"math"
)

// Chebyshev2D is a bivariate Chebyshev series
//
//	f(x, y) = sum_{i<=XDegree, j<=YDegree} c_ij T_i(x') T_j(y')
//
// where x' and y' are x and y mapped linearly from their domain onto [-1, 1].
// Coefficient c_ij is stored at Coeffs[i + j*(XDegree+1)].
type Chebyshev2D struct {
	XDegree int
	YDegree int

	// Coeffs holds the series coefficients
	Coeffs []float64

	// Fixed marks coefficients that a fitter must leave at their current value
	Fixed []bool

	// XDomain and YDomain are the input ranges mapped onto [-1, 1].
	// A nil domain is filled from the data by the fitters.
	XDomain []float64
	YDomain []float64
}

// NewChebyshev2D returns a zero surface of the given degrees with no fixed coefficients.
func NewChebyshev2D(xDegree, yDegree int) Chebyshev2D {
	n := (xDegree + 1) * (yDegree + 1)
	return Chebyshev2D{
		XDegree: xDegree,
		YDegree: yDegree,
		Coeffs:  make([]float64, n),
		Fixed:   make([]bool, n),
	}
}

// Index returns the position of coefficient c_ij in Coeffs.
func (m Chebyshev2D) Index(i, j int) int {
	return i + j*(m.XDegree+1)
}

// Coeff returns c_ij
func (m Chebyshev2D) Coeff(i, j int) float64 {
	return m.Coeffs[m.Index(i, j)]
}

// Fix holds c_ij at its current value during fitting.
func (m *Chebyshev2D) Fix(i, j int) {
	m.Fixed[m.Index(i, j)] = true
}

// NumFree returns the number of coefficients a fitter will adjust.
func (m Chebyshev2D) NumFree() int {
	n := 0
	for _, f := range m.Fixed {
		if !f {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so fitters never mutate their template.
func (m Chebyshev2D) Clone() Chebyshev2D {
	out := m
	out.Coeffs = append([]float64(nil), m.Coeffs...)
	out.Fixed = append([]bool(nil), m.Fixed...)
	if len(out.Fixed) < len(out.Coeffs) {
		out.Fixed = append(out.Fixed, make([]bool, len(out.Coeffs)-len(out.Fixed))...)
	}
	if m.XDomain != nil {
		out.XDomain = append([]float64(nil), m.XDomain...)
	}
	if m.YDomain != nil {
		out.YDomain = append([]float64(nil), m.YDomain...)
	}
	return out
}

// Eval evaluates the surface at (x, y).
func (m Chebyshev2D) Eval(x, y float64) float64 {
	tx := chebyshev(m.XDegree, mapDomain(x, m.XDomain))
	ty := chebyshev(m.YDegree, mapDomain(y, m.YDomain))

	sum := 0.0
	for j := 0; j <= m.YDegree; j++ {
		for i := 0; i <= m.XDegree; i++ {
			sum += m.Coeffs[m.Index(i, j)] * tx[i] * ty[j]
		}
	}
	return sum
}

// basis returns the products T_i(x') T_j(y') in coefficient order.
func (m Chebyshev2D) basis(x, y float64, dst []float64) {
	tx := chebyshev(m.XDegree, mapDomain(x, m.XDomain))
	ty := chebyshev(m.YDegree, mapDomain(y, m.YDomain))
	for j := 0; j <= m.YDegree; j++ {
		for i := 0; i <= m.XDegree; i++ {
			dst[m.Index(i, j)] = tx[i] * ty[j]
		}
	}
}

func (m Chebyshev2D) String() string {
	return fmt.Sprintf("Chebyshev2D(x_degree=%d, y_degree=%d) %v", m.XDegree, m.YDegree, m.Coeffs)
}

// chebyshev returns T_0(x)..T_n(x) via the three-term recurrence.
func chebyshev(n int, x float64) []float64 {
	t := make([]float64, n+1)
	t[0] = 1
	if n >= 1 {
		t[1] = x
	}
	for k := 2; k <= n; k++ {
		t[k] = 2*x*t[k-1] - t[k-2]
	}
	return t
}

// mapDomain maps v from domain onto [-1, 1]. A missing or zero-width domain
// maps everything to the window centre.
func mapDomain(v float64, domain []float64) float64 {
	if len(domain) != 2 {
		return v
	}
	lo, hi := domain[0], domain[1]
	if hi == lo {
		return 0
	}
	return (2*v - lo - hi) / (hi - lo)
}

// dataDomain returns [min, max] of v
func dataDomain(v []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return []float64{lo, hi}
}
