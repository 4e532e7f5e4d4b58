package reference

import (
	"github.com/pkg/errors"

	"miriwcs/internal/models"
)

// Plane is a dense 2-D array stored row-major, the way FITS stores images
// (NAXIS1 = columns varies fastest).
type Plane struct {
	Rows int
	Cols int
	Data []float64
}

// NewPlane allocates a zeroed plane
func NewPlane(rows, cols int) *Plane {
	return &Plane{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the value at row r, column c
func (p *Plane) At(r, c int) float64 {
	return p.Data[r*p.Cols+c]
}

// Set stores v at row r, column c
func (p *Plane) Set(r, c int, v float64) {
	p.Data[r*p.Cols+c] = v
}

// Columns copies the column range [start, end) of every row into a new plane.
// The range is clamped to the plane width.
func (p *Plane) Columns(start, end int) *Plane {
	if end > p.Cols {
		end = p.Cols
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}

	out := NewPlane(p.Rows, end-start)
	for r := 0; r < p.Rows; r++ {
		copy(out.Data[r*out.Cols:(r+1)*out.Cols], p.Data[r*p.Cols+start:r*p.Cols+end])
	}
	return out
}

// Window extracts the sample grid covered by b. It returns the row and column
// coordinate of every sample alongside its value, flattened row-major, which is
// the layout the surface fitters consume.
func (p *Plane) Window(b models.Bounds) (rows, cols, values []float64, err error) {
	if b.Empty() {
		return nil, nil, nil, errors.Errorf("empty window %s", b)
	}
	if b.RowMin < 0 || b.ColMin < 0 || b.RowMax > p.Rows || b.ColMax > p.Cols {
		return nil, nil, nil, errors.Errorf("window %s outside %dx%d plane", b, p.Rows, p.Cols)
	}

	n := b.Rows() * b.Cols()
	rows = make([]float64, 0, n)
	cols = make([]float64, 0, n)
	values = make([]float64, 0, n)
	for r := b.RowMin; r < b.RowMax; r++ {
		for c := b.ColMin; c < b.ColMax; c++ {
			rows = append(rows, float64(r))
			cols = append(cols, float64(c))
			values = append(values, p.At(r, c))
		}
	}
	return rows, cols, values, nil
}
