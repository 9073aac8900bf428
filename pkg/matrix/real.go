package matrix

import (
	"fmt"
	"math"
)

// Real is a dense square real matrix, used for the load-flow Jacobian.
type Real struct {
	n    int
	data []float64
}

// NewReal allocates an n×n zero matrix.
func NewReal(n int) *Real {
	return &Real{n: n, data: make([]float64, n*n)}
}

// Size returns the dimension n.
func (m *Real) Size() int { return m.n }

// At returns the element at (i, j).
func (m *Real) At(i, j int) float64 { return m.data[i*m.n+j] }

// Set assigns the element at (i, j).
func (m *Real) Set(i, j int, v float64) { m.data[i*m.n+j] = v }

// Add accumulates v onto the element at (i, j).
func (m *Real) Add(i, j int, v float64) { m.data[i*m.n+j] += v }

// SolveReal solves M·x = b by LU with partial pivoting. M is not
// modified.
func SolveReal(m *Real, b []float64) ([]float64, error) {
	n := m.n
	if len(b) != n {
		return nil, fmt.Errorf("matrix: vector length %d does not match dimension %d", len(b), n)
	}

	lu := make([]float64, len(m.data))
	copy(lu, m.data)
	x := make([]float64, n)
	copy(x, b)

	for k := 0; k < n; k++ {
		p := k
		max := math.Abs(lu[k*n+k])
		for i := k + 1; i < n; i++ {
			if a := math.Abs(lu[i*n+k]); a > max {
				max, p = a, i
			}
		}
		if max < pivotEps {
			return nil, fmt.Errorf("%w: zero pivot at column %d", ErrSingular, k)
		}
		if p != k {
			for j := 0; j < n; j++ {
				lu[k*n+j], lu[p*n+j] = lu[p*n+j], lu[k*n+j]
			}
			x[k], x[p] = x[p], x[k]
		}

		inv := 1 / lu[k*n+k]
		for i := k + 1; i < n; i++ {
			lu[i*n+k] *= inv
			f := lu[i*n+k]
			if f == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				lu[i*n+j] -= f * lu[k*n+j]
			}
			x[i] -= f * x[k]
		}
	}

	for i := n - 1; i >= 0; i-- {
		sum := 0.0
		for j := i + 1; j < n; j++ {
			sum += lu[i*n+j] * x[j]
		}
		x[i] = (x[i] - sum) / lu[i*n+i]
	}
	return x, nil
}
