// Package matrix provides the dense matrix arithmetic the solvers
// need: LU factorization with partial pivoting, linear solves and
// inversion, over complex and real elements. Matrices are flat slices
// indexed by row-major bus index, which keeps the per-iteration inner
// loops cache friendly.
package matrix

import (
	"errors"
	"fmt"
	"math/cmplx"
)

// ErrSingular is returned when a factorization encounters a pivot
// that is numerically zero.
var ErrSingular = errors.New("matrix is singular")

const pivotEps = 1e-12

// Complex is a dense square complex matrix.
type Complex struct {
	n    int
	data []complex128
}

// NewComplex allocates an n×n zero matrix.
func NewComplex(n int) *Complex {
	return &Complex{n: n, data: make([]complex128, n*n)}
}

// Size returns the dimension n.
func (m *Complex) Size() int { return m.n }

// At returns the element at (i, j).
func (m *Complex) At(i, j int) complex128 { return m.data[i*m.n+j] }

// Set assigns the element at (i, j).
func (m *Complex) Set(i, j int, v complex128) { m.data[i*m.n+j] = v }

// Add accumulates v onto the element at (i, j).
func (m *Complex) Add(i, j int, v complex128) { m.data[i*m.n+j] += v }

// Clone returns a deep copy.
func (m *Complex) Clone() *Complex {
	c := NewComplex(m.n)
	copy(c.data, m.data)
	return c
}

// MulVec computes y = M·x.
func (m *Complex) MulVec(x []complex128) ([]complex128, error) {
	if len(x) != m.n {
		return nil, fmt.Errorf("matrix: vector length %d does not match dimension %d", len(x), m.n)
	}
	y := make([]complex128, m.n)
	for i := 0; i < m.n; i++ {
		row := m.data[i*m.n : (i+1)*m.n]
		var sum complex128
		for j, v := range row {
			sum += v * x[j]
		}
		y[i] = sum
	}
	return y, nil
}

// luComplex holds an in-place LU factorization with its row pivots.
type luComplex struct {
	n     int
	lu    []complex128
	pivot []int
}

// factorizeComplex performs Doolittle LU with partial pivoting.
func factorizeComplex(m *Complex) (*luComplex, error) {
	n := m.n
	lu := make([]complex128, len(m.data))
	copy(lu, m.data)
	pivot := make([]int, n)

	for k := 0; k < n; k++ {
		// Pick the largest pivot in column k.
		p := k
		max := cmplx.Abs(lu[k*n+k])
		for i := k + 1; i < n; i++ {
			if a := cmplx.Abs(lu[i*n+k]); a > max {
				max, p = a, i
			}
		}
		if max < pivotEps {
			return nil, fmt.Errorf("%w: zero pivot at column %d", ErrSingular, k)
		}
		pivot[k] = p
		if p != k {
			for j := 0; j < n; j++ {
				lu[k*n+j], lu[p*n+j] = lu[p*n+j], lu[k*n+j]
			}
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
		}
	}
	return &luComplex{n: n, lu: lu, pivot: pivot}, nil
}

// solve computes x for LUx = b, overwriting nothing.
func (f *luComplex) solve(b []complex128) []complex128 {
	n := f.n
	x := make([]complex128, n)
	copy(x, b)

	for k := 0; k < n; k++ {
		if p := f.pivot[k]; p != k {
			x[k], x[p] = x[p], x[k]
		}
	}
	// Forward substitution (L has unit diagonal).
	for i := 1; i < n; i++ {
		var sum complex128
		for j := 0; j < i; j++ {
			sum += f.lu[i*n+j] * x[j]
		}
		x[i] -= sum
	}
	// Back substitution.
	for i := n - 1; i >= 0; i-- {
		var sum complex128
		for j := i + 1; j < n; j++ {
			sum += f.lu[i*n+j] * x[j]
		}
		x[i] = (x[i] - sum) / f.lu[i*n+i]
	}
	return x
}

// SolveComplex solves M·x = b.
func SolveComplex(m *Complex, b []complex128) ([]complex128, error) {
	if len(b) != m.n {
		return nil, fmt.Errorf("matrix: vector length %d does not match dimension %d", len(b), m.n)
	}
	f, err := factorizeComplex(m)
	if err != nil {
		return nil, err
	}
	return f.solve(b), nil
}

// InvertComplex returns M⁻¹, column by column from one factorization.
func InvertComplex(m *Complex) (*Complex, error) {
	f, err := factorizeComplex(m)
	if err != nil {
		return nil, err
	}
	n := m.n
	inv := NewComplex(n)
	e := make([]complex128, n)
	for col := 0; col < n; col++ {
		for i := range e {
			e[i] = 0
		}
		e[col] = 1
		x := f.solve(e)
		for row := 0; row < n; row++ {
			inv.Set(row, col, x[row])
		}
	}
	return inv, nil
}
