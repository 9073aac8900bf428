package matrix

import (
	"errors"
	"math/cmplx"
	"testing"
)

const tol = 1e-10

func cApprox(got, want complex128) bool {
	return cmplx.Abs(got-want) < tol
}

func TestSolveComplexKnownSystem(t *testing.T) {
	// (2+1i)x + 1y = 5+2i
	//      1x + (3-1i)y = 4
	a := NewComplex(2)
	a.Set(0, 0, 2+1i)
	a.Set(0, 1, 1)
	a.Set(1, 0, 1)
	a.Set(1, 1, 3-1i)
	b := []complex128{5 + 2i, 4}

	x, err := SolveComplex(a, b)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	// Verify by substitution, the matrix is untouched by the solve.
	check, err := a.MulVec(x)
	if err != nil {
		t.Fatalf("mulvec failed: %v", err)
	}
	for i := range b {
		if !cApprox(check[i], b[i]) {
			t.Errorf("row %d: A·x = %v, want %v", i, check[i], b[i])
		}
	}
}

func TestSolveComplexNeedsPivot(t *testing.T) {
	// Zero leading diagonal forces a row swap.
	a := NewComplex(2)
	a.Set(0, 0, 0)
	a.Set(0, 1, 1)
	a.Set(1, 0, 2)
	a.Set(1, 1, 1)

	x, err := SolveComplex(a, []complex128{3, 5})
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !cApprox(x[0], 1) || !cApprox(x[1], 3) {
		t.Errorf("got x = %v, want [1 3]", x)
	}
}

func TestSolveComplexSingular(t *testing.T) {
	a := NewComplex(2)
	a.Set(0, 0, 1)
	a.Set(0, 1, 2)
	a.Set(1, 0, 2)
	a.Set(1, 1, 4)

	if _, err := SolveComplex(a, []complex128{1, 2}); !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestInvertComplexRoundTrip(t *testing.T) {
	a := NewComplex(3)
	vals := [][]complex128{
		{4 + 1i, 1, 0},
		{1, 3 - 2i, 1i},
		{0, -1i, 2},
	}
	for i := range vals {
		for j := range vals[i] {
			a.Set(i, j, vals[i][j])
		}
	}

	inv, err := InvertComplex(a)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}

	// A · A⁻¹ should be the identity.
	for i := 0; i < 3; i++ {
		col := make([]complex128, 3)
		for j := 0; j < 3; j++ {
			col[j] = inv.At(j, i)
		}
		prod, err := a.MulVec(col)
		if err != nil {
			t.Fatalf("mulvec failed: %v", err)
		}
		for j := 0; j < 3; j++ {
			want := complex128(0)
			if i == j {
				want = 1
			}
			if !cApprox(prod[j], want) {
				t.Errorf("(A·A⁻¹)[%d][%d] = %v, want %v", j, i, prod[j], want)
			}
		}
	}
}

func TestComplexAddAccumulates(t *testing.T) {
	a := NewComplex(1)
	a.Add(0, 0, 1+1i)
	a.Add(0, 0, 2-3i)
	if got := a.At(0, 0); !cApprox(got, 3-2i) {
		t.Errorf("got %v, want 3-2i", got)
	}
}
