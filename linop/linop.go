// Package linop defines the operator contract consumed by the eigensolver
// and the self-consistency engine.
//
// An Operator is an opaque linear map over a fixed-dimension real vector
// space. Implementations advertise symmetry and realness so the solvers can
// pick a strategy; dense materialization and diagonal extraction are
// optional capabilities discovered by interface assertion.
package linop

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when an operator is applied to a vector
// of the wrong length.
var ErrDimensionMismatch = errors.New("linop: dimension mismatch")

// Operator is an opaque linear map over R^n. Implementations must be
// immutable once constructed: the SCF map builds a fresh Operator each time
// the underlying density changes.
type Operator interface {
	// Dim returns n for the map R^n -> R^n.
	Dim() int
	// Symmetric reports whether the operator equals its transpose.
	Symmetric() bool
	// Real reports whether the operator is real-valued.
	Real() bool
	// Apply computes dst = A*x. dst and x must have length Dim and must
	// not alias.
	Apply(dst, x []float64) error
}

// Denser is the optional dense-materialization capability, used by the
// exact eigensolver path on small systems.
type Denser interface {
	Dense() *mat.Dense
}

// Diagonaler exposes the operator diagonal, used for Jacobi
// preconditioning in the Davidson solver.
type Diagonaler interface {
	Diagonal() []float64
}

// DenseOperator is an Operator backed by a symmetric dense matrix.
type DenseOperator struct {
	m *mat.SymDense
}

// NewDense wraps a symmetric dense matrix as an Operator. The matrix is
// not copied; callers must not mutate it afterwards.
func NewDense(m *mat.SymDense) *DenseOperator {
	return &DenseOperator{m: m}
}

// NewDenseFromSlice builds a DenseOperator from a row-major n*n slice,
// symmetrizing from the upper triangle.
func NewDenseFromSlice(n int, data []float64) (*DenseOperator, error) {
	if len(data) != n*n {
		return nil, fmt.Errorf("%w: want %d elements, got %d", ErrDimensionMismatch, n*n, len(data))
	}
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, data[i*n+j])
		}
	}
	return &DenseOperator{m: s}, nil
}

// Identity returns the n-dimensional identity operator.
func Identity(n int) *DenseOperator {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return &DenseOperator{m: s}
}

func (d *DenseOperator) Dim() int        { return d.m.SymmetricDim() }
func (d *DenseOperator) Symmetric() bool { return true }
func (d *DenseOperator) Real() bool      { return true }

// Apply computes dst = A*x.
func (d *DenseOperator) Apply(dst, x []float64) error {
	n := d.Dim()
	if len(dst) != n || len(x) != n {
		return fmt.Errorf("%w: operator dim %d, dst %d, x %d", ErrDimensionMismatch, n, len(dst), len(x))
	}
	out := mat.NewVecDense(n, dst)
	out.MulVec(d.m, mat.NewVecDense(n, x))
	return nil
}

// Dense materializes the operator as a dense matrix copy.
func (d *DenseOperator) Dense() *mat.Dense {
	n := d.Dim()
	out := mat.NewDense(n, n, nil)
	out.Copy(d.m)
	return out
}

// Diagonal returns a copy of the operator diagonal.
func (d *DenseOperator) Diagonal() []float64 {
	n := d.Dim()
	diag := make([]float64, n)
	for i := range diag {
		diag[i] = d.m.At(i, i)
	}
	return diag
}

// Sym returns the underlying symmetric matrix. Read-only by convention.
func (d *DenseOperator) Sym() *mat.SymDense { return d.m }
