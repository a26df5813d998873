package linop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/linop"
)

// TestDenseOperator_Apply verifies matrix-vector application against a
// hand-computed product.
func TestDenseOperator_Apply(t *testing.T) {
	s := mat.NewSymDense(2, []float64{
		2, 1,
		1, 3,
	})
	op := linop.NewDense(s)

	dst := make([]float64, 2)
	require.NoError(t, op.Apply(dst, []float64{1, -1}))
	assert.InDelta(t, 1.0, dst[0], 1e-14, "first component of A*x")
	assert.InDelta(t, -2.0, dst[1], 1e-14, "second component of A*x")

	assert.Equal(t, 2, op.Dim())
	assert.True(t, op.Symmetric())
	assert.True(t, op.Real())
}

// TestDenseOperator_DimensionMismatch ensures mis-sized vectors error
// before any work is done.
func TestDenseOperator_DimensionMismatch(t *testing.T) {
	op := linop.Identity(3)
	err := op.Apply(make([]float64, 2), make([]float64, 3))
	assert.ErrorIs(t, err, linop.ErrDimensionMismatch)
}

// TestIdentity checks the identity operator is a no-op and exposes a unit
// diagonal.
func TestIdentity(t *testing.T) {
	op := linop.Identity(3)
	x := []float64{1.5, -2, 0.25}
	dst := make([]float64, 3)
	require.NoError(t, op.Apply(dst, x))
	assert.Equal(t, x, dst)
	assert.Equal(t, []float64{1, 1, 1}, op.Diagonal())
}

// TestDenseOperator_Sym exposes the backing matrix without copying, in
// contrast to Dense which materializes a copy.
func TestDenseOperator_Sym(t *testing.T) {
	s := mat.NewSymDense(2, []float64{
		2, 1,
		1, 3,
	})
	op := linop.NewDense(s)
	assert.Same(t, s, op.Sym())

	d := op.Dense()
	d.Set(0, 0, 99)
	assert.Equal(t, 2.0, op.Sym().At(0, 0), "Dense returns an independent copy")
}

// TestNewDenseFromSlice rejects mis-sized data and symmetrizes from the
// upper triangle.
func TestNewDenseFromSlice(t *testing.T) {
	_, err := linop.NewDenseFromSlice(2, []float64{1, 2, 3})
	assert.ErrorIs(t, err, linop.ErrDimensionMismatch)

	op, err := linop.NewDenseFromSlice(2, []float64{1, 2, 99, 4})
	require.NoError(t, err)
	d := op.Dense()
	assert.Equal(t, 2.0, d.At(0, 1))
	assert.Equal(t, 2.0, d.At(1, 0), "lower triangle follows the upper")
}
