// Package density builds and normalizes closed-shell density matrices from
// occupied eigenvectors.
package density

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/linop"
)

// ErrZeroDensity indicates the density trace against the overlap vanished,
// leaving the normalization factor undefined. Fatal: continuing would
// inject NaN into the SCF loop.
var ErrZeroDensity = errors.New("density: trace against overlap is numerically zero")

// zeroTraceTol is the trace magnitude below which normalization is
// considered undefined.
const zeroTraceTol = 1e-14

// Build forms the closed-shell density matrix D = 2 * sum_i v_i v_i' over
// the occupied orbitals, the columns of vectors. The factor 2 is the
// double occupancy of a restricted closed-shell state.
func Build(vectors *mat.Dense) *mat.SymDense {
	n, occ := vectors.Dims()
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var acc float64
			for o := 0; o < occ; o++ {
				acc += vectors.At(i, o) * vectors.At(j, o)
			}
			d.SetSym(i, j, 2*acc)
		}
	}
	return d
}

// TraceProduct computes trace(D*M), the particle count encoded by D in the
// metric of the overlap operator M.
func TraceProduct(d *mat.SymDense, m linop.Operator) (float64, error) {
	n := d.SymmetricDim()
	if m.Dim() != n {
		return 0, fmt.Errorf("density: overlap dim %d does not match density dim %d", m.Dim(), n)
	}
	row := make([]float64, n)
	col := make([]float64, n)
	var tr float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[j] = d.At(i, j)
		}
		if err := m.Apply(col, row); err != nil {
			return 0, err
		}
		tr += col[i]
	}
	return tr, nil
}

// Normalize rescales D in place so that trace(D*M) equals target. The
// rescale is a pure scalar multiplication; it preserves symmetry and the
// occupied subspace. A vanishing trace yields ErrZeroDensity.
func Normalize(d *mat.SymDense, m linop.Operator, target float64) error {
	tr, err := TraceProduct(d, m)
	if err != nil {
		return err
	}
	if tr < zeroTraceTol && tr > -zeroTraceTol {
		return fmt.Errorf("%w: trace %.3e, target %g", ErrZeroDensity, tr, target)
	}
	factor := target / tr
	n := d.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.SetSym(i, j, d.At(i, j)*factor)
		}
	}
	return nil
}
