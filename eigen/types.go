// Package eigen solves the generalized symmetric eigenproblem
// A v = lambda M v for the k algebraically smallest eigenpairs, with
// M symmetric positive-definite.
//
// Two strategies are available behind a closed enum: Exact performs a dense
// transformation to a standard eigenproblem through M^(-1/2) and a full
// decomposition; Davidson expands a subspace using only the operators'
// Apply and is intended for large systems. Auto picks Exact below a
// small-system dimension cutoff and Davidson above it.
//
// Returned eigenvectors are M-orthonormal: Vi' M Vj = delta_ij.
//
// Degenerate clusters among the requested eigenvalues are split in the
// Exact path by a deterministic indexed diagonal shift before the final
// factorization. The Davidson path applies no shift: its real symmetric
// Ritz extraction already returns M-orthonormal vectors within a cluster,
// with the ordering fixed by the projected factorization.
package eigen

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Method selects the decomposition strategy.
type Method int

const (
	// Auto picks Exact below AutoExactCutoff and Davidson otherwise.
	Auto Method = iota
	// Exact performs a dense full decomposition. Small systems only.
	Exact
	// Davidson performs block subspace expansion through Apply.
	Davidson
)

// AutoExactCutoff is the basis dimension below which Auto dispatches to
// the dense Exact strategy.
const AutoExactCutoff = 100

var (
	// ErrBadConfig indicates an unusable request: k out of range,
	// mismatched operator dimensions or an unknown method. Raised before
	// any iteration starts.
	ErrBadConfig = errors.New("eigen: invalid configuration")

	// ErrSingularOverlap indicates the overlap operator M is numerically
	// singular, so no M-orthonormal basis exists. Fatal for the solve.
	ErrSingularOverlap = errors.New("eigen: near-singular overlap operator")

	// ErrNotConverged indicates the Davidson iteration exhausted its
	// restart budget before all requested residuals fell below tolerance.
	// Recoverable: the caller may retry with a larger budget.
	ErrNotConverged = errors.New("eigen: subspace iteration did not converge")
)

// Options configures a Solve call. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// Method selects the strategy. Default Auto.
	Method Method
	// Tolerance is the residual norm ||A v - lambda M v|| below which a
	// Davidson eigenpair counts as converged.
	Tolerance float64
	// MaxSubspace bounds the Davidson subspace before a restart.
	MaxSubspace int
	// MaxRestarts bounds the number of Davidson restart cycles.
	MaxRestarts int
	// DegeneracyGap is the eigenvalue spacing below which two states are
	// treated as degenerate and the deterministic symmetry-breaking shift
	// is applied.
	DegeneracyGap float64
	// DegeneracyShift is the magnitude of the indexed diagonal shift used
	// to split degenerate directions. Deterministic, no randomness.
	DegeneracyShift float64
	// OverlapFloor is the smallest acceptable eigenvalue of M before the
	// overlap counts as singular.
	OverlapFloor float64
}

// DefaultOptions returns the tolerances used throughout the SCF engine.
func DefaultOptions() Options {
	return Options{
		Method:          Auto,
		Tolerance:       1e-9,
		MaxSubspace:     0, // chosen from k at solve time
		MaxRestarts:     100,
		DegeneracyGap:   1e-12,
		DegeneracyShift: 1e-9,
		OverlapFloor:    1e-12,
	}
}

// Result holds the k requested eigenpairs sorted ascending by eigenvalue.
// Column i of Vectors corresponds to Values[i].
type Result struct {
	Values  []float64
	Vectors *mat.Dense
}
