package eigen

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/linop"
)

// Solve returns the k algebraically smallest eigenpairs of A v = lambda M v.
// A must be symmetric and M symmetric positive-definite. The returned
// eigenvectors satisfy Vi' M Vj = delta_ij.
func Solve(a, m linop.Operator, k int, opts Options) (Result, error) {
	if a == nil || m == nil {
		return Result{}, fmt.Errorf("%w: nil operator", ErrBadConfig)
	}
	n := a.Dim()
	if m.Dim() != n {
		return Result{}, fmt.Errorf("%w: A dim %d, M dim %d", ErrBadConfig, n, m.Dim())
	}
	if k < 1 || k > n {
		return Result{}, fmt.Errorf("%w: requested %d eigenpairs of a %d-dim problem", ErrBadConfig, k, n)
	}
	if !a.Symmetric() || !m.Symmetric() {
		return Result{}, fmt.Errorf("%w: both operators must be symmetric", ErrBadConfig)
	}

	method := opts.Method
	if method == Auto {
		if n < AutoExactCutoff {
			method = Exact
		} else {
			method = Davidson
		}
	}
	switch method {
	case Exact:
		return solveExact(a, m, k, opts)
	case Davidson:
		return solveDavidson(a, m, k, opts)
	default:
		return Result{}, fmt.Errorf("%w: unknown method %d", ErrBadConfig, method)
	}
}

// materialize returns a dense copy of the operator, using the Denser
// capability when present and column-by-column application otherwise.
func materialize(op linop.Operator) (*mat.Dense, error) {
	if d, ok := op.(linop.Denser); ok {
		return d.Dense(), nil
	}
	n := op.Dim()
	out := mat.NewDense(n, n, nil)
	e := make([]float64, n)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		if err := op.Apply(col, e); err != nil {
			return nil, err
		}
		e[j] = 0
		for i := 0; i < n; i++ {
			out.Set(i, j, col[i])
		}
	}
	return out, nil
}

// invSqrtOverlap computes M^(-1/2) by symmetric eigendecomposition.
// Eigenvalues at or below floor mean the basis is linearly dependent.
func invSqrtOverlap(m *mat.Dense, floor float64) (*mat.Dense, error) {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, fmt.Errorf("%w: overlap eigendecomposition failed", ErrSingularOverlap)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	invSqrt := make([]float64, n)
	for i, w := range vals {
		if w <= floor {
			return nil, fmt.Errorf("%w: overlap eigenvalue %.3e at index %d", ErrSingularOverlap, w, i)
		}
		invSqrt[i] = 1 / math.Sqrt(w)
	}
	diag := mat.NewDiagDense(n, invSqrt)
	out := mat.NewDense(n, n, nil)
	out.Mul(&vecs, diag)
	out.Mul(out, vecs.T())
	return out, nil
}

// solveExact transforms to a standard eigenproblem through X = M^(-1/2),
// performs a full dense decomposition and back-transforms so the returned
// vectors are M-orthonormal.
func solveExact(a, m linop.Operator, k int, opts Options) (Result, error) {
	ad, err := materialize(a)
	if err != nil {
		return Result{}, err
	}
	md, err := materialize(m)
	if err != nil {
		return Result{}, err
	}
	x, err := invSqrtOverlap(md, opts.OverlapFloor)
	if err != nil {
		return Result{}, err
	}
	n, _ := ad.Dims()

	transformed := mat.NewDense(n, n, nil)
	transformed.Mul(ad, x)
	transformed.Mul(x, transformed)

	vals, vecs, err := factorizeStd(transformed, n)
	if err != nil {
		return Result{}, err
	}

	// Split degenerate clusters with a deterministic indexed diagonal
	// shift and refactorize once. Keeps the eigenvectors real and the
	// ordering reproducible.
	if hasDegeneracy(vals, k, opts.DegeneracyGap) {
		for i := 0; i < n; i++ {
			transformed.Set(i, i, transformed.At(i, i)+opts.DegeneracyShift*float64(i+1))
		}
		vals, vecs, err = factorizeStd(transformed, n)
		if err != nil {
			return Result{}, err
		}
	}

	var back mat.Dense
	back.Mul(x, vecs)

	res := Result{
		Values:  append([]float64(nil), vals[:k]...),
		Vectors: mat.NewDense(n, k, nil),
	}
	res.Vectors.Copy(back.Slice(0, n, 0, k))
	return res, nil
}

// factorizeStd decomposes a symmetric dense matrix; eigenvalues come out
// ascending from gonum's EigenSym.
func factorizeStd(a *mat.Dense, n int) ([]float64, *mat.Dense, error) {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, nil, fmt.Errorf("%w: transformed eigendecomposition failed", ErrSingularOverlap)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	return vals, &vecs, nil
}

// hasDegeneracy reports whether any spacing among the lowest k+1
// eigenvalues falls below gap. The k+1th value matters: a cluster crossing
// the occupation boundary makes the selected subspace ill-defined.
func hasDegeneracy(vals []float64, k int, gap float64) bool {
	upper := k + 1
	if upper > len(vals) {
		upper = len(vals)
	}
	for i := 1; i < upper; i++ {
		if vals[i]-vals[i-1] < gap {
			return true
		}
	}
	return false
}
