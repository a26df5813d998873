package eigen

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/linop"
)

// dropTol is the M-norm below which a candidate expansion direction is
// considered linearly dependent on the subspace and dropped.
const dropTol = 1e-10

// subspace carries the Davidson search space together with its cached
// operator images, so projections and M-orthogonalization never reapply
// the operators to old directions.
type subspace struct {
	a, m linop.Operator
	v    [][]float64 // M-orthonormal directions
	av   [][]float64 // A*v
	mv   [][]float64 // M*v
}

// push M-orthogonalizes t against the current space and appends it.
// Returns false when t is linearly dependent and was dropped.
func (s *subspace) push(t []float64) (bool, error) {
	n := len(t)
	// Two Gram-Schmidt passes for numerical safety.
	for pass := 0; pass < 2; pass++ {
		for j := range s.v {
			c := dot(s.mv[j], t)
			axpy(-c, s.v[j], t)
		}
	}
	mt := make([]float64, n)
	if err := s.m.Apply(mt, t); err != nil {
		return false, err
	}
	norm := math.Sqrt(dot(t, mt))
	if norm < dropTol {
		return false, nil
	}
	scale(1/norm, t)
	scale(1/norm, mt)
	at := make([]float64, n)
	if err := s.a.Apply(at, t); err != nil {
		return false, err
	}
	s.v = append(s.v, t)
	s.av = append(s.av, at)
	s.mv = append(s.mv, mt)
	return true, nil
}

// solveDavidson runs block subspace expansion using only the operators'
// Apply. It converges when every requested pair has residual
// ||A x - theta M x|| below tolerance, restarts when the subspace hits
// MaxSubspace, and reports ErrNotConverged after MaxRestarts cycles.
func solveDavidson(a, m linop.Operator, k int, opts Options) (Result, error) {
	n := a.Dim()
	maxSub := opts.MaxSubspace
	if maxSub <= 0 {
		maxSub = 8 * k
	}
	if maxSub < 2*k {
		maxSub = 2 * k
	}
	if maxSub > n {
		maxSub = n
	}

	diagA, diagM := operatorDiag(a), operatorDiag(m)

	sp := &subspace{a: a, m: m}
	for _, idx := range seedIndices(n, k, diagA, diagM) {
		t := make([]float64, n)
		t[idx] = 1
		if _, err := sp.push(t); err != nil {
			return Result{}, err
		}
	}

	worst := math.Inf(1)
	for restart := 0; restart < opts.MaxRestarts; restart++ {
		for len(sp.v) <= maxSub {
			theta, ritz, aRitz, mRitz, err := ritzExtract(sp, k)
			if err != nil {
				return Result{}, err
			}

			resNorms := make([]float64, k)
			residuals := make([][]float64, k)
			for i := 0; i < k; i++ {
				r := make([]float64, n)
				for p := 0; p < n; p++ {
					r[p] = aRitz[i][p] - theta[i]*mRitz[i][p]
				}
				residuals[i] = r
				resNorms[i] = math.Sqrt(dot(r, r))
			}
			worst = slices.Max(resNorms)
			if worst < opts.Tolerance {
				return packResult(n, k, theta, ritz), nil
			}

			grew := false
			for i := 0; i < k; i++ {
				if resNorms[i] < opts.Tolerance {
					continue
				}
				precondition(residuals[i], theta[i], diagA, diagM)
				ok, err := sp.push(residuals[i])
				if err != nil {
					return Result{}, err
				}
				grew = grew || ok
			}
			if !grew || len(sp.v) >= maxSub {
				// Collapse onto the current Ritz vectors and restart.
				fresh := &subspace{a: a, m: m}
				for i := 0; i < k; i++ {
					if _, err := fresh.push(ritz[i]); err != nil {
						return Result{}, err
					}
				}
				sp = fresh
				break
			}
		}
	}
	return Result{}, fmt.Errorf("%w: worst residual %.3e after %d restarts",
		ErrNotConverged, worst, opts.MaxRestarts)
}

// ritzExtract solves the projected problem on the M-orthonormal subspace
// (so the projected overlap is the identity) and assembles the k lowest
// Ritz pairs together with their operator images.
func ritzExtract(sp *subspace, k int) (theta []float64, ritz, aRitz, mRitz [][]float64, err error) {
	dim := len(sp.v)
	if dim < k {
		return nil, nil, nil, nil, fmt.Errorf("%w: subspace collapsed below %d directions", ErrNotConverged, k)
	}
	proj := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			proj.SetSym(i, j, dot(sp.v[i], sp.av[j]))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(proj, true) {
		return nil, nil, nil, nil, fmt.Errorf("%w: projected eigendecomposition failed", ErrNotConverged)
	}
	vals := eig.Values(nil)
	var u mat.Dense
	eig.VectorsTo(&u)

	n := len(sp.v[0])
	theta = append([]float64(nil), vals[:k]...)
	ritz = combine(n, k, &u, sp.v)
	aRitz = combine(n, k, &u, sp.av)
	mRitz = combine(n, k, &u, sp.mv)
	return theta, ritz, aRitz, mRitz, nil
}

// combine forms the first k columns of basis * U.
func combine(n, k int, u *mat.Dense, basis [][]float64) [][]float64 {
	out := make([][]float64, k)
	for i := 0; i < k; i++ {
		x := make([]float64, n)
		for j := range basis {
			axpy(u.At(j, i), basis[j], x)
		}
		out[i] = x
	}
	return out
}

// precondition applies the Jacobi (diagonal) preconditioner in place when
// operator diagonals are available.
func precondition(r []float64, theta float64, diagA, diagM []float64) {
	if diagA == nil || diagM == nil {
		return
	}
	for p := range r {
		d := diagA[p] - theta*diagM[p]
		if math.Abs(d) < dropTol {
			d = math.Copysign(dropTol, d)
		}
		r[p] /= d
	}
}

// seedIndices picks the unit-vector starting block: the k smallest
// diagonal Rayleigh quotients when diagonals are available, the first k
// coordinates otherwise.
func seedIndices(n, k int, diagA, diagM []float64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if diagA != nil && diagM != nil {
		sort.SliceStable(idx, func(p, q int) bool {
			return diagA[idx[p]]/diagM[idx[p]] < diagA[idx[q]]/diagM[idx[q]]
		})
	}
	return idx[:k]
}

func operatorDiag(op linop.Operator) []float64 {
	if d, ok := op.(linop.Diagonaler); ok {
		return d.Diagonal()
	}
	return nil
}

func packResult(n, k int, theta []float64, ritz [][]float64) Result {
	vecs := mat.NewDense(n, k, nil)
	for i := 0; i < k; i++ {
		for p := 0; p < n; p++ {
			vecs.Set(p, i, ritz[i][p])
		}
	}
	return Result{Values: theta, Vectors: vecs}
}

func dot(a, b []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
}

func axpy(alpha float64, x, y []float64) {
	for i := range y {
		y[i] += alpha * x[i]
	}
}

func scale(alpha float64, x []float64) {
	for i := range x {
		x[i] *= alpha
	}
}
