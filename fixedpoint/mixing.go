package fixedpoint

import (
	"gonum.org/v1/gonum/mat"
)

// mixer proposes the next iterate from the current (y, r) and the history
// window. Implementations are pure functions over the ring contents.
type mixer interface {
	next(dst []float64, hist *ring, alpha float64)
}

func newMixer(m Mixing) mixer {
	switch m {
	case Broyden:
		return broydenMixer{}
	case DIIS:
		return diisMixer{}
	default:
		return picardMixer{}
	}
}

// picardMixer is damped substitution: y' = y - alpha*r. With the default
// alpha of -0.5 this is half-step underrelaxation of plain iteration.
type picardMixer struct{}

func (picardMixer) next(dst []float64, hist *ring, alpha float64) {
	ps := hist.snapshot()
	last := ps[len(ps)-1]
	for i := range dst {
		dst[i] = last.y[i] - alpha*last.r[i]
	}
}

// broydenMixer applies a limited-memory variant of Broyden's second
// method. The inverse-Jacobian approximation of f(y) = g(y) - y starts at
// alpha*I and accumulates one rank-one correction per history difference:
//
//	H_{k+1} = H_k + (s_k - H_k t_k) t_k' / (t_k' t_k)
//
// with s_k = y_{k+1} - y_k and t_k = r_{k+1} - r_k. The update step is the
// quasi-Newton step y' = y - H r, rebuilt from the window each call so the
// mixer carries no state of its own.
type broydenMixer struct{}

func (broydenMixer) next(dst []float64, hist *ring, alpha float64) {
	ps := hist.snapshot()
	last := ps[len(ps)-1]
	n := len(last.y)
	m := len(ps) - 1 // number of difference pairs

	// Correction pairs c_k, d_k such that H = alpha*I + sum c_k d_k'.
	cs := make([][]float64, 0, m)
	ds := make([][]float64, 0, m)
	applyH := func(dst, v []float64) {
		for i := range dst {
			dst[i] = alpha * v[i]
		}
		for k := range cs {
			coef := dotVec(ds[k], v)
			for i := range dst {
				dst[i] += coef * cs[k][i]
			}
		}
	}

	ht := make([]float64, n)
	for k := 0; k < m; k++ {
		s := make([]float64, n)
		t := make([]float64, n)
		for i := 0; i < n; i++ {
			s[i] = ps[k+1].y[i] - ps[k].y[i]
			t[i] = ps[k+1].r[i] - ps[k].r[i]
		}
		tt := dotVec(t, t)
		if tt == 0 {
			continue
		}
		applyH(ht, t)
		c := make([]float64, n)
		for i := 0; i < n; i++ {
			c[i] = (s[i] - ht[i]) / tt
		}
		cs = append(cs, c)
		ds = append(ds, t)
	}

	applyH(dst, last.r)
	for i := range dst {
		dst[i] = last.y[i] - dst[i]
	}
}

// diisMixer performs Pulay extrapolation: solve for the coefficients c
// with sum(c)=1 minimizing ||sum c_i r_i|| via the bordered overlap
// system
//
//	| B  -1 | |c|   | 0|
//	|-1'  0 | |l| = |-1|
//
// with B_ij = r_i . r_j, then mix y' = sum c_i (y_i - alpha r_i). On a
// singular B (early iterations, collinear residuals) it falls back to the
// damped Picard step.
type diisMixer struct{}

func (diisMixer) next(dst []float64, hist *ring, alpha float64) {
	ps := hist.snapshot()
	m := len(ps)
	if m < 2 {
		picardMixer{}.next(dst, hist, alpha)
		return
	}

	dim := m + 1
	b := mat.NewDense(dim, dim, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			b.Set(i, j, dotVec(ps[i].r, ps[j].r))
		}
		b.Set(i, m, -1)
		b.Set(m, i, -1)
	}
	rhs := mat.NewVecDense(dim, nil)
	rhs.SetVec(m, -1)

	var lu mat.LU
	lu.Factorize(b)
	var coefs mat.VecDense
	if err := lu.SolveVecTo(&coefs, false, rhs); err != nil {
		picardMixer{}.next(dst, hist, alpha)
		return
	}

	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < m; i++ {
		c := coefs.AtVec(i)
		for p := range dst {
			dst[p] += c * (ps[i].y[p] - alpha*ps[i].r[p])
		}
	}
}

func dotVec(a, b []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
}
