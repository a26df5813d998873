package fixedpoint

import (
	"math"
)

// gmres solves A x = b for the linear operator given only by matvec, using
// restarted GMRES with Givens rotations. The tolerance is relative to
// ||b||; maxMatvecs caps the total number of operator applications across
// restarts. Returns the iterate in any case together with the achieved
// relative residual and whether it met the tolerance.
func gmres(matvec func(dst, v []float64) error, b []float64, tol float64, restart, maxMatvecs int) (x []float64, relres float64, converged bool, err error) {
	n := len(b)
	x = make([]float64, n)

	bnorm := norm2(b)
	if bnorm == 0 {
		return x, 0, true, nil
	}

	v := make([][]float64, restart+1)
	for i := range v {
		v[i] = make([]float64, n)
	}
	h := make([][]float64, restart+1)
	for i := range h {
		h[i] = make([]float64, restart)
	}
	cs := make([]float64, restart)
	sn := make([]float64, restart)
	s := make([]float64, restart+1)

	w := make([]float64, n)
	used := 0
	relres = 1.0

	for used < maxMatvecs {
		// r = b - A x
		if err := matvec(w, x); err != nil {
			return nil, 0, false, err
		}
		used++
		for i := 0; i < n; i++ {
			v[0][i] = b[i] - w[i]
		}
		beta := norm2(v[0])
		relres = beta / bnorm
		if relres < tol {
			return x, relres, true, nil
		}
		for i := 0; i < n; i++ {
			v[0][i] /= beta
		}
		for i := range s {
			s[i] = 0
		}
		s[0] = beta

		j := 0
		for ; j < restart && used < maxMatvecs; j++ {
			if err := matvec(w, v[j]); err != nil {
				return nil, 0, false, err
			}
			used++
			// Arnoldi with modified Gram-Schmidt.
			for i := 0; i <= j; i++ {
				h[i][j] = dotVec(w, v[i])
				for p := 0; p < n; p++ {
					w[p] -= h[i][j] * v[i][p]
				}
			}
			h[j+1][j] = norm2(w)
			breakdown := h[j+1][j] < 1e-14*bnorm
			if !breakdown {
				for p := 0; p < n; p++ {
					v[j+1][p] = w[p] / h[j+1][j]
				}
			}

			// Apply accumulated rotations, then zero the subdiagonal.
			for i := 0; i < j; i++ {
				t := cs[i]*h[i][j] + sn[i]*h[i+1][j]
				h[i+1][j] = -sn[i]*h[i][j] + cs[i]*h[i+1][j]
				h[i][j] = t
			}
			cs[j], sn[j] = givens(h[j][j], h[j+1][j])
			h[j][j] = cs[j]*h[j][j] + sn[j]*h[j+1][j]
			h[j+1][j] = 0
			s[j+1] = -sn[j] * s[j]
			s[j] = cs[j] * s[j]

			relres = math.Abs(s[j+1]) / bnorm
			if relres < tol || breakdown {
				j++
				break
			}
		}

		// Back-substitute the triangular system and update x.
		yk := make([]float64, j)
		for i := j - 1; i >= 0; i-- {
			sum := s[i]
			for p := i + 1; p < j; p++ {
				sum -= h[i][p] * yk[p]
			}
			yk[i] = sum / h[i][i]
		}
		for i := 0; i < j; i++ {
			for p := 0; p < n; p++ {
				x[p] += yk[i] * v[i][p]
			}
		}
		if relres < tol {
			return x, relres, true, nil
		}
	}
	return x, relres, false, nil
}

func givens(a, b float64) (c, s float64) {
	if b == 0 {
		return 1, 0
	}
	if math.Abs(b) > math.Abs(a) {
		t := a / b
		s = 1 / math.Sqrt(1+t*t)
		c = t * s
		return c, s
	}
	t := b / a
	c = 1 / math.Sqrt(1+t*t)
	s = t * c
	return c, s
}

func norm2(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
