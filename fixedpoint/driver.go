package fixedpoint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Solve iterates y_{k+1} from the configured mixing update until the
// residual r_k = g(y_k) - y_k drops below tolerance, the residual diverges,
// or the iteration budget runs out.
//
// A Solution is returned in every terminal state. On Converged the error
// is nil; on Diverged it wraps ErrDiverged and on MaxIterExceeded it wraps
// ErrNotConverged, so the caller decides whether the best-effort state is
// usable or whether to resume from Solution.Y with a larger budget.
func Solve(g Map, y0 []float64, opts Options) (*Solution, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil map", ErrBadConfig)
	}
	if g.Dim() != len(y0) {
		return nil, fmt.Errorf("%w: map dim %d, initial iterate %d", ErrBadConfig, g.Dim(), len(y0))
	}
	if err := opts.validate(len(y0)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	n := len(y0)
	y := append([]float64(nil), y0...)
	gy := make([]float64, n)
	r := make([]float64, n)

	hist := newRing(opts.History)
	mix := newMixer(opts.Mixing)

	sol := &Solution{Status: Iterating, g: g}
	prevNorm := math.Inf(1)
	growing := 0

	for k := 0; k < opts.MaxIterations; k++ {
		if err := g.Eval(gy, y); err != nil {
			return nil, err
		}
		var norm float64
		for i := 0; i < n; i++ {
			r[i] = gy[i] - y[i]
			norm += r[i] * r[i]
		}
		norm = math.Sqrt(norm)

		sol.Iterations = k + 1
		freeze(sol, y, r, norm)

		if norm < opts.Tolerance {
			sol.Status = Converged
			return sol, nil
		}
		if norm > prevNorm {
			growing++
			if growing >= opts.DivergenceWindow {
				sol.Status = Diverged
				return sol, fmt.Errorf("%w: residual %.3e after %d iterations", ErrDiverged, norm, k+1)
			}
		} else {
			growing = 0
		}
		prevNorm = norm

		hist.push(y, r)
		mix.next(y, hist, opts.Alpha)
	}

	sol.Status = MaxIterExceeded
	return sol, fmt.Errorf("%w: residual %.3e after %d iterations",
		ErrNotConverged, sol.ResidualNorm, sol.Iterations)
}

// freeze copies the terminal candidates into the solution.
func freeze(sol *Solution, y, r []float64, norm float64) {
	if sol.Y == nil {
		sol.Y = make([]float64, len(y))
		sol.Residual = make([]float64, len(r))
	}
	copy(sol.Y, y)
	copy(sol.Residual, r)
	sol.ResidualNorm = norm
	sq := make([]float64, len(r))
	for i, v := range r {
		sq[i] = v * v
	}
	sol.ResidualRMS = math.Sqrt(stat.Mean(sq, nil))
}
