package fixedpoint

import (
	"fmt"
)

// Linearizable is a Map that exposes its linearization at a point, the
// contract the implicit-differentiation layer needs. J = dg/dy is only
// ever applied as a linear operator, never materialized.
type Linearizable interface {
	Map
	// VJP computes dst = J' v at the point y (vector-Jacobian product
	// with respect to the iterate).
	VJP(dst, y, v []float64) error
	// ParamVJP computes v' dg/dtheta at the point y, one entry per
	// differentiable parameter of the map. The parameter manifest is
	// owned by the map; the returned slice is ordered accordingly.
	ParamVJP(y, v []float64) ([]float64, error)
}

// GradOptions configures the nested adjoint linear solve.
type GradOptions struct {
	// Tolerance is the relative residual of the adjoint system. Default 1e-8.
	Tolerance float64
	// Restart is the GMRES restart length. Default 30.
	Restart int
	// MaxMatvecs caps linearization applications. Default 200.
	MaxMatvecs int
}

// DefaultGradOptions returns the adjoint-solve defaults.
func DefaultGradOptions() GradOptions {
	return GradOptions{Tolerance: 1e-8, Restart: 30, MaxMatvecs: 200}
}

// Gradient computes dL/dtheta for a scalar function L of the fixed point,
// given seed = (dL/dy)' at y*. It solves the adjoint system
//
//	(I - J') a = seed
//
// at the fixed point by restarted GMRES and returns a' dg/dtheta. The cost
// is a bounded number of linearization applications, independent of how
// many forward iterations the solve needed.
//
// Maps that do not implement Linearizable yield ErrGradientUnsupported:
// the layer fails loudly rather than returning a plausible wrong gradient.
func Gradient(sol *Solution, seed []float64, opts GradOptions) ([]float64, error) {
	if sol == nil || sol.g == nil {
		return nil, fmt.Errorf("%w: nil solution", ErrBadConfig)
	}
	lin, ok := sol.g.(Linearizable)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no linearization", ErrGradientUnsupported, sol.g)
	}
	n := len(sol.Y)
	if len(seed) != n {
		return nil, fmt.Errorf("%w: seed dim %d, iterate dim %d", ErrBadConfig, len(seed), n)
	}
	if opts.Tolerance <= 0 || opts.Restart < 1 || opts.MaxMatvecs < 1 {
		return nil, fmt.Errorf("%w: non-positive adjoint solve budget", ErrBadConfig)
	}

	jtv := make([]float64, n)
	matvec := func(dst, v []float64) error {
		if err := lin.VJP(jtv, sol.Y, v); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			dst[i] = v[i] - jtv[i]
		}
		return nil
	}

	adj, relres, converged, err := gmres(matvec, seed, opts.Tolerance, opts.Restart, opts.MaxMatvecs)
	if err != nil {
		return nil, err
	}
	if !converged {
		return nil, fmt.Errorf("%w: relative residual %.3e", ErrAdjointNotConverged, relres)
	}
	return lin.ParamVJP(sol.Y, adj)
}

// FiniteDiffLinearization upgrades a parameterized map to Linearizable by
// central finite differences. Each VJP costs 2n map evaluations, so this
// is a small-system and testing tool; production maps should implement
// their linearization directly.
type FiniteDiffLinearization struct {
	// N is the iterate dimension.
	N int
	// Params is the typed manifest of differentiable parameters.
	Params []float64
	// EvalAt evaluates g(y; params) into dst.
	EvalAt func(dst, y, params []float64) error
	// Step is the central-difference step. Default 1e-6 when zero.
	Step float64
}

var _ Linearizable = (*FiniteDiffLinearization)(nil)

func (f *FiniteDiffLinearization) Dim() int { return f.N }

func (f *FiniteDiffLinearization) Eval(dst, y []float64) error {
	return f.EvalAt(dst, y, f.Params)
}

func (f *FiniteDiffLinearization) step() float64 {
	if f.Step > 0 {
		return f.Step
	}
	return 1e-6
}

// jvp computes dst = J u at y by a central difference along u.
func (f *FiniteDiffLinearization) jvp(dst, y, u []float64) error {
	h := f.step()
	n := f.N
	plus := make([]float64, n)
	minus := make([]float64, n)
	pt := make([]float64, n)
	for i := 0; i < n; i++ {
		pt[i] = y[i] + h*u[i]
	}
	if err := f.EvalAt(plus, pt, f.Params); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pt[i] = y[i] - h*u[i]
	}
	if err := f.EvalAt(minus, pt, f.Params); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		dst[i] = (plus[i] - minus[i]) / (2 * h)
	}
	return nil
}

// VJP assembles J' v column by column: (J' v)_i = (J e_i) . v.
func (f *FiniteDiffLinearization) VJP(dst, y, v []float64) error {
	n := f.N
	e := make([]float64, n)
	col := make([]float64, n)
	for i := 0; i < n; i++ {
		e[i] = 1
		if err := f.jvp(col, y, e); err != nil {
			return err
		}
		e[i] = 0
		var acc float64
		for p := 0; p < n; p++ {
			acc += col[p] * v[p]
		}
		dst[i] = acc
	}
	return nil
}

// ParamVJP computes v' dg/dtheta by one central difference per parameter.
func (f *FiniteDiffLinearization) ParamVJP(y, v []float64) ([]float64, error) {
	h := f.step()
	n := f.N
	out := make([]float64, len(f.Params))
	plus := make([]float64, n)
	minus := make([]float64, n)
	theta := append([]float64(nil), f.Params...)
	for j := range f.Params {
		theta[j] = f.Params[j] + h
		if err := f.EvalAt(plus, y, theta); err != nil {
			return nil, err
		}
		theta[j] = f.Params[j] - h
		if err := f.EvalAt(minus, y, theta); err != nil {
			return nil, err
		}
		theta[j] = f.Params[j]
		var acc float64
		for p := 0; p < n; p++ {
			acc += v[p] * (plus[p] - minus[p]) / (2 * h)
		}
		out[j] = acc
	}
	return out, nil
}
