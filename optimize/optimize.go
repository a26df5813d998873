// Package optimize minimizes a scalar model over its parameters while
// holding external parameters fixed, following the same forward/custom-
// backward contract as the fixed-point engine at smaller scale.
//
// The forward pass runs a descent method to a stationary point x* of
// model(x, y). The backward pass is deliberately restrictive: parameter
// gradients are obtained by re-evaluating the model gradient at x* with
// x* treated as a constant, which is exact when x* is a true stationary
// point. Any gradient contribution that would have to flow through x*
// itself is rejected with ErrGradientThroughArgmin instead of being
// silently approximated.
package optimize

import (
	"errors"
	"fmt"
	"math"
)

// Method selects the descent update.
type Method int

const (
	// LBFGS is the limited-memory BFGS two-loop recursion with a
	// backtracking line search.
	LBFGS Method = iota
	// GradientDescent is plain fixed-step descent.
	GradientDescent
	// Momentum is classical momentum SGD.
	Momentum
)

var (
	// ErrBadConfig indicates unusable options or mismatched dimensions.
	ErrBadConfig = errors.New("optimize: invalid configuration")

	// ErrGradientThroughArgmin indicates a nonzero gradient seed through
	// the argmin output x*. Propagating it would require the implicit
	// adjoint of the argmin, which this layer does not model; failing
	// loudly protects correctness at the cost of generality.
	ErrGradientThroughArgmin = errors.New("optimize: unimplemented gradient contribution through the argmin")

	// ErrGradientUnsupported indicates the model exposes no gradient with
	// respect to the external parameters.
	ErrGradientUnsupported = errors.New("optimize: model has no external-parameter gradient")
)

// Objective is the scalar model being minimized over x at fixed y.
type Objective interface {
	Eval(x, y []float64) (float64, error)
	// Grad computes dst = d model / dx at (x, y).
	Grad(dst, x, y []float64) error
}

// YGradienter is the optional external-parameter gradient capability the
// backward pass needs.
type YGradienter interface {
	// GradY computes dst = d model / dy at (x, y).
	GradY(dst, x, y []float64) error
}

// Options configures an Argmin call.
type Options struct {
	// Method selects the descent update. Default LBFGS.
	Method Method
	// LearningRate is the step scale for GradientDescent and Momentum,
	// and the initial trial step for the LBFGS line search. Default 1e-2.
	LearningRate float64
	// Momentum is the velocity retention coefficient for Momentum.
	Momentum float64
	// History is the LBFGS correction-pair window. Default 10.
	History int
	// MaxIterations bounds the descent loop. Default 100.
	MaxIterations int
	// MinImprovement stops the loop when the objective decreases by less
	// than this between iterations. Default 1e-6.
	MinImprovement float64
}

// DefaultOptions mirrors the reference forward options: L-BFGS with
// learning rate 1e-2, 100 iterations, 1e-6 improvement floor.
func DefaultOptions() Options {
	return Options{
		Method:         LBFGS,
		LearningRate:   1e-2,
		Momentum:       0.9,
		History:        10,
		MaxIterations:  100,
		MinImprovement: 1e-6,
	}
}

// Result is the outcome of an Argmin call. Converged reports whether the
// improvement floor was reached before the iteration budget.
type Result struct {
	Value      float64
	X          []float64
	Iterations int
	Converged  bool
}

// Argmin minimizes model(x, y) over x starting from x0, holding y fixed.
func Argmin(model Objective, x0, y []float64, opts Options) (*Result, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrBadConfig)
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("%w: empty starting point", ErrBadConfig)
	}
	if opts.MaxIterations < 1 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: non-positive budget or learning rate", ErrBadConfig)
	}
	switch opts.Method {
	case LBFGS, GradientDescent, Momentum:
	default:
		return nil, fmt.Errorf("%w: unknown method %d", ErrBadConfig, opts.Method)
	}

	n := len(x0)
	x := append([]float64(nil), x0...)
	grad := make([]float64, n)

	f, err := model.Eval(x, y)
	if err != nil {
		return nil, err
	}
	if err := model.Grad(grad, x, y); err != nil {
		return nil, err
	}

	var lb *lbfgsState
	if opts.Method == LBFGS {
		hist := opts.History
		if hist < 1 {
			hist = 10
		}
		lb = &lbfgsState{window: hist}
	}
	velocity := make([]float64, n)

	res := &Result{Value: f, X: x}
	for k := 0; k < opts.MaxIterations; k++ {
		res.Iterations = k + 1
		var fNew float64
		switch opts.Method {
		case GradientDescent:
			for i := range x {
				x[i] -= opts.LearningRate * grad[i]
			}
			fNew, err = model.Eval(x, y)
		case Momentum:
			for i := range x {
				velocity[i] = opts.Momentum*velocity[i] - opts.LearningRate*grad[i]
				x[i] += velocity[i]
			}
			fNew, err = model.Eval(x, y)
		case LBFGS:
			fNew, err = lb.step(model, x, y, grad, f, opts.LearningRate)
		}
		if err != nil {
			return nil, err
		}
		if err := model.Grad(grad, x, y); err != nil {
			return nil, err
		}
		if opts.Method == LBFGS {
			lb.record(x, grad)
		}
		improved := f - fNew
		f = fNew
		res.Value = f
		if math.Abs(improved) < opts.MinImprovement {
			res.Converged = true
			break
		}
	}
	return res, nil
}

// Gradient computes d(value*)/dy for a converged Result, given the
// upstream seeds d L / d value* (scalar) and d L / d x* (vector).
//
// The contract forbids sensitivity through x*: any nonzero component of
// seedX yields ErrGradientThroughArgmin. Otherwise the model gradient is
// re-evaluated at (x*, y) with x* constant, which equals the true total
// derivative because d model / dx vanishes at the stationary point.
func Gradient(model Objective, res *Result, y []float64, seedValue float64, seedX []float64) ([]float64, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil result", ErrBadConfig)
	}
	for i, v := range seedX {
		if v != 0 {
			return nil, fmt.Errorf("%w: seed component %d is %g", ErrGradientThroughArgmin, i, v)
		}
	}
	yg, ok := model.(YGradienter)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrGradientUnsupported, model)
	}
	out := make([]float64, len(y))
	if err := yg.GradY(out, res.X, y); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] *= seedValue
	}
	return out, nil
}
