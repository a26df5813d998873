// Package fixedpoint finds self-consistent solutions y* = g(y*) of an
// iteration map and differentiates them implicitly.
//
// The forward driver runs y_{k+1} from a quasi-Newton mixing update over a
// bounded history of past (iterate, residual) pairs, with plain damped
// substitution and Pulay (DIIS) extrapolation available behind the same
// closed enum. The backward pass never unrolls the iteration trace: given
// a converged Solution whose map exposes its linearization, Gradient
// solves the adjoint system (I - J') a = seed at the fixed point and
// contracts a against dg/dtheta, so the gradient cost is a handful of map
// linearizations regardless of how many forward iterations were needed.
//
// A solve owns its state exclusively: a Solution must not be shared
// between concurrent Solve calls. Iterations are strictly sequential and
// bit-reproducible for identical inputs; there is no randomized restart
// anywhere in the driver. Batches of independent systems are expressed by
// looping solves, not by a tensor batch dimension.
package fixedpoint

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Mixing selects the acceleration strategy for the forward iteration.
type Mixing int

const (
	// Picard is damped substitution: y' = y - Alpha*r.
	Picard Mixing = iota
	// Broyden is a limited-memory inverse-Jacobian update (Broyden's
	// second method) over the history window.
	Broyden
	// DIIS is Pulay extrapolation: the linear combination of history
	// iterates whose combined residual has minimal norm.
	DIIS
)

var (
	// ErrBadConfig indicates unusable options or mismatched dimensions,
	// detected before the first iteration.
	ErrBadConfig = errors.New("fixedpoint: invalid configuration")

	// ErrNotConverged indicates the iteration budget ran out before the
	// residual fell below tolerance. Recoverable: the returned Solution
	// carries the last iterate and residual, and a new solve may resume
	// from it.
	ErrNotConverged = errors.New("fixedpoint: not converged within iteration budget")

	// ErrDiverged indicates the residual grew for DivergenceWindow
	// consecutive steps and the driver aborted early.
	ErrDiverged = errors.New("fixedpoint: residual diverging")

	// ErrAdjointNotConverged indicates the nested linear solve of the
	// adjoint system did not reach its tolerance.
	ErrAdjointNotConverged = errors.New("fixedpoint: adjoint solve not converged")

	// ErrGradientUnsupported indicates a gradient was requested from a
	// map that does not expose its linearization. Raised loudly instead
	// of returning an approximate gradient.
	ErrGradientUnsupported = errors.New("fixedpoint: map does not support implicit gradients")
)

// Map is one application of the self-consistency iteration
// y -> g(y), e.g. diagonalize, rebuild the density, reassemble the
// potential. Eval must not retain dst or y.
type Map interface {
	Dim() int
	Eval(dst, y []float64) error
}

// MapFunc adapts a plain function to the Map interface.
type MapFunc struct {
	N int
	F func(dst, y []float64) error
}

func (m MapFunc) Dim() int                    { return m.N }
func (m MapFunc) Eval(dst, y []float64) error { return m.F(dst, y) }

// Status is the terminal state of the driver's state machine.
type Status int

const (
	Iterating Status = iota
	Converged
	Diverged
	MaxIterExceeded
)

func (s Status) String() string {
	switch s {
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case MaxIterExceeded:
		return "max-iterations-exceeded"
	default:
		return "unknown"
	}
}

// Options configures a Solve call.
type Options struct {
	// Mixing selects the acceleration strategy. Default Broyden.
	Mixing Mixing
	// Alpha scales the zeroth-order inverse Jacobian: the first step and
	// the Picard update are y' = y - Alpha*r. Default -0.5.
	Alpha float64
	// History is the capacity of the (iterate, residual) window the
	// quasi-Newton update works from. Default 5.
	History int
	// Tolerance is the residual 2-norm below which the iteration counts
	// as converged. Default 1e-6.
	Tolerance float64
	// MaxIterations bounds the outer loop. Default 50.
	MaxIterations int
	// DivergenceWindow is the number of consecutive residual increases
	// after which the driver aborts with ErrDiverged. Default 3.
	DivergenceWindow int
}

// DefaultOptions mirrors the forward options of the reference SCF setup:
// Broyden mixing with alpha -0.5 and a 50-iteration budget.
func DefaultOptions() Options {
	return Options{
		Mixing:           Broyden,
		Alpha:            -0.5,
		History:          5,
		Tolerance:        1e-6,
		MaxIterations:    50,
		DivergenceWindow: 3,
	}
}

func (o Options) validate(dim int) error {
	if dim < 1 {
		return errors.New("fixedpoint: invalid configuration: empty iterate")
	}
	if o.Tolerance <= 0 {
		return errors.New("fixedpoint: invalid configuration: non-positive tolerance")
	}
	if o.MaxIterations < 1 {
		return errors.New("fixedpoint: invalid configuration: non-positive iteration budget")
	}
	if o.History < 1 {
		return errors.New("fixedpoint: invalid configuration: history window below 1")
	}
	if o.Mixing != Picard && o.Mixing != Broyden && o.Mixing != DIIS {
		return errors.New("fixedpoint: invalid configuration: unknown mixing method")
	}
	return nil
}

// Solution is the frozen terminal state of a solve. It retains the map so
// the implicit-differentiation layer can linearize at the fixed point.
type Solution struct {
	// Y is the terminal iterate.
	Y []float64
	// Residual is g(Y) - Y at the terminal iterate.
	Residual []float64
	// ResidualNorm is the 2-norm of Residual.
	ResidualNorm float64
	// ResidualRMS is the root-mean-square of Residual, the
	// size-independent convergence figure reported in logs.
	ResidualRMS float64
	// Iterations is the number of outer steps taken.
	Iterations int
	// Status is the terminal driver state.
	Status Status

	g Map
}

// Map returns the iteration map the solution was produced from.
func (s *Solution) Map() Map { return s.g }

// CheckFixedPoint re-evaluates the residual norm ||g(y*) - y*||, e.g.
// after reloading a persisted solution.
func (s *Solution) CheckFixedPoint() (float64, error) {
	gy := make([]float64, len(s.Y))
	if err := s.g.Eval(gy, s.Y); err != nil {
		return 0, err
	}
	v := mat.NewVecDense(len(gy), gy)
	v.SubVec(v, mat.NewVecDense(len(s.Y), s.Y))
	return mat.Norm(v, 2), nil
}
