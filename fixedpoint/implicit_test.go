package fixedpoint_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatingCatty/dqc/fixedpoint"
)

// linearParamMap is g(y) = A y + b*theta with a dense A. Its fixed point
// y*(theta) = theta * (I - A)^(-1) b has the closed-form sensitivity
// dy*/dtheta = (I - A)^(-1) b, which the implicit gradient must match.
type linearParamMap struct {
	a     [][]float64
	b     []float64
	theta float64
}

func (m *linearParamMap) Dim() int { return len(m.b) }

func (m *linearParamMap) Eval(dst, y []float64) error {
	for i := range dst {
		acc := m.b[i] * m.theta
		for j := range y {
			acc += m.a[i][j] * y[j]
		}
		dst[i] = acc
	}
	return nil
}

// VJP is exact for a linear map: J' v = A' v.
func (m *linearParamMap) VJP(dst, y, v []float64) error {
	for i := range dst {
		var acc float64
		for j := range v {
			acc += m.a[j][i] * v[j]
		}
		dst[i] = acc
	}
	return nil
}

func (m *linearParamMap) ParamVJP(y, v []float64) ([]float64, error) {
	var acc float64
	for i := range v {
		acc += v[i] * m.b[i]
	}
	return []float64{acc}, nil
}

func solveLinearMap(t *testing.T, m *linearParamMap) *fixedpoint.Solution {
	t.Helper()
	opts := fixedpoint.DefaultOptions()
	opts.Tolerance = 1e-12
	opts.MaxIterations = 500
	sol, err := fixedpoint.Solve(m, make([]float64, m.Dim()), opts)
	require.NoError(t, err)
	return sol
}

// TestGradient_MatchesFiniteDifference compares the implicit gradient of
// L = sum(y*) against a central difference over theta.
func TestGradient_MatchesFiniteDifference(t *testing.T) {
	m := &linearParamMap{
		a: [][]float64{
			{0.2, 0.1},
			{-0.1, 0.3},
		},
		b:     []float64{1, 2},
		theta: 1.5,
	}
	sol := solveLinearMap(t, m)

	// Seed for L = sum of iterate components.
	seed := []float64{1, 1}
	grad, err := fixedpoint.Gradient(sol, seed, fixedpoint.DefaultGradOptions())
	require.NoError(t, err)
	require.Len(t, grad, 1)

	// Central difference of L(theta) through full re-solves.
	const h = 1e-6
	sum := func(theta float64) float64 {
		mm := &linearParamMap{a: m.a, b: m.b, theta: theta}
		s := solveLinearMap(t, mm)
		var acc float64
		for _, v := range s.Y {
			acc += v
		}
		return acc
	}
	fd := (sum(m.theta+h) - sum(m.theta-h)) / (2 * h)

	assert.InDelta(t, fd, grad[0], 1e-5)
}

// TestGradient_FiniteDiffLinearization checks the finite-difference
// fallback agrees with the exact linearization on the same map.
func TestGradient_FiniteDiffLinearization(t *testing.T) {
	exact := &linearParamMap{
		a: [][]float64{
			{0.2, 0.1},
			{-0.1, 0.3},
		},
		b:     []float64{1, 2},
		theta: 1.5,
	}
	sol := solveLinearMap(t, exact)
	seed := []float64{0.5, -1}

	want, err := fixedpoint.Gradient(sol, seed, fixedpoint.DefaultGradOptions())
	require.NoError(t, err)

	fd := &fixedpoint.FiniteDiffLinearization{
		N:      2,
		Params: []float64{exact.theta},
		EvalAt: func(dst, y, params []float64) error {
			mm := &linearParamMap{a: exact.a, b: exact.b, theta: params[0]}
			return mm.Eval(dst, y)
		},
	}
	fdOpts := fixedpoint.DefaultOptions()
	fdOpts.Tolerance = 1e-12
	fdOpts.MaxIterations = 500
	fdSol, err := fixedpoint.Solve(fd, make([]float64, 2), fdOpts)
	require.NoError(t, err)

	got, err := fixedpoint.Gradient(fdSol, seed, fixedpoint.DefaultGradOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, want[0], got[0], 1e-4)
}

// TestGradient_Unsupported fails loudly for maps without a linearization.
func TestGradient_Unsupported(t *testing.T) {
	g := fixedpoint.MapFunc{
		N: 2,
		F: func(dst, y []float64) error {
			for i := range y {
				dst[i] = 0.5*y[i] + 1
			}
			return nil
		},
	}
	sol, err := fixedpoint.Solve(g, []float64{0, 0}, fixedpoint.DefaultOptions())
	require.NoError(t, err)

	_, err = fixedpoint.Gradient(sol, []float64{1, 1}, fixedpoint.DefaultGradOptions())
	assert.ErrorIs(t, err, fixedpoint.ErrGradientUnsupported)
}

// TestGradient_AdjointBudget surfaces ErrAdjointNotConverged when the
// matvec budget cannot reach tolerance.
func TestGradient_AdjointBudget(t *testing.T) {
	m := &linearParamMap{
		a: [][]float64{
			{0.9, 0.05},
			{0.05, 0.9},
		},
		b:     []float64{1, 1},
		theta: 1,
	}
	sol := solveLinearMap(t, m)

	opts := fixedpoint.GradOptions{Tolerance: 1e-14, Restart: 1, MaxMatvecs: 1}
	_, err := fixedpoint.Gradient(sol, []float64{1, 0}, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fixedpoint.ErrAdjointNotConverged))
}

// TestGradient_BadSeed rejects a mis-sized seed.
func TestGradient_BadSeed(t *testing.T) {
	m := &linearParamMap{
		a:     [][]float64{{0.5}},
		b:     []float64{1},
		theta: 1,
	}
	sol := solveLinearMap(t, m)

	_, err := fixedpoint.Gradient(sol, []float64{1, 2}, fixedpoint.DefaultGradOptions())
	assert.ErrorIs(t, err, fixedpoint.ErrBadConfig)
}
