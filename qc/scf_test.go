package qc_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/density"
	"github.com/floatingCatty/dqc/fixedpoint"
	"github.com/floatingCatty/dqc/qc"
)

func solveH2(t *testing.T, sys *qc.System, opts qc.SCFOptions) *qc.Calculation {
	t.Helper()
	calc, err := qc.Solve(sys, opts)
	require.NoError(t, err)
	require.True(t, calc.Converged)
	return calc
}

// TestSolve_H2STO3G runs the reference calculation: restricted
// Hartree-Fock for H2 in STO-3G at 1.4 bohr. The total energy is the
// standard literature value for this basis.
func TestSolve_H2STO3G(t *testing.T) {
	sys := h2STO3G(t)
	calc := solveH2(t, sys, qc.DefaultSCFOptions())

	assert.InDelta(t, -1.1167, calc.TotalEnergy, 2e-3)
	assert.InDelta(t, 1/bondLength, calc.NuclearEnergy, 1e-12)
	assert.Less(t, calc.ElectronicEnergy, 0.0)
	assert.Equal(t, 2, calc.NBasis)
	assert.Less(t, calc.ResidualNorm, 1e-6)

	// The converged density carries exactly two electrons in the overlap
	// metric.
	d := mat.NewSymDense(2, nil)
	for i := 0; i < 2; i++ {
		for j := i; j < 2; j++ {
			d.SetSym(i, j, calc.Density[i*2+j])
		}
	}
	tr, err := density.TraceProduct(d, sys.Overlap())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, tr, 1e-8)

	// Symmetric molecule: the two eigenvalues of a 2-basis H2 are the
	// bonding orbital below the antibonding one.
	require.Len(t, calc.Eigenvalues, 1)
	assert.Less(t, calc.Eigenvalues[0], 0.0, "bonding orbital is bound")
}

// TestSolve_MixingAgreement solves the same molecule under each mixing
// strategy; the converged energies must coincide.
func TestSolve_MixingAgreement(t *testing.T) {
	sys := h2STO3G(t)
	ref := solveH2(t, sys, qc.DefaultSCFOptions())

	for _, mixing := range []fixedpoint.Mixing{fixedpoint.Picard, fixedpoint.DIIS} {
		opts := qc.DefaultSCFOptions()
		opts.FixedPoint.Mixing = mixing
		opts.FixedPoint.MaxIterations = 200
		calc := solveH2(t, sys, opts)
		assert.InDeltaf(t, ref.TotalEnergy, calc.TotalEnergy, 1e-6, "mixing %d", mixing)
	}
}

// TestSolve_InitialDensity seeds the iteration from a converged density;
// the restart converges in a handful of steps to the same energy.
func TestSolve_InitialDensity(t *testing.T) {
	sys := h2STO3G(t)
	first := solveH2(t, sys, qc.DefaultSCFOptions())

	d := mat.NewSymDense(2, nil)
	for i := 0; i < 2; i++ {
		for j := i; j < 2; j++ {
			d.SetSym(i, j, first.Density[i*2+j])
		}
	}
	opts := qc.DefaultSCFOptions()
	opts.InitialDensity = d
	second := solveH2(t, sys, opts)

	assert.InDelta(t, first.TotalEnergy, second.TotalEnergy, 1e-8)
	assert.LessOrEqual(t, second.Iterations, first.Iterations)
}

// TestCalculation_SaveLoadRecheck round-trips a calculation through JSON
// and verifies the reloaded state is still a fixed point of this system.
func TestCalculation_SaveLoadRecheck(t *testing.T) {
	sys := h2STO3G(t)
	calc := solveH2(t, sys, qc.DefaultSCFOptions())

	var buf bytes.Buffer
	require.NoError(t, calc.Save(&buf))

	loaded, err := qc.LoadCalculation(&buf)
	require.NoError(t, err)
	assert.Equal(t, calc.NBasis, loaded.NBasis)
	assert.Equal(t, calc.TotalEnergy, loaded.TotalEnergy)
	assert.Equal(t, calc.Fock, loaded.Fock)
	assert.Nil(t, loaded.Solution(), "fixed-point handle is not persisted")

	res, err := sys.Recheck(loaded, qc.DefaultSCFOptions())
	require.NoError(t, err)
	assert.Less(t, res, 1e-5)
}

// TestRecheck_WrongSystem rejects a calculation from a different basis.
func TestRecheck_WrongSystem(t *testing.T) {
	sys := h2STO3G(t)
	calc := solveH2(t, sys, qc.DefaultSCFOptions())

	atoms := qc.HydrogenPair(bondLength)
	big, err := qc.NewSystem(atoms, qc.Basis631G(qc.Positions(atoms)), 2)
	require.NoError(t, err)

	_, err = big.Recheck(calc, qc.DefaultSCFOptions())
	assert.ErrorIs(t, err, qc.ErrBadSystem)
}

// TestGradient_ChargeDerivative compares the implicit-differentiation
// charge gradient dE/dZ against a central difference over full re-solves
// with a perturbed nuclear charge.
func TestGradient_ChargeDerivative(t *testing.T) {
	opts := qc.DefaultSCFOptions()
	opts.FixedPoint.Tolerance = 1e-10
	opts.FixedPoint.MaxIterations = 200

	sys := h2STO3G(t)
	calc, err := qc.Solve(sys, opts)
	require.NoError(t, err)
	require.True(t, calc.Converged)

	grad, err := qc.Gradient(sys, calc, opts, fixedpoint.DefaultGradOptions())
	require.NoError(t, err)
	require.Len(t, grad, 2)

	const h = 1e-4
	totalAt := func(z0 float64) float64 {
		atoms := qc.HydrogenPair(bondLength)
		atoms[0].Z = z0
		pert, err := qc.NewSystem(atoms, qc.STO3G(qc.Positions(qc.HydrogenPair(bondLength))), 2)
		require.NoError(t, err)
		c, err := qc.Solve(pert, opts)
		require.NoError(t, err)
		require.True(t, c.Converged)
		return c.TotalEnergy
	}
	fd := (totalAt(1+h) - totalAt(1-h)) / (2 * h)

	assert.InDelta(t, fd, grad[0], 1e-3)
	assert.InDelta(t, grad[0], grad[1], 1e-3, "equivalent nuclei carry equal gradients")
}

// TestGradient_RequiresHandle rejects calculations reloaded without their
// fixed-point solution.
func TestGradient_RequiresHandle(t *testing.T) {
	sys := h2STO3G(t)
	calc := solveH2(t, sys, qc.DefaultSCFOptions())

	var buf bytes.Buffer
	require.NoError(t, calc.Save(&buf))
	loaded, err := qc.LoadCalculation(&buf)
	require.NoError(t, err)

	_, err = qc.Gradient(sys, loaded, qc.DefaultSCFOptions(), fixedpoint.DefaultGradOptions())
	assert.ErrorIs(t, err, qc.ErrBadSystem)
}

// TestNormalizeOnGrid rescales against a quadrature representation of the
// density instead of the overlap trace.
func TestNormalizeOnGrid(t *testing.T) {
	d := mat.NewSymDense(2, []float64{
		0.5, 0.1,
		0.1, 0.5,
	})
	grid := qc.WeightedGrid{Weights: []float64{1, 1}}
	dens := func(d *mat.SymDense) qc.DensityInfo {
		return qc.DensityInfo{Value: []float64{d.At(0, 0), d.At(1, 1)}}
	}

	require.NoError(t, qc.NormalizeOnGrid(d, grid, dens, 2))
	assert.InDelta(t, 1.0, d.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, d.At(1, 1), 1e-12)
	assert.InDelta(t, 0.2, d.At(0, 1), 1e-12, "scalar rescale preserves direction")

	zero := mat.NewSymDense(2, nil)
	err := qc.NormalizeOnGrid(zero, grid, dens, 2)
	assert.ErrorIs(t, err, density.ErrZeroDensity)
}
