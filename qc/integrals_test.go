package qc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatingCatty/dqc/qc"
)

const bondLength = 1.4 // bohr, near the H2 equilibrium

func h2STO3G(t *testing.T) *qc.System {
	t.Helper()
	atoms := qc.HydrogenPair(bondLength)
	sys, err := qc.NewSystem(atoms, qc.STO3G(qc.Positions(atoms)), 2)
	require.NoError(t, err)
	return sys
}

// TestOverlapMatrix_Normalized checks contracted STO-3G functions come out
// unit-normalized and overlap matrix entries stay in (0, 1) off diagonal.
func TestOverlapMatrix_Normalized(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	s := qc.OverlapMatrix(qc.STO3G(qc.Positions(atoms)))

	assert.InDelta(t, 1.0, s.At(0, 0), 1e-6)
	assert.InDelta(t, 1.0, s.At(1, 1), 1e-6)
	assert.Greater(t, s.At(0, 1), 0.0)
	assert.Less(t, s.At(0, 1), 1.0)
	assert.Equal(t, s.At(0, 1), s.At(1, 0))
}

// TestOverlapMatrix_DecaysWithDistance pulls the nuclei apart and requires
// the off-diagonal overlap to shrink.
func TestOverlapMatrix_DecaysWithDistance(t *testing.T) {
	near := qc.OverlapMatrix(qc.STO3G(qc.Positions(qc.HydrogenPair(1.0))))
	far := qc.OverlapMatrix(qc.STO3G(qc.Positions(qc.HydrogenPair(4.0))))
	assert.Greater(t, near.At(0, 1), far.At(0, 1))
}

// TestKineticMatrix_PositiveDiagonal: kinetic energy integrals of a
// normalized function are strictly positive.
func TestKineticMatrix_PositiveDiagonal(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	k := qc.KineticMatrix(qc.STO3G(qc.Positions(atoms)))
	assert.Greater(t, k.At(0, 0), 0.0)
	assert.InDelta(t, k.At(0, 0), k.At(1, 1), 1e-12, "equivalent centers")
}

// TestNuclearRepulsion is Z_a Z_b / r for a diatomic.
func TestNuclearRepulsion(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	e := qc.NuclearRepulsion(atoms, []float64{1, 1})
	assert.InDelta(t, 1/bondLength, e, 1e-14)

	scaled := qc.NuclearRepulsion(atoms, []float64{2, 1})
	assert.InDelta(t, 2/bondLength, scaled, 1e-14)
}

// TestElectronRepulsion_Symmetry spot-checks the eightfold permutation
// symmetry of the (ij|kl) table.
func TestElectronRepulsion_Symmetry(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	orbitals := qc.STO3G(qc.Positions(atoms))
	eri := qc.ElectronRepulsion(orbitals)
	n := len(orbitals)
	require.Len(t, eri, n*n*n*n)

	at := func(i, j, k, l int) float64 {
		return eri[((i*n+j)*n+k)*n+l]
	}
	assert.InDelta(t, at(0, 1, 0, 1), at(1, 0, 1, 0), 1e-12)
	assert.InDelta(t, at(0, 0, 1, 1), at(1, 1, 0, 0), 1e-12)
	assert.InDelta(t, at(0, 1, 1, 1), at(1, 0, 1, 1), 1e-12)
	assert.Greater(t, at(0, 0, 0, 0), 0.0, "on-site repulsion is positive")
}

// TestBasis631G doubles the basis per center with the diffuse function.
func TestBasis631G(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	orbitals := qc.Basis631G(qc.Positions(atoms))
	assert.Len(t, orbitals, 4)
	assert.Len(t, orbitals[0].Primitives, 3, "contracted core")
	assert.Len(t, orbitals[1].Primitives, 1, "uncontracted diffuse function")
}

// TestNewSystem_Validation rejects non-closed-shell setups.
func TestNewSystem_Validation(t *testing.T) {
	atoms := qc.HydrogenPair(bondLength)
	orbitals := qc.STO3G(qc.Positions(atoms))

	_, err := qc.NewSystem(atoms, nil, 2)
	assert.ErrorIs(t, err, qc.ErrBadSystem, "no basis")

	_, err = qc.NewSystem(atoms, orbitals, 3)
	assert.ErrorIs(t, err, qc.ErrBadSystem, "odd electron count")

	_, err = qc.NewSystem(atoms, orbitals, 6)
	assert.ErrorIs(t, err, qc.ErrBadSystem, "more occupied than basis functions")

	_, err = qc.NewSystem(atoms, orbitals, 2)
	assert.NoError(t, err)
}

// TestHamiltonian assembles the effective one-body operator: the bare
// core Hamiltonian has a bound (negative) diagonal, an assembled
// potential shifts it additively, and a mis-sized potential is rejected.
func TestHamiltonian(t *testing.T) {
	sys := h2STO3G(t)

	bare, err := sys.Hamiltonian(nil)
	require.NoError(t, err)
	e0 := []float64{1, 0}
	h0 := make([]float64, 2)
	require.NoError(t, bare.Apply(h0, e0))
	assert.Less(t, h0[0], 0.0, "core diagonal binds the electron")

	shifted, err := sys.Hamiltonian([]float64{1, 0, 0, 1})
	require.NoError(t, err)
	h1 := make([]float64, 2)
	require.NoError(t, shifted.Apply(h1, e0))
	assert.InDelta(t, h0[0]+1, h1[0], 1e-12)
	assert.InDelta(t, h0[1], h1[1], 1e-12)

	_, err = sys.Hamiltonian([]float64{1})
	assert.ErrorIs(t, err, qc.ErrBadSystem)
}

// TestWeightedGrid_Integrate is plain weighted quadrature.
func TestWeightedGrid_Integrate(t *testing.T) {
	g := qc.WeightedGrid{Weights: []float64{0.5, 0.5, 1}}
	assert.InDelta(t, 3.0, g.Integrate([]float64{2, 2, 1}), 1e-14)
}
