package qc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/density"
	"github.com/floatingCatty/dqc/linop"
)

// ErrBadSystem indicates an unusable molecular setup: no basis functions,
// an odd electron count (this package is closed-shell only), or more
// occupied orbitals than basis functions.
var ErrBadSystem = errors.New("qc: invalid system")

// PotentialAssembler maps a density matrix to the effective mean-field
// potential matrix, the density-dependent part of the Fock operator.
type PotentialAssembler interface {
	Potential(d *mat.SymDense) *mat.SymDense
}

// Grid is the quadrature collaborator contract: integrate a field sampled
// on grid points to a scalar.
type Grid interface {
	Integrate(field []float64) float64
}

// DensityInfo is an electron density sampled on a grid together with the
// optional derivatives gradient-corrected functionals need.
type DensityInfo struct {
	Value     []float64
	Grad      []float64
	Laplacian []float64
}

// WeightedGrid is a Grid over fixed points with fixed quadrature weights.
type WeightedGrid struct {
	Weights []float64
}

func (g WeightedGrid) Integrate(field []float64) float64 {
	var acc float64
	for i, w := range g.Weights {
		acc += w * field[i]
	}
	return acc
}

// NormalizeOnGrid rescales the density matrix so its real-space density
// integrates to target electrons, the quadrature-based alternative to the
// trace normalization used when a grid representation is available.
func NormalizeOnGrid(d *mat.SymDense, g Grid, dens func(*mat.SymDense) DensityInfo, target float64) error {
	total := g.Integrate(dens(d).Value)
	if total < 1e-14 && total > -1e-14 {
		return fmt.Errorf("%w: grid density integrates to %.3e", density.ErrZeroDensity, total)
	}
	factor := target / total
	n := d.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.SetSym(i, j, d.At(i, j)*factor)
		}
	}
	return nil
}

// System is a molecule in a contracted Gaussian basis with all integrals
// precomputed. It implements PotentialAssembler and provides the operator
// collaborators the fixedpoint engine consumes. Immutable after
// construction.
type System struct {
	Atoms     []Atom
	Orbitals  []Orbital
	Electrons int

	s       *mat.SymDense   // overlap
	t       *mat.SymDense   // kinetic
	venUnit []*mat.SymDense // per-atom unit-charge attraction
	vee     []float64       // (ij|kl), flat
}

// NewSystem precomputes the integral tables for the given molecule.
func NewSystem(atoms []Atom, orbitals []Orbital, electrons int) (*System, error) {
	n := len(orbitals)
	if n == 0 {
		return nil, fmt.Errorf("%w: no basis functions", ErrBadSystem)
	}
	if electrons < 2 || electrons%2 != 0 {
		return nil, fmt.Errorf("%w: closed-shell electron count required, got %d", ErrBadSystem, electrons)
	}
	if electrons/2 > n {
		return nil, fmt.Errorf("%w: %d occupied orbitals in a %d-function basis", ErrBadSystem, electrons/2, n)
	}
	sys := &System{
		Atoms:     atoms,
		Orbitals:  orbitals,
		Electrons: electrons,
		s:         OverlapMatrix(orbitals),
		t:         KineticMatrix(orbitals),
		vee:       ElectronRepulsion(orbitals),
	}
	for _, a := range atoms {
		sys.venUnit = append(sys.venUnit, attractionMatrix(orbitals, a.Coords))
	}
	return sys, nil
}

// NBasis returns the basis dimension.
func (sys *System) NBasis() int { return len(sys.Orbitals) }

// Occupied returns the number of doubly occupied orbitals.
func (sys *System) Occupied() int { return sys.Electrons / 2 }

// Charges returns the tabulated nuclear charges, the default external
// parameter vector.
func (sys *System) Charges() []float64 {
	out := make([]float64, len(sys.Atoms))
	for i, a := range sys.Atoms {
		out[i] = a.Z
	}
	return out
}

// Overlap returns the Gram operator of the basis.
func (sys *System) Overlap() linop.Operator { return linop.NewDense(sys.s) }

// CoreHamiltonian assembles the one-electron operator T - sum_a Z_a V_a
// for the given nuclear charges.
func (sys *System) CoreHamiltonian(charges []float64) *mat.SymDense {
	n := sys.NBasis()
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			acc := sys.t.At(i, j)
			for a := range sys.venUnit {
				acc -= charges[a] * sys.venUnit[a].At(i, j)
			}
			h.SetSym(i, j, acc)
		}
	}
	return h
}

// Hamiltonian returns the effective one-body operator H1 + V for an
// assembled potential matrix V (row-major, NBasis^2). V may be nil for
// the bare core Hamiltonian.
func (sys *System) Hamiltonian(potential []float64) (linop.Operator, error) {
	n := sys.NBasis()
	h := sys.CoreHamiltonian(sys.Charges())
	if potential != nil {
		if len(potential) != n*n {
			return nil, fmt.Errorf("%w: potential has %d elements, want %d", ErrBadSystem, len(potential), n*n)
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				h.SetSym(i, j, h.At(i, j)+potential[i*n+j])
			}
		}
	}
	return linop.NewDense(h), nil
}

// Potential assembles the closed-shell mean-field matrix
// G[i][j] = sum_kl D[k][l] ((ij|kl) - (il|kj)/2) from the density matrix.
func (sys *System) Potential(d *mat.SymDense) *mat.SymDense {
	n := sys.NBasis()
	g := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var acc float64
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					coulomb := sys.vee[eriIndex(n, i, j, k, l)]
					exchange := sys.vee[eriIndex(n, i, l, k, j)]
					acc += d.At(k, l) * (coulomb - 0.5*exchange)
				}
			}
			g.SetSym(i, j, acc)
		}
	}
	return g
}
