package qc

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/floatingCatty/dqc/density"
	"github.com/floatingCatty/dqc/eigen"
	"github.com/floatingCatty/dqc/fixedpoint"
	"github.com/floatingCatty/dqc/linop"
)

// SCFOptions configures a Solve call.
type SCFOptions struct {
	// FixedPoint drives the outer self-consistency loop.
	FixedPoint fixedpoint.Options
	// Eigen configures the per-iteration generalized eigensolve.
	Eigen eigen.Options
	// InitialDensity, when non-nil, seeds the iteration from a caller
	// density matrix instead of the bare core Hamiltonian.
	InitialDensity *mat.SymDense
	// FDStep is the finite-difference step of the map linearization used
	// for implicit gradients. Zero selects the default.
	FDStep float64
}

// DefaultSCFOptions returns the reference setup: Broyden-mixed fixed
// point over the flattened Fock matrix with exact diagonalization.
func DefaultSCFOptions() SCFOptions {
	return SCFOptions{
		FixedPoint: fixedpoint.DefaultOptions(),
		Eigen:      eigen.DefaultOptions(),
	}
}

// fockMap is the SCF iteration map over the flattened Fock matrix:
// diagonalize, build and normalize the density, reassemble the potential.
// The nuclear charges are the differentiable parameter manifest.
type fockMap struct {
	sys *System
	eig eigen.Options
}

// evalAt computes vec(F') from vec(F) at the given nuclear charges.
func (m *fockMap) evalAt(dst, y, charges []float64) error {
	sys := m.sys
	n := sys.NBasis()
	f := symFromFlat(n, y)

	res, err := eigen.Solve(linop.NewDense(f), sys.Overlap(), sys.Occupied(), m.eig)
	if err != nil {
		return err
	}
	d := density.Build(res.Vectors)
	if err := density.Normalize(d, sys.Overlap(), float64(sys.Electrons)); err != nil {
		return err
	}
	g := sys.Potential(d)
	h := sys.CoreHamiltonian(charges)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst[i*n+j] = h.At(i, j) + g.At(i, j)
		}
	}
	return nil
}

// Calculation is a frozen SCF outcome: the converged (or best-effort)
// state plus derived scalars, serializable as plain numeric arrays.
type Calculation struct {
	NBasis           int       `json:"nbasis"`
	Charges          []float64 `json:"charges"`
	Fock             []float64 `json:"fock"`
	Density          []float64 `json:"density"`
	Eigenvalues      []float64 `json:"eigenvalues"`
	ElectronicEnergy float64   `json:"electronic_energy"`
	NuclearEnergy    float64   `json:"nuclear_energy"`
	TotalEnergy      float64   `json:"total_energy"`
	Iterations       int       `json:"iterations"`
	ResidualNorm     float64   `json:"residual_norm"`
	Converged        bool      `json:"converged"`

	sol *fixedpoint.Solution
}

// Solution returns the underlying fixed-point solution, the handle the
// implicit-differentiation layer linearizes. Nil for loaded calculations.
func (c *Calculation) Solution() *fixedpoint.Solution { return c.sol }

// Save writes the calculation as JSON.
func (c *Calculation) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// LoadCalculation reads a calculation saved with Save. The fixed-point
// handle is not persisted; use System.Recheck to verify the state still
// satisfies g(y*) ~ y*.
func LoadCalculation(r io.Reader) (*Calculation, error) {
	var c Calculation
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("qc: decoding calculation: %w", err)
	}
	return &c, nil
}

// Solve runs the self-consistent field to convergence.
//
// The iterate is the flattened Fock matrix, seeded from the core
// Hamiltonian pushed through one map application (or from
// opts.InitialDensity when supplied). A Calculation is returned even when
// the driver stops on ErrNotConverged or ErrDiverged, annotated with
// Converged=false, so the caller decides whether the best-effort state is
// usable.
func Solve(sys *System, opts SCFOptions) (*Calculation, error) {
	n := sys.NBasis()
	charges := sys.Charges()
	m := &fockMap{sys: sys, eig: opts.Eigen}
	lin := &fixedpoint.FiniteDiffLinearization{
		N:      n * n,
		Params: charges,
		EvalAt: m.evalAt,
		Step:   opts.FDStep,
	}

	y0 := make([]float64, n*n)
	h := sys.CoreHamiltonian(charges)
	if opts.InitialDensity != nil {
		g := sys.Potential(opts.InitialDensity)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				y0[i*n+j] = h.At(i, j) + g.At(i, j)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				y0[i*n+j] = h.At(i, j)
			}
		}
		// One bare pass turns the core guess into a physical Fock matrix
		// before mixing starts.
		seeded := make([]float64, n*n)
		if err := lin.Eval(seeded, y0); err != nil {
			return nil, err
		}
		copy(y0, seeded)
	}

	sol, solveErr := fixedpoint.Solve(lin, y0, opts.FixedPoint)
	if sol == nil {
		return nil, solveErr
	}

	calc, err := summarize(sys, sol.Y, charges, opts.Eigen)
	if err != nil {
		return nil, err
	}
	calc.Iterations = sol.Iterations
	calc.ResidualNorm = sol.ResidualNorm
	calc.Converged = sol.Status == fixedpoint.Converged
	calc.sol = sol
	return calc, solveErr
}

// Gradient computes the derivative of the total energy with respect to
// the nuclear charges by implicit differentiation at the fixed point: the
// energy seed dE/d vec(F) is formed by central differences, the adjoint
// system is solved at y*, and the explicit nuclear-repulsion term is
// added on top of the implicit contribution.
func Gradient(sys *System, calc *Calculation, opts SCFOptions, gradOpts fixedpoint.GradOptions) ([]float64, error) {
	sol := calc.Solution()
	if sol == nil {
		return nil, fmt.Errorf("%w: calculation has no fixed-point handle", ErrBadSystem)
	}
	n := sys.NBasis()
	seed := make([]float64, n*n)
	step := opts.FDStep
	if step <= 0 {
		step = 1e-6
	}
	y := append([]float64(nil), sol.Y...)
	for i := range y {
		y[i] = sol.Y[i] + step
		ep, err := electronicEnergy(sys, y, calc.Charges, opts.Eigen)
		if err != nil {
			return nil, err
		}
		y[i] = sol.Y[i] - step
		em, err := electronicEnergy(sys, y, calc.Charges, opts.Eigen)
		if err != nil {
			return nil, err
		}
		y[i] = sol.Y[i]
		seed[i] = (ep - em) / (2 * step)
	}

	grad, err := fixedpoint.Gradient(sol, seed, gradOpts)
	if err != nil {
		return nil, err
	}

	// Explicit dependence of the energy on the charges at fixed density:
	// the core-Hamiltonian and nuclear-repulsion terms.
	d := symFromFlat(n, calc.Density)
	for a := range grad {
		var attraction float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				attraction -= d.At(i, j) * sys.venUnit[a].At(i, j)
			}
		}
		grad[a] += attraction
		for b := range sys.Atoms {
			if b == a {
				continue
			}
			var r2 float64
			for x := 0; x < 3; x++ {
				diff := sys.Atoms[a].Coords[x] - sys.Atoms[b].Coords[x]
				r2 += diff * diff
			}
			grad[a] += calc.Charges[b] / math.Sqrt(r2)
		}
	}
	return grad, nil
}

// Recheck re-evaluates the fixed-point residual of a (possibly reloaded)
// calculation against this system.
func (sys *System) Recheck(calc *Calculation, opts SCFOptions) (float64, error) {
	n := sys.NBasis()
	if calc.NBasis != n {
		return 0, fmt.Errorf("%w: calculation basis %d, system basis %d", ErrBadSystem, calc.NBasis, n)
	}
	m := &fockMap{sys: sys, eig: opts.Eigen}
	gy := make([]float64, n*n)
	if err := m.evalAt(gy, calc.Fock, calc.Charges); err != nil {
		return 0, err
	}
	var norm float64
	for i := range gy {
		diff := gy[i] - calc.Fock[i]
		norm += diff * diff
	}
	return math.Sqrt(norm), nil
}

// summarize diagonalizes the terminal Fock matrix and assembles the
// derived quantities.
func summarize(sys *System, fock, charges []float64, eigOpts eigen.Options) (*Calculation, error) {
	n := sys.NBasis()
	f := symFromFlat(n, fock)
	res, err := eigen.Solve(linop.NewDense(f), sys.Overlap(), sys.Occupied(), eigOpts)
	if err != nil {
		return nil, err
	}
	d := density.Build(res.Vectors)
	if err := density.Normalize(d, sys.Overlap(), float64(sys.Electrons)); err != nil {
		return nil, err
	}

	elec := energyFromDensity(sys, d, charges)
	nuc := NuclearRepulsion(sys.Atoms, charges)

	flatD := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			flatD[i*n+j] = d.At(i, j)
		}
	}
	return &Calculation{
		NBasis:           n,
		Charges:          append([]float64(nil), charges...),
		Fock:             append([]float64(nil), fock...),
		Density:          flatD,
		Eigenvalues:      res.Values,
		ElectronicEnergy: elec,
		NuclearEnergy:    nuc,
		TotalEnergy:      elec + nuc,
	}, nil
}

// electronicEnergy evaluates the electronic energy as a function of a
// trial Fock matrix, the scalar observable differentiated by Gradient.
func electronicEnergy(sys *System, fock, charges []float64, eigOpts eigen.Options) (float64, error) {
	n := sys.NBasis()
	f := symFromFlat(n, fock)
	res, err := eigen.Solve(linop.NewDense(f), sys.Overlap(), sys.Occupied(), eigOpts)
	if err != nil {
		return 0, err
	}
	d := density.Build(res.Vectors)
	if err := density.Normalize(d, sys.Overlap(), float64(sys.Electrons)); err != nil {
		return 0, err
	}
	return energyFromDensity(sys, d, charges), nil
}

// energyFromDensity is the closed-shell energy expression
// E = sum_ij D_ij (H1_ij + G_ij/2).
func energyFromDensity(sys *System, d *mat.SymDense, charges []float64) float64 {
	n := sys.NBasis()
	h := sys.CoreHamiltonian(charges)
	g := sys.Potential(d)
	var e float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e += d.At(i, j) * (h.At(i, j) + 0.5*g.At(i, j))
		}
	}
	return e
}

// symFromFlat symmetrizes a row-major n*n slice into a SymDense; the
// mixing update can leave the iterate very slightly asymmetric.
func symFromFlat(n int, y []float64) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(y[i*n+j]+y[j*n+i]))
		}
	}
	return s
}

