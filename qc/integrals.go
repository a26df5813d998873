package qc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// gaussPair holds the Gaussian product-theorem quantities for a pair of
// primitives: total exponent p, reduced exponent q, squared center
// distance q2, and the product center pp.
type gaussPair struct {
	p, q, q2 float64
	pp       [3]float64
}

func newGaussPair(a, b Primitive) gaussPair {
	var g gaussPair
	g.p = a.Alpha + b.Alpha
	g.q = a.Alpha * b.Alpha / g.p
	for x := 0; x < 3; x++ {
		d := a.Center[x] - b.Center[x]
		g.q2 += d * d
		g.pp[x] = (a.Alpha*a.Center[x] + b.Alpha*b.Center[x]) / g.p
	}
	return g
}

// overlapTerm is the primitive-pair overlap including normalization and
// contraction weights; the kinetic and attraction terms scale it.
func overlapTerm(a, b Primitive, g gaussPair) float64 {
	n := a.Norm() * b.Norm()
	return n * a.Coeff * b.Coeff * math.Exp(-g.q*g.q2) * math.Pow(math.Pi/g.p, 1.5)
}

// boys is the zeroth-order Boys function F0, evaluated through the
// regularized incomplete gamma function.
func boys(x float64) float64 {
	if x == 0 {
		return 1
	}
	return mathext.GammaIncReg(0.5, x) * math.Gamma(0.5) / (2 * math.Sqrt(x))
}

// OverlapMatrix computes the basis Gram matrix S.
func OverlapMatrix(orbitals []Orbital) *mat.SymDense {
	n := len(orbitals)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var acc float64
			for _, a := range orbitals[i].Primitives {
				for _, b := range orbitals[j].Primitives {
					acc += overlapTerm(a, b, newGaussPair(a, b))
				}
			}
			s.SetSym(i, j, acc)
		}
	}
	return s
}

// KineticMatrix computes the one-electron kinetic energy matrix T.
func KineticMatrix(orbitals []Orbital) *mat.SymDense {
	n := len(orbitals)
	t := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var acc float64
			for _, a := range orbitals[i].Primitives {
				for _, b := range orbitals[j].Primitives {
					g := newGaussPair(a, b)
					s := overlapTerm(a, b, g)
					acc += 3 * b.Alpha * s
					for x := 0; x < 3; x++ {
						pg := g.pp[x] - b.Center[x]
						acc -= 2 * b.Alpha * b.Alpha * s * (pg*pg + 0.5/g.p)
					}
				}
			}
			t.SetSym(i, j, acc)
		}
	}
	return t
}

// attractionMatrix computes the electron-nucleus attraction integrals for
// a single nucleus of unit charge at center. The physical matrix for a
// nucleus of charge Z is -Z times this, which keeps the nuclear charges
// explicit as differentiable parameters.
func attractionMatrix(orbitals []Orbital, center [3]float64) *mat.SymDense {
	n := len(orbitals)
	v := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var acc float64
			for _, a := range orbitals[i].Primitives {
				for _, b := range orbitals[j].Primitives {
					g := newGaussPair(a, b)
					var pg2 float64
					for x := 0; x < 3; x++ {
						d := g.pp[x] - center[x]
						pg2 += d * d
					}
					na := a.Norm() * b.Norm()
					acc += na * a.Coeff * b.Coeff * math.Exp(-g.q*g.q2) *
						(2 * math.Pi / g.p) * boys(g.p*pg2)
				}
			}
			v.SetSym(i, j, acc)
		}
	}
	return v
}

// ElectronRepulsion computes the two-electron integrals (ij|kl) as a flat
// n^4 slice indexed by eriIndex. Small-system storage; larger systems
// would exploit the eightfold permutation symmetry.
func ElectronRepulsion(orbitals []Orbital) []float64 {
	n := len(orbitals)
	out := make([]float64, n*n*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					var acc float64
					for _, pa := range orbitals[i].Primitives {
						for _, pb := range orbitals[j].Primitives {
							for _, pc := range orbitals[k].Primitives {
								for _, pd := range orbitals[l].Primitives {
									acc += eriPrimitive(pa, pb, pc, pd)
								}
							}
						}
					}
					out[eriIndex(n, i, j, k, l)] = acc
				}
			}
		}
	}
	return out
}

func eriIndex(n, i, j, k, l int) int {
	return ((i*n+j)*n+k)*n + l
}

func eriPrimitive(a, b, c, d Primitive) float64 {
	gab := newGaussPair(a, b)
	gcd := newGaussPair(c, d)

	var sep2 float64
	for x := 0; x < 3; x++ {
		diff := gab.pp[x] - gcd.pp[x]
		sep2 += diff * diff
	}
	denom := 1/gab.p + 1/gcd.p

	norm := a.Norm() * b.Norm() * c.Norm() * d.Norm()
	coeff := a.Coeff * b.Coeff * c.Coeff * d.Coeff

	term := 2 * math.Pi * math.Pi / (gab.p * gcd.p) *
		math.Sqrt(math.Pi/(gab.p+gcd.p)) *
		math.Exp(-gab.q*gab.q2) * math.Exp(-gcd.q*gcd.q2)

	return norm * coeff * term * boys(sep2/denom)
}

// NuclearRepulsion computes the classical internuclear energy for the
// given charges (which may differ from the atoms' tabulated Z when the
// charges are being varied as external parameters).
func NuclearRepulsion(atoms []Atom, charges []float64) float64 {
	var e float64
	for i := range atoms {
		for j := 0; j < i; j++ {
			var r2 float64
			for x := 0; x < 3; x++ {
				d := atoms[i].Coords[x] - atoms[j].Coords[x]
				r2 += d * d
			}
			e += charges[i] * charges[j] / math.Sqrt(r2)
		}
	}
	return e
}
