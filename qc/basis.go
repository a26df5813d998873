// Package qc assembles restricted closed-shell self-consistent-field
// calculations over contracted Gaussian basis sets and drives them through
// the fixedpoint engine. It supplies the concrete operators (Fock,
// overlap) and the effective-potential assembly the engine treats as
// opaque collaborators.
package qc

import "math"

// BohrRadius converts between angstrom and atomic units.
const BohrRadius = 0.52917720859

// Atom is a nucleus with charge Z at Coords (atomic units).
type Atom struct {
	Z      float64
	Coords [3]float64
}

// Primitive is an s-type primitive Gaussian exp(-Alpha*r^2) centered at
// Center, entering a contraction with weight Coeff.
type Primitive struct {
	Alpha  float64
	Coeff  float64
	Center [3]float64
}

// Norm is the normalization constant of an s-type primitive.
func (p Primitive) Norm() float64 {
	return math.Pow(2*p.Alpha/math.Pi, 0.75)
}

// Orbital is one contracted atomic basis function.
type Orbital struct {
	Primitives []Primitive
}

// sto3gH are the STO-3G hydrogen 1s exponents and contraction weights.
var sto3gH = [3][2]float64{
	{0.3425250914e+01, 0.1543289673e+00},
	{0.6239137298e+00, 0.5353281423e+00},
	{0.1688554040e+00, 0.4446345422e+00},
}

// g631H are the 6-31+G hydrogen exponents and contraction weights; the
// last primitive is the uncontracted diffuse function.
var g631H = [4][2]float64{
	{0.1873113696e+02, 0.3349460434e-01},
	{0.2825394365e+01, 0.2347269535e+00},
	{0.6401216923e+00, 0.8137573261e+00},
	{0.1612777588e+00, 1.0000000},
}

// STO3G builds one STO-3G 1s orbital per hydrogen position.
func STO3G(positions [][3]float64) []Orbital {
	out := make([]Orbital, 0, len(positions))
	for _, c := range positions {
		prims := make([]Primitive, 0, len(sto3gH))
		for _, ac := range sto3gH {
			prims = append(prims, Primitive{Alpha: ac[0], Coeff: ac[1], Center: c})
		}
		out = append(out, Orbital{Primitives: prims})
	}
	return out
}

// Basis631G builds the split-valence 6-31+G pair of orbitals (contracted
// core plus diffuse) per hydrogen position.
func Basis631G(positions [][3]float64) []Orbital {
	out := make([]Orbital, 0, 2*len(positions))
	for _, c := range positions {
		core := make([]Primitive, 0, 3)
		for _, ac := range g631H[:3] {
			core = append(core, Primitive{Alpha: ac[0], Coeff: ac[1], Center: c})
		}
		diffuse := []Primitive{{Alpha: g631H[3][0], Coeff: g631H[3][1], Center: c}}
		out = append(out, Orbital{Primitives: core}, Orbital{Primitives: diffuse})
	}
	return out
}

// HydrogenPair places two hydrogen nuclei a bond length apart along x.
func HydrogenPair(dist float64) []Atom {
	return []Atom{
		{Z: 1, Coords: [3]float64{0, 0, 0}},
		{Z: 1, Coords: [3]float64{dist, 0, 0}},
	}
}

// Positions extracts the nuclear coordinates, the usual centers for a
// minimal basis.
func Positions(atoms []Atom) [][3]float64 {
	out := make([][3]float64, len(atoms))
	for i, a := range atoms {
		out[i] = a.Coords
	}
	return out
}
