// Package beams defines the particle-ensemble representation shared by the
// lattice and reconstruction packages, and the generators that produce fresh
// ensembles for every forward pass.
package beams

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Phase-space coordinate columns of a Beam's particle matrix.
const (
	CoordX     = 0 // horizontal position [m]
	CoordPX    = 1 // horizontal momentum fraction px/p0
	CoordY     = 2 // vertical position [m]
	CoordPY    = 3 // vertical momentum fraction py/p0
	CoordTau   = 4 // longitudinal position relative to the reference [m]
	CoordDelta = 5 // relative momentum deviation (p-p0)/p0

	// NumCoords is the phase-space dimensionality.
	NumCoords = 6
)

// Beam is an ordered ensemble of particles in 6-D phase space together with
// the design reference momentum. Particles is an N x 6 matrix with the column
// layout given by the Coord constants.
type Beam struct {
	Particles *mat.Dense
	// P0C is the design momentum times c in eV.
	P0C float64
}

// NewBeam allocates a zero-initialized ensemble of n particles.
func NewBeam(n int, p0c float64) *Beam {
	return &Beam{Particles: mat.NewDense(n, NumCoords, nil), P0C: p0c}
}

// FromCoords wraps an existing N x 6 coordinate matrix.
func FromCoords(coords *mat.Dense, p0c float64) (*Beam, error) {
	if coords == nil {
		return nil, fmt.Errorf("coords must not be nil")
	}
	_, c := coords.Dims()
	if c != NumCoords {
		return nil, fmt.Errorf("coords must have %d columns, got %d", NumCoords, c)
	}
	if p0c <= 0 {
		return nil, fmt.Errorf("design momentum must be positive, got %v", p0c)
	}
	return &Beam{Particles: coords, P0C: p0c}, nil
}

// NumParticles returns the ensemble size.
func (b *Beam) NumParticles() int {
	n, _ := b.Particles.Dims()
	return n
}

// Coordinate returns a copy of one phase-space coordinate across the whole
// ensemble, e.g. Coordinate(CoordX) for all horizontal positions.
func (b *Beam) Coordinate(col int) []float64 {
	n := b.NumParticles()
	out := make([]float64, n)
	mat.Col(out, col, b.Particles)
	return out
}

// Clone returns a deep copy of the beam.
func (b *Beam) Clone() *Beam {
	return &Beam{Particles: mat.DenseCopyOf(b.Particles), P0C: b.P0C}
}
