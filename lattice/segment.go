package lattice

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// Segment is an ordered sequence of transport elements. It is assembled once
// at lattice construction time; element parameters are overwritten in place
// between tracking calls.
type Segment struct {
	Elements []Element
}

// NewSegment builds a segment from elements in beamline order.
func NewSegment(elements ...Element) *Segment {
	return &Segment{Elements: elements}
}

// TransferMatrix composes the full first-order map of the segment for batch
// row i, multiplying element maps in traversal order.
func (s *Segment) TransferMatrix(i int, p0c float64) *mat.Dense {
	total := identity6()
	for _, el := range s.Elements {
		next := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
		next.Mul(el.TransferMatrix(i, p0c), total)
		total = next
	}
	return total
}

// Track propagates the beam through the segment using the configuration at
// batch row i, returning a new beam. The input ensemble is not modified.
func (s *Segment) Track(beam *beams.Beam, i int) *beams.Beam {
	m := s.TransferMatrix(i, beam.P0C)
	n := beam.NumParticles()
	out := mat.NewDense(n, beams.NumCoords, nil)
	out.Mul(beam.Particles, m.T())
	return &beams.Beam{Particles: out, P0C: beam.P0C}
}

// Clone returns a deep copy of the segment and its elements.
func (s *Segment) Clone() *Segment {
	elements := make([]Element, len(s.Elements))
	for i, el := range s.Elements {
		elements[i] = el.CloneElement()
	}
	return &Segment{Elements: elements}
}

// Lattice is the capability contract shared by the diagnostic lattices: push
// a batched scan-parameter tensor into the element configuration, then run a
// fresh ensemble through the element sequence and read the diagnostics.
//
// SetLatticeParameters must be called before TrackAndObserve on every forward
// pass; the configuration written by one call is consumed by the very next
// TrackAndObserve. No other state persists between calls.
type Lattice interface {
	// SetLatticeParameters writes derived physical quantities into the
	// element configuration in place. The trailing axis of params must
	// equal ParameterCount; leading axes form the scan batch shape.
	SetLatticeParameters(params *tensor.Tensor) error

	// TrackAndObserve propagates the beam through the configured lattice
	// for every batch row and returns one tensor per diagnostic screen.
	TrackAndObserve(beam *beams.Beam) ([]*tensor.Tensor, error)

	// ParameterCount is the declared number of free lattice parameters.
	ParameterCount() int

	// Clone returns an independent copy with its own element configuration.
	Clone() Lattice
}
