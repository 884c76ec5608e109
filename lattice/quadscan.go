package lattice

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/diagnostics"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// QuadScanLattice is the single-free-parameter diagnostic beamline: one
// scan quadrupole followed by a drift to a single screen. The parameter is
// the quadrupole focusing strength.
type QuadScanLattice struct {
	segment *Segment
	quad    *Quadrupole
	screen  *diagnostics.ImageDiagnostic

	batchShape []int
	configured bool
}

// NewQuadScanLattice builds the [quadrupole, drift] sequence. lQuad and
// lDrift are the element lengths in meters.
func NewQuadScanLattice(lQuad, lDrift float64, screen *diagnostics.ImageDiagnostic) (*QuadScanLattice, error) {
	if lQuad <= 0 || lDrift <= 0 {
		return nil, fmt.Errorf("element lengths must be positive, got lQuad=%v lDrift=%v", lQuad, lDrift)
	}
	if screen == nil {
		return nil, fmt.Errorf("screen must not be nil")
	}
	quad := NewQuadrupole("SCAN_QUAD", lQuad)
	return &QuadScanLattice{
		segment: NewSegment(quad, NewDrift("QUAD_TO_SCREEN", lDrift)),
		quad:    quad,
		screen:  screen,
	}, nil
}

// ParameterCount returns 1: the quadrupole strength.
func (l *QuadScanLattice) ParameterCount() int { return 1 }

// Screen returns the diagnostic screen.
func (l *QuadScanLattice) Screen() *diagnostics.ImageDiagnostic { return l.screen }

// SetLatticeParameters writes the batched quadrupole strengths. params must
// have a trailing axis of size 1; the leading axes form the scan batch shape.
func (l *QuadScanLattice) SetLatticeParameters(params *tensor.Tensor) error {
	if params == nil {
		return fmt.Errorf("params must not be nil")
	}
	if params.Rank() < 1 || params.Shape[params.Rank()-1] != l.ParameterCount() {
		return fmt.Errorf("params must have trailing axis of size %d, got shape %v",
			l.ParameterCount(), params.Shape)
	}
	l.batchShape = append([]int(nil), params.Shape[:params.Rank()-1]...)
	l.quad.SetK1(append([]float64(nil), params.Data...))
	l.configured = true
	return nil
}

// batchSize returns the flattened number of scan configurations.
func (l *QuadScanLattice) batchSize() int {
	n := 1
	for _, d := range l.batchShape {
		n *= d
	}
	return n
}

// TrackAndObserve propagates the beam through every scan configuration and
// reads the screen, returning a one-element observation tuple with shape
// (batch..., bins, bins).
func (l *QuadScanLattice) TrackAndObserve(beam *beams.Beam) ([]*tensor.Tensor, error) {
	if !l.configured {
		return nil, fmt.Errorf("SetLatticeParameters must be called before TrackAndObserve")
	}
	if beam == nil {
		return nil, fmt.Errorf("beam must not be nil")
	}

	nb := l.screen.NumBins()
	b := l.batchSize()
	out := tensor.New(append(append([]int(nil), l.batchShape...), nb, nb)...)
	for i := 0; i < b; i++ {
		img, err := l.screen.Observe(l.segment.Track(beam, i))
		if err != nil {
			return nil, fmt.Errorf("screen observation at scan index %d: %w", i, err)
		}
		copy(out.Data[i*nb*nb:(i+1)*nb*nb], img.Data)
	}
	return []*tensor.Tensor{out}, nil
}

// TransferMatrices returns the composed 6x6 map per scan configuration for
// the current parameters. The training loop uses these to backpropagate
// through the linear transport.
func (l *QuadScanLattice) TransferMatrices(p0c float64) ([]*mat.Dense, error) {
	if !l.configured {
		return nil, fmt.Errorf("SetLatticeParameters must be called before TransferMatrices")
	}
	b := l.batchSize()
	out := make([]*mat.Dense, b)
	for i := 0; i < b; i++ {
		out[i] = l.segment.TransferMatrix(i, p0c)
	}
	return out, nil
}

// BatchShape returns the leading batch shape of the most recent parameters.
func (l *QuadScanLattice) BatchShape() []int {
	return append([]int(nil), l.batchShape...)
}

// Clone returns an independent copy with its own element configuration.
func (l *QuadScanLattice) Clone() Lattice {
	seg := l.segment.Clone()
	c := &QuadScanLattice{
		segment:    seg,
		quad:       seg.Elements[0].(*Quadrupole),
		screen:     l.screen.Clone(),
		batchShape: append([]int(nil), l.batchShape...),
		configured: l.configured,
	}
	return c
}
