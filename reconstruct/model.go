// Package reconstruct composes a beam generator and a diagnostic lattice into
// the forward model optimized during phase-space reconstruction, and provides
// the gradient-descent training loop that fits the generator to measured
// screen images.
package reconstruct

import (
	"fmt"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/lattice"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// Model maps a scan-parameter tensor to the tuple of simulated observations.
// It owns independent copies of its generator and lattice, taken at
// construction, so repeated training iterations never mutate caller-held
// template instances.
type Model struct {
	generator beams.Generator
	lattice   lattice.Lattice
}

// NewModel clones the generator and lattice into a new forward model.
func NewModel(generator beams.Generator, lat lattice.Lattice) (*Model, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator must not be nil")
	}
	if lat == nil {
		return nil, fmt.Errorf("lattice must not be nil")
	}
	return &Model{
		generator: generator.Clone(),
		lattice:   lat.Clone(),
	}, nil
}

// Forward generates a fresh ensemble, pushes the scan parameters into the
// lattice configuration and returns the tracked observations. The ordering
// is mandatory: parameters are set before tracking and the ensemble is
// regenerated on every call, never cached. Failures in any stage propagate
// unmodified.
func (m *Model) Forward(params *tensor.Tensor) ([]*tensor.Tensor, error) {
	beam, err := m.generator.Generate()
	if err != nil {
		return nil, err
	}
	if err := m.lattice.SetLatticeParameters(params); err != nil {
		return nil, err
	}
	return m.lattice.TrackAndObserve(beam)
}

// Generator returns the model's owned generator, e.g. to read out the
// reconstructed ensemble after training.
func (m *Model) Generator() beams.Generator { return m.generator }

// Lattice returns the model's owned lattice.
func (m *Model) Lattice() lattice.Lattice { return m.lattice }
