package datasets

import (
	"fmt"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// SixDScanDataset holds a full six-dimensional diagnostic scan: a grid of
// (dipole curvature, cavity voltage, quadrupole strength) settings and the
// images recorded on the two screens.
//
// Parameters have shape (2, NV, NK, 3): the leading axis is the dipole state
// (off/on, selecting which screen sees the beam), NV the number of cavity
// voltage settings and NK the number of quadrupole strengths. Observations
// are two image stacks shaped (NV, NK, bins_i, bins_i), one per screen.
type SixDScanDataset struct {
	ObservableDataset

	// Bins holds the pixel-center coordinates for each screen.
	Bins [2][]float64
}

// NewSixDScanDataset validates the scan-grid and image shapes eagerly. The
// leading dipole axis must have exactly two states.
func NewSixDScanDataset(parameters *tensor.Tensor, observations []*tensor.Tensor, bins [2][]float64) (*SixDScanDataset, error) {
	if parameters == nil {
		return nil, fmt.Errorf("parameters must not be nil")
	}
	if parameters.Rank() != 4 || parameters.Shape[3] != 3 {
		return nil, fmt.Errorf("parameters must have shape (2, NV, NK, 3), got %v", parameters.Shape)
	}
	if parameters.Shape[0] != 2 {
		return nil, fmt.Errorf("leading dipole axis must have exactly 2 states, got %d", parameters.Shape[0])
	}
	if len(observations) != 2 {
		return nil, fmt.Errorf("six-dimensional scans need exactly 2 screen observations, got %d", len(observations))
	}
	for s, obs := range observations {
		if obs == nil {
			return nil, fmt.Errorf("observation %d is nil", s)
		}
		nb := len(bins[s])
		if obs.Rank() != 4 || obs.Shape[2] != nb || obs.Shape[3] != nb {
			return nil, fmt.Errorf("observation %d must have shape (NV, NK, %d, %d), got %v",
				s, nb, nb, obs.Shape)
		}
	}

	base, err := NewObservableDataset(parameters, observations)
	if err != nil {
		return nil, err
	}
	return &SixDScanDataset{
		ObservableDataset: *base,
		Bins:              [2][]float64{append([]float64(nil), bins[0]...), append([]float64(nil), bins[1]...)},
	}, nil
}
