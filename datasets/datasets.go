// Package datasets provides the containers pairing scan-parameter grids with
// measured screen observations, with eager shape validation at construction.
//
// The shape convention follows the reconstruction forward model: parameters
// are shaped (M, *B, K) where M is the number of reconstruction passes, B an
// arbitrary batch shape shared with the observations, and K the lattice's
// free-parameter count. Observations are a tuple of tensors, one per
// diagnostic screen, each shaped (*B, ...).
package datasets

import (
	"fmt"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// ObservableDataset pairs a scan-parameter grid with one observation tensor
// per diagnostic screen.
type ObservableDataset struct {
	// Parameters has shape (M, *B, K).
	Parameters *tensor.Tensor

	// Observations holds one tensor per screen, each with leading shape B.
	Observations []*tensor.Tensor

	batchShape []int
	cursor     int
}

// NewObservableDataset validates shape agreement eagerly and fails at
// construction rather than on first use. Observations must be a non-empty
// tuple: passing no observation tensors (the equivalent of a bare tensor
// instead of a tuple) is a hard error.
func NewObservableDataset(parameters *tensor.Tensor, observations []*tensor.Tensor) (*ObservableDataset, error) {
	if parameters == nil {
		return nil, fmt.Errorf("parameters must not be nil")
	}
	if parameters.Rank() < 2 {
		return nil, fmt.Errorf("parameters must have shape (M, *B, K), got %v", parameters.Shape)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("observations must be a non-empty tuple of tensors, one per screen")
	}

	batchShape := parameters.Shape[1 : parameters.Rank()-1]
	for s, obs := range observations {
		if obs == nil {
			return nil, fmt.Errorf("observation %d is nil", s)
		}
		if obs.Rank() < len(batchShape) {
			return nil, fmt.Errorf("observation %d rank %d cannot carry batch shape %v",
				s, obs.Rank(), batchShape)
		}
		for i, d := range batchShape {
			if obs.Shape[i] != d {
				return nil, fmt.Errorf("observation %d leading shape %v does not match parameter batch shape %v",
					s, obs.Shape[:len(batchShape)], batchShape)
			}
		}
	}
	return &ObservableDataset{
		Parameters:   parameters,
		Observations: observations,
		batchShape:   append([]int(nil), batchShape...),
	}, nil
}

// Len returns the number of examples: the flattened batch size B.
func (d *ObservableDataset) Len() int {
	n := 1
	for _, b := range d.batchShape {
		n *= b
	}
	return n
}

// BatchShape returns the shared batch shape B.
func (d *ObservableDataset) BatchShape() []int {
	return append([]int(nil), d.batchShape...)
}

// Item returns example i: its parameters with shape (M, K) and one
// observation slice per screen with the screen's trailing shape.
func (d *ObservableDataset) Item(i int) (*tensor.Tensor, []*tensor.Tensor, error) {
	n := d.Len()
	if i < 0 || i >= n {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, n)
	}

	m := d.Parameters.Shape[0]
	k := d.Parameters.Shape[d.Parameters.Rank()-1]
	params := tensor.New(m, k)
	for mi := 0; mi < m; mi++ {
		src := (mi*n + i) * k
		copy(params.Data[mi*k:(mi+1)*k], d.Parameters.Data[src:src+k])
	}

	obs := make([]*tensor.Tensor, len(d.Observations))
	for s, o := range d.Observations {
		trailing := o.Shape[len(d.batchShape):]
		size := 1
		for _, t := range trailing {
			size *= t
		}
		item := tensor.New(trailing...)
		copy(item.Data, o.Data[i*size:(i+1)*size])
		obs[s] = item
	}
	return params, obs, nil
}
