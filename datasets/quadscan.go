package datasets

import (
	"fmt"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// QuadScanDataset holds a quadrupole-scan measurement: K quadrupole strength
// settings and the K screen images recorded at them, together with the pixel
// bin centers the images live on.
type QuadScanDataset struct {
	ObservableDataset

	// Bins are the pixel-center coordinates of the (square) screen images.
	Bins []float64
}

// NewQuadScanDataset validates a quad scan. strengths must have shape (K, 1)
// and images (K, bins, bins) with the resolution matching len(bins).
func NewQuadScanDataset(strengths, images *tensor.Tensor, bins []float64) (*QuadScanDataset, error) {
	if strengths == nil || images == nil {
		return nil, fmt.Errorf("strengths and images must not be nil")
	}
	if strengths.Rank() != 2 || strengths.Shape[1] != 1 {
		return nil, fmt.Errorf("strengths must have shape (K, 1), got %v", strengths.Shape)
	}
	k := strengths.Shape[0]
	nb := len(bins)
	if images.Rank() != 3 || images.Shape[0] != k || images.Shape[1] != nb || images.Shape[2] != nb {
		return nil, fmt.Errorf("images must have shape (%d, %d, %d), got %v", k, nb, nb, images.Shape)
	}

	params, err := strengths.Reshape(1, k, 1)
	if err != nil {
		return nil, err
	}
	base, err := NewObservableDataset(params, []*tensor.Tensor{images})
	if err != nil {
		return nil, err
	}
	return &QuadScanDataset{
		ObservableDataset: *base,
		Bins:              append([]float64(nil), bins...),
	}, nil
}

// ScanParameters returns the quadrupole strengths with shape (K, 1).
func (d *QuadScanDataset) ScanParameters() *tensor.Tensor {
	k := d.Parameters.Shape[1]
	out, _ := d.Parameters.Reshape(k, 1)
	return out
}

// Images returns the measured screen images with shape (K, bins, bins).
func (d *QuadScanDataset) Images() *tensor.Tensor {
	return d.Observations[0]
}
