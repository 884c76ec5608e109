// Package diagnostics converts particle ensembles into the observation
// tensors compared against measured camera images. The only diagnostic
// implemented here is a KDE-smoothed screen: a 2-D density estimate of the
// transverse beam positions on a fixed pixel grid, smooth in the particle
// coordinates so the whole observation path stays differentiable.
package diagnostics

import (
	"fmt"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/histogram"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// ImageDiagnostic produces a normalized (bins x bins) density image of the
// horizontal and vertical particle positions.
type ImageDiagnostic struct {
	// Bins are the pixel-center coordinates shared by both axes,
	// established once at construction and read-only afterwards.
	Bins []float64

	// Bandwidth of the KDE kernel. Defaults to the bin spacing.
	Bandwidth float64

	// Epsilon is the normalization floor. Zero selects the histogram
	// package default.
	Epsilon float64
}

// NewImageDiagnostic constructs a screen over the given pixel centers with
// the bandwidth defaulted to the bin spacing.
func NewImageDiagnostic(bins []float64) (*ImageDiagnostic, error) {
	if len(bins) < 2 {
		return nil, fmt.Errorf("screen needs at least 2 bins, got %d", len(bins))
	}
	return &ImageDiagnostic{
		Bins:      append([]float64(nil), bins...),
		Bandwidth: bins[1] - bins[0],
	}, nil
}

// NumBins returns the image resolution along one axis.
func (d *ImageDiagnostic) NumBins() int { return len(d.Bins) }

// Observe returns the KDE image of the beam's transverse positions with
// shape (bins, bins); rows index the horizontal coordinate.
func (d *ImageDiagnostic) Observe(beam *beams.Beam) (*tensor.Tensor, error) {
	if beam == nil {
		return nil, fmt.Errorf("beam must not be nil")
	}
	n := beam.NumParticles()
	x, err := tensor.FromFlat(beam.Coordinate(beams.CoordX), 1, n)
	if err != nil {
		return nil, err
	}
	y, err := tensor.FromFlat(beam.Coordinate(beams.CoordY), 1, n)
	if err != nil {
		return nil, err
	}
	img, err := histogram.Histogram2D(x, y, d.Bins, d.Bandwidth, d.Epsilon)
	if err != nil {
		return nil, err
	}
	return img.Reshape(len(d.Bins), len(d.Bins))
}

// Backward propagates dLoss/dImage back to per-particle gradients of the
// observed positions, returning dLoss/dx and dLoss/dy.
func (d *ImageDiagnostic) Backward(beam *beams.Beam, grad *tensor.Tensor) ([]float64, []float64, error) {
	if beam == nil {
		return nil, nil, fmt.Errorf("beam must not be nil")
	}
	return histogram.Histogram2DBackward(
		beam.Coordinate(beams.CoordX),
		beam.Coordinate(beams.CoordY),
		d.Bins, d.Bandwidth, d.Epsilon, grad,
	)
}

// Clone returns an independent copy.
func (d *ImageDiagnostic) Clone() *ImageDiagnostic {
	return &ImageDiagnostic{
		Bins:      append([]float64(nil), d.Bins...),
		Bandwidth: d.Bandwidth,
		Epsilon:   d.Epsilon,
	}
}
