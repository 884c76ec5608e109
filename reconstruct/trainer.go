package reconstruct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/lattice"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// ScanData is the minimal interface the trainer requires from a measured
// quadrupole scan. The datasets package's QuadScanDataset satisfies it; tests
// can supply in-memory implementations.
type ScanData interface {
	// ScanParameters returns the quadrupole strengths with shape (K, 1).
	ScanParameters() *tensor.Tensor

	// Images returns the measured screen images with shape (K, bins, bins),
	// with each image normalized to unit sum.
	Images() *tensor.Tensor
}

// TrainConfig holds the optimizer hyperparameters. Zero values select
// defaults.
type TrainConfig struct {
	// Epochs of full-scan gradient steps. Default 100.
	Epochs int

	// LearningRate for Adam. Default 0.01.
	LearningRate float64

	// Adam moment decay rates and stabilizer (defaults 0.9, 0.999, 1e-8).
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// QuadScanTrainer fits a trainable beam generator so that the model's
// simulated quad-scan images match measured ones under a mean-squared pixel
// loss. Gradients flow analytically: KDE image backward, then the transpose
// of each scan configuration's transfer matrix, then the generator backward.
type QuadScanTrainer struct {
	model *Model
	gen   beams.Trainable
	lat   *lattice.QuadScanLattice
	cfg   TrainConfig

	// Adam state over the generator's flat parameter vector.
	m, v []float64
	step int
}

// NewQuadScanTrainer validates that the model was built from a trainable
// generator and a quad-scan lattice.
func NewQuadScanTrainer(model *Model, cfg TrainConfig) (*QuadScanTrainer, error) {
	if model == nil {
		return nil, fmt.Errorf("model must not be nil")
	}
	gen, ok := model.Generator().(beams.Trainable)
	if !ok {
		return nil, fmt.Errorf("model generator %T is not trainable", model.Generator())
	}
	lat, ok := model.Lattice().(*lattice.QuadScanLattice)
	if !ok {
		return nil, fmt.Errorf("model lattice %T is not a quad-scan lattice", model.Lattice())
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 100
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	n := len(gen.Parameters())
	return &QuadScanTrainer{
		model: model,
		gen:   gen,
		lat:   lat,
		cfg:   cfg,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}, nil
}

// Train runs the configured number of epochs against the measured scan and
// returns the per-epoch loss history.
func (t *QuadScanTrainer) Train(data ScanData) ([]float64, error) {
	if data == nil {
		return nil, fmt.Errorf("scan data must not be nil")
	}
	params := data.ScanParameters()
	images := data.Images()
	if params == nil || images == nil {
		return nil, fmt.Errorf("scan data must provide parameters and images")
	}
	if params.Rank() != 2 || params.Shape[1] != 1 {
		return nil, fmt.Errorf("scan parameters must have shape (K, 1), got %v", params.Shape)
	}
	if images.Rank() != 3 || images.Shape[0] != params.Shape[0] {
		return nil, fmt.Errorf("images must have shape (K, bins, bins) with K=%d, got %v",
			params.Shape[0], images.Shape)
	}
	nb := t.lat.Screen().NumBins()
	if images.Shape[1] != nb || images.Shape[2] != nb {
		return nil, fmt.Errorf("images resolution %dx%d does not match screen bins %d",
			images.Shape[1], images.Shape[2], nb)
	}

	losses := make([]float64, 0, t.cfg.Epochs)
	for ep := 0; ep < t.cfg.Epochs; ep++ {
		loss, err := t.trainStep(params, images)
		if err != nil {
			return losses, fmt.Errorf("epoch %d: %w", ep, err)
		}
		losses = append(losses, loss)
	}
	return losses, nil
}

// trainStep runs one forward/backward pass over the whole scan and applies
// an Adam update to the generator parameters.
func (t *QuadScanTrainer) trainStep(params, images *tensor.Tensor) (float64, error) {
	beam, err := t.gen.Generate()
	if err != nil {
		return 0, err
	}
	if err := t.lat.SetLatticeParameters(params); err != nil {
		return 0, err
	}
	mats, err := t.lat.TransferMatrices(beam.P0C)
	if err != nil {
		return 0, err
	}

	screen := t.lat.Screen()
	nb := screen.NumBins()
	k := len(mats)
	n := beam.NumParticles()
	scale := 1.0 / float64(k*nb*nb)

	t.gen.ZeroGrad()
	dX := mat.NewDense(n, beams.NumCoords, nil)
	grad := tensor.New(nb, nb)
	totalLoss := 0.0

	for ki := 0; ki < k; ki++ {
		tracked := mat.NewDense(n, beams.NumCoords, nil)
		tracked.Mul(beam.Particles, mats[ki].T())
		final := &beams.Beam{Particles: tracked, P0C: beam.P0C}

		img, err := screen.Observe(final)
		if err != nil {
			return 0, fmt.Errorf("scan index %d: %w", ki, err)
		}
		target := images.Data[ki*nb*nb : (ki+1)*nb*nb]
		for px := range img.Data {
			diff := img.Data[px] - target[px]
			totalLoss += diff * diff * scale
			grad.Data[px] = 2.0 * diff * scale
		}

		gx, gy, err := screen.Backward(final, grad)
		if err != nil {
			return 0, fmt.Errorf("scan index %d: %w", ki, err)
		}
		dY := mat.NewDense(n, beams.NumCoords, nil)
		for i := 0; i < n; i++ {
			dY.Set(i, beams.CoordX, gx[i])
			dY.Set(i, beams.CoordY, gy[i])
		}
		// dL/dX += dL/dY * R  (Y = X R^T)
		var contrib mat.Dense
		contrib.Mul(dY, mats[ki])
		dX.Add(dX, &contrib)
	}

	if err := t.gen.Backward(dX); err != nil {
		return 0, err
	}
	t.adamStep()
	return totalLoss, nil
}

// adamStep applies one Adam update to the generator's live parameter vector.
func (t *QuadScanTrainer) adamStep() {
	p := t.gen.Parameters()
	g := t.gen.Gradients()
	t.step++
	bc1 := 1.0 - math.Pow(t.cfg.Beta1, float64(t.step))
	bc2 := 1.0 - math.Pow(t.cfg.Beta2, float64(t.step))
	for i := range p {
		t.m[i] = t.cfg.Beta1*t.m[i] + (1.0-t.cfg.Beta1)*g[i]
		t.v[i] = t.cfg.Beta2*t.v[i] + (1.0-t.cfg.Beta2)*g[i]*g[i]
		mHat := t.m[i] / bc1
		vHat := t.v[i] / bc2
		p[i] -= t.cfg.LearningRate * mHat / (math.Sqrt(vHat) + t.cfg.Epsilon)
	}
}
