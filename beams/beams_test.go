package beams

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFromCoordsValidation(t *testing.T) {
	if _, err := FromCoords(mat.NewDense(3, 5, nil), 10e6); err == nil {
		t.Error("expected error for wrong column count")
	}
	if _, err := FromCoords(mat.NewDense(3, 6, nil), 0); err == nil {
		t.Error("expected error for non-positive momentum")
	}
	b, err := FromCoords(mat.NewDense(3, 6, nil), 10e6)
	if err != nil {
		t.Fatal(err)
	}
	if b.NumParticles() != 3 {
		t.Errorf("NumParticles = %d, want 3", b.NumParticles())
	}
}

func TestBeamCloneIndependent(t *testing.T) {
	b := NewBeam(2, 10e6)
	b.Particles.Set(0, CoordX, 1.5)
	c := b.Clone()
	c.Particles.Set(0, CoordX, -1.5)
	if b.Particles.At(0, CoordX) != 1.5 {
		t.Error("clone must not share particle storage")
	}
}

func TestBeamCoordinate(t *testing.T) {
	b := NewBeam(3, 10e6)
	for i := 0; i < 3; i++ {
		b.Particles.Set(i, CoordPY, float64(i))
	}
	py := b.Coordinate(CoordPY)
	if len(py) != 3 || py[0] != 0 || py[2] != 2 {
		t.Errorf("Coordinate(CoordPY) = %v", py)
	}
}

func TestLinearGeneratorDeterministic(t *testing.T) {
	g, err := NewLinearGenerator(LinearConfig{NumParticles: 50, Seed: 1, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := g.Generate()
	b, _ := g.Generate()
	if !mat.EqualApprox(a.Particles, b.Particles, 0) {
		t.Error("deterministic generator must reproduce the same ensemble")
	}
}

func TestLinearGeneratorStochastic(t *testing.T) {
	g, err := NewLinearGenerator(LinearConfig{NumParticles: 50, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := g.Generate()
	b, _ := g.Generate()
	if mat.EqualApprox(a.Particles, b.Particles, 0) {
		t.Error("stochastic generator should draw fresh samples each call")
	}
}

func TestLinearGeneratorScale(t *testing.T) {
	g, err := NewLinearGenerator(LinearConfig{NumParticles: 5000, Scale: 2e-3, Seed: 3, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	beam, _ := g.Generate()
	x := beam.Coordinate(CoordX)
	var sum2 float64
	for _, v := range x {
		sum2 += v * v
	}
	rms := math.Sqrt(sum2 / float64(len(x)))
	if math.Abs(rms-2e-3) > 2e-4 {
		t.Errorf("rms x = %v, want about 2e-3", rms)
	}
}

func TestLinearGeneratorCloneIsolated(t *testing.T) {
	g, err := NewLinearGenerator(LinearConfig{NumParticles: 20, Seed: 5, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	c := g.Clone().(*LinearGenerator)
	orig, _ := g.Generate()
	fromClone, _ := c.Generate()
	if !mat.EqualApprox(orig.Particles, fromClone.Particles, 0) {
		t.Error("deterministic clone must reproduce the parent ensemble")
	}
	c.Parameters()[0] = 99
	if g.Parameters()[0] == 99 {
		t.Error("clone must have its own parameter storage")
	}
}

func TestLinearGeneratorBackwardBeforeGenerate(t *testing.T) {
	g, _ := NewLinearGenerator(LinearConfig{NumParticles: 4, Seed: 1})
	if err := g.Backward(mat.NewDense(4, NumCoords, nil)); err == nil {
		t.Error("expected error when Backward precedes Generate")
	}
}

// Parameter gradients must agree with central finite differences of the
// scalar loss sum(grad * X) for a frozen base ensemble.
func testGeneratorGradients(t *testing.T, g Trainable) {
	t.Helper()
	n := 0
	{
		beam, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		n = beam.NumParticles()
	}
	grad := mat.NewDense(n, NumCoords, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < NumCoords; j++ {
			grad.Set(i, j, math.Sin(float64(i*NumCoords+j)))
		}
	}
	loss := func() float64 {
		beam, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		s := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < NumCoords; j++ {
				s += grad.At(i, j) * beam.Particles.At(i, j)
			}
		}
		return s
	}

	g.ZeroGrad()
	if _, err := g.Generate(); err != nil {
		t.Fatal(err)
	}
	if err := g.Backward(grad); err != nil {
		t.Fatal(err)
	}

	params := g.Parameters()
	grads := g.Gradients()
	const h = 1e-6
	// probe a spread of parameters rather than the full vector
	for pi := 0; pi < len(params); pi += 1 + len(params)/25 {
		orig := params[pi]
		params[pi] = orig + h
		up := loss()
		params[pi] = orig - h
		down := loss()
		params[pi] = orig

		want := (up - down) / (2 * h)
		if math.Abs(grads[pi]-want) > 1e-4*math.Max(1, math.Abs(want)) {
			t.Errorf("grad[%d] = %v, finite difference %v", pi, grads[pi], want)
		}
	}
}

func TestLinearGeneratorGradients(t *testing.T) {
	g, err := NewLinearGenerator(LinearConfig{NumParticles: 30, Seed: 11, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	testGeneratorGradients(t, g)
}

func TestNNGeneratorGradients(t *testing.T) {
	g, err := NewNNGenerator(NNConfig{NumParticles: 20, HiddenSizes: []int{8}, Seed: 13, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	testGeneratorGradients(t, g)
}

func TestNNGeneratorOutputScale(t *testing.T) {
	g, err := NewNNGenerator(NNConfig{NumParticles: 200, OutputScale: 1e-3, Seed: 17, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	beam, _ := g.Generate()
	max := 0.0
	for i := 0; i < beam.NumParticles(); i++ {
		for j := 0; j < NumCoords; j++ {
			if v := math.Abs(beam.Particles.At(i, j)); v > max {
				max = v
			}
		}
	}
	// tanh hidden layers bound the pre-scale output magnitude, so the
	// coordinates stay within a few output scales.
	if max > 0.1 {
		t.Errorf("max coordinate %v unexpectedly large for OutputScale 1e-3", max)
	}
}

func TestNNGeneratorCloneIsolated(t *testing.T) {
	g, err := NewNNGenerator(NNConfig{NumParticles: 10, HiddenSizes: []int{6}, Seed: 19, Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	c := g.Clone().(*NNGenerator)
	a, _ := g.Generate()
	b, _ := c.Generate()
	if !mat.EqualApprox(a.Particles, b.Particles, 0) {
		t.Error("deterministic clone must reproduce the parent ensemble")
	}
	c.Parameters()[0] += 1
	d, _ := g.Generate()
	if !mat.EqualApprox(a.Particles, d.Particles, 0) {
		t.Error("mutating the clone must not change the parent")
	}
}
