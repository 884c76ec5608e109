package histogram

import (
	"math"
	"math/rand"
	"testing"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

func randomSamples(rng *rand.Rand, b, d, scale int) *tensor.Tensor {
	x := tensor.New(b, d)
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64() * float64(scale) / 10.0
	}
	return x
}

func TestLinspace(t *testing.T) {
	bins := Linspace(-1, 1, 5)
	want := []float64{-1, -0.5, 0, 0.5, 1}
	if len(bins) != len(want) {
		t.Fatalf("got %d bins, want %d", len(bins), len(want))
	}
	for i := range want {
		if math.Abs(bins[i]-want[i]) > 1e-12 {
			t.Errorf("bin %d = %v, want %v", i, bins[i], want[i])
		}
	}
}

func TestHistogramRowsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bins := Linspace(-1, 1, 100)
	x := randomSamples(rng, 1, 10, 1)

	h, err := Histogram(x, bins, 0.05, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Shape[0] != 1 || h.Shape[1] != 100 {
		t.Fatalf("unexpected shape %v", h.Shape)
	}
	sum := 0.0
	for _, v := range h.Data {
		if v < 0 {
			t.Fatalf("negative density %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("row sum = %v, want 1", sum)
	}
}

func TestHistogram2DSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	bins := Linspace(-1, 1, 32)
	x1 := randomSamples(rng, 3, 50, 2)
	x2 := randomSamples(rng, 3, 50, 2)

	h, err := Histogram2D(x1, x2, bins, 0.1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Shape[0] != 3 || h.Shape[1] != 32 || h.Shape[2] != 32 {
		t.Fatalf("unexpected shape %v", h.Shape)
	}
	nb := len(bins)
	for bi := 0; bi < 3; bi++ {
		sum := 0.0
		for _, v := range h.Data[bi*nb*nb : (bi+1)*nb*nb] {
			if v < 0 {
				t.Fatalf("negative density %v in grid %d", v, bi)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("grid %d sums to %v, want 1", bi, sum)
		}
	}
}

// Swapping the two coordinate inputs must transpose each joint grid.
func TestHistogram2DSwapTransposes(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bins := Linspace(-0.5, 0.5, 16)
	x1 := randomSamples(rng, 2, 40, 1)
	x2 := randomSamples(rng, 2, 40, 1)

	ab, err := Histogram2D(x1, x2, bins, 0.07, 0)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Histogram2D(x2, x1, bins, 0.07, 0)
	if err != nil {
		t.Fatal(err)
	}
	nb := len(bins)
	for bi := 0; bi < 2; bi++ {
		for i := 0; i < nb; i++ {
			for j := 0; j < nb; j++ {
				a := ab.Data[bi*nb*nb+i*nb+j]
				b := ba.Data[bi*nb*nb+j*nb+i]
				if math.Abs(a-b) > 1e-12 {
					t.Fatalf("grid %d not transposed at (%d,%d): %v vs %v", bi, i, j, a, b)
				}
			}
		}
	}
}

func TestHistogramConcentratesMass(t *testing.T) {
	bins := Linspace(-1, 1, 21)
	x, _ := tensor.FromFlat([]float64{0, 0, 0, 0}, 1, 4)

	h, err := Histogram(x, bins, 0.05, 0)
	if err != nil {
		t.Fatal(err)
	}
	// all samples at zero: the center bin should dominate.
	center := h.Data[10]
	for i, v := range h.Data {
		if i != 10 && v > center {
			t.Errorf("bin %d (%v) exceeds center bin (%v)", i, v, center)
		}
	}
	if center < 0.5 {
		t.Errorf("center bin mass %v too small", center)
	}
}

func TestMarginalPDFErrors(t *testing.T) {
	bins := Linspace(-1, 1, 10)
	good := tensor.New(1, 5, 1)

	if _, _, err := MarginalPDF(nil, bins, 0.1, 0); err == nil {
		t.Error("expected error for nil values")
	}
	if _, _, err := MarginalPDF(tensor.New(5), bins, 0.1, 0); err == nil {
		t.Error("expected error for rank-1 values")
	}
	if _, _, err := MarginalPDF(tensor.New(1, 5, 2), bins, 0.1, 0); err == nil {
		t.Error("expected error for trailing axis != 1")
	}
	// an empty sample axis would divide 0/0 in the mean and emit NaNs
	if _, _, err := MarginalPDF(tensor.New(1, 0, 1), bins, 0.1, 0); err == nil {
		t.Error("expected error for empty sample axis")
	}
	if _, err := Histogram(tensor.New(2, 0), bins, 0.1, 0); err == nil {
		t.Error("expected error for empty sample axis via Histogram")
	}
	if _, _, err := MarginalPDF(good, nil, 0.1, 0); err == nil {
		t.Error("expected error for empty bins")
	}
	if _, _, err := MarginalPDF(good, bins, 0, 0); err == nil {
		t.Error("expected error for zero sigma")
	}
	if _, _, err := MarginalPDF(good, bins, -0.1, 0); err == nil {
		t.Error("expected error for negative sigma")
	}
	if _, _, err := MarginalPDF(good, bins, 0.1, -1); err == nil {
		t.Error("expected error for negative epsilon")
	}
}

func TestJointPDFShapeMismatch(t *testing.T) {
	if _, err := JointPDF(tensor.New(1, 5, 10), tensor.New(1, 6, 10), 0); err == nil {
		t.Error("expected error for mismatched kernel shapes")
	}
	if _, err := JointPDF(tensor.New(1, 5, 10), nil, 0); err == nil {
		t.Error("expected error for nil kernel")
	}
}

func TestHistogram2DShapeMismatch(t *testing.T) {
	bins := Linspace(-1, 1, 8)
	if _, err := Histogram2D(tensor.New(1, 5), tensor.New(1, 6), bins, 0.1, 0); err == nil {
		t.Error("expected error for mismatched sample shapes")
	}
}

// Histogram2DBackward must agree with central finite differences of the
// scalar loss sum(grad * histogram2d(x1, x2)).
func TestHistogram2DBackwardFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bins := Linspace(-1, 1, 12)
	nb := len(bins)
	const n = 6
	bandwidth := 0.2

	x1 := make([]float64, n)
	x2 := make([]float64, n)
	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64() * 0.3
		x2[i] = rng.NormFloat64() * 0.3
	}
	grad := tensor.New(nb, nb)
	for i := range grad.Data {
		grad.Data[i] = rng.NormFloat64()
	}

	loss := func(a, b []float64) float64 {
		t1, _ := tensor.FromFlat(append([]float64(nil), a...), 1, n)
		t2, _ := tensor.FromFlat(append([]float64(nil), b...), 1, n)
		h, err := Histogram2D(t1, t2, bins, bandwidth, 0)
		if err != nil {
			t.Fatal(err)
		}
		s := 0.0
		for i, v := range h.Data {
			s += grad.Data[i] * v
		}
		return s
	}

	g1, g2, err := Histogram2DBackward(x1, x2, bins, bandwidth, 0, grad)
	if err != nil {
		t.Fatal(err)
	}

	const h = 1e-6
	for i := 0; i < n; i++ {
		for _, c := range []struct {
			samples []float64
			grad    []float64
			name    string
		}{{x1, g1, "x1"}, {x2, g2, "x2"}} {
			orig := c.samples[i]
			c.samples[i] = orig + h
			up := loss(x1, x2)
			c.samples[i] = orig - h
			down := loss(x1, x2)
			c.samples[i] = orig

			want := (up - down) / (2 * h)
			if math.Abs(c.grad[i]-want) > 1e-4*math.Max(1, math.Abs(want)) {
				t.Errorf("d loss/d %s[%d] = %v, finite difference %v", c.name, i, c.grad[i], want)
			}
		}
	}
}

func TestHistogram2DBackwardErrors(t *testing.T) {
	bins := Linspace(-1, 1, 8)
	grad := tensor.New(8, 8)
	if _, _, err := Histogram2DBackward([]float64{1, 2}, []float64{1}, bins, 0.1, 0, grad); err == nil {
		t.Error("expected error for mismatched sample lengths")
	}
	if _, _, err := Histogram2DBackward([]float64{1}, []float64{1}, bins, 0.1, 0, tensor.New(8, 7)); err == nil {
		t.Error("expected error for wrong gradient shape")
	}
	if _, _, err := Histogram2DBackward([]float64{1}, []float64{1}, bins, 0, 0, grad); err == nil {
		t.Error("expected error for zero bandwidth")
	}
}
