// Package histogram implements differentiable kernel density estimation on
// fixed bin grids. An unordered ensemble of continuous samples is converted
// into a smooth, normalized density usable as a proxy for a measured pixel
// histogram: every sample contributes a Gaussian kernel weight to every bin,
// weights are averaged over the sample axis and each batch row is normalized
// to unit sum. No hard binning or rounding happens anywhere, so the output is
// smooth in the sample coordinates and closed-form gradients exist (see
// Histogram2DBackward).
package histogram

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// DefaultEpsilon is the additive floor applied to normalization denominators
// when the caller passes zero. It keeps rows where every sample sits far from
// every bin near-uniform and near-zero instead of NaN.
const DefaultEpsilon = 1e-10

// MarginalPDF estimates per-bin densities for each batch row of values.
//
// values must have shape (B, N, 1): B batches of N scalar samples. bins is
// the ordered sequence of bin centers shared by every row. sigma is the
// Gaussian kernel bandwidth and must be strictly positive.
//
// It returns the normalized per-bin pdf with shape (B, NUM_BINS) and the raw
// per-sample kernel weights with shape (B, N, NUM_BINS). The raw weights are
// needed unreduced by JointPDF.
func MarginalPDF(values *tensor.Tensor, bins []float64, sigma, epsilon float64) (*tensor.Tensor, *tensor.Tensor, error) {
	if values == nil {
		return nil, nil, fmt.Errorf("values must not be nil")
	}
	if values.Rank() != 3 || values.Shape[2] != 1 {
		return nil, nil, fmt.Errorf("values must have shape (B, N, 1), got %v", values.Shape)
	}
	if values.Shape[1] == 0 {
		return nil, nil, fmt.Errorf("values must hold at least one sample per batch row, got shape %v", values.Shape)
	}
	if len(bins) == 0 {
		return nil, nil, fmt.Errorf("bins must be a non-empty rank-1 sequence of bin centers")
	}
	if sigma <= 0 {
		return nil, nil, fmt.Errorf("sigma must be strictly positive, got %v", sigma)
	}
	if epsilon < 0 {
		return nil, nil, fmt.Errorf("epsilon must be non-negative, got %v", epsilon)
	}
	if epsilon == 0 {
		epsilon = DefaultEpsilon
	}

	b, n, nb := values.Shape[0], values.Shape[1], len(bins)
	kernel := tensor.New(b, n, nb)
	pdf := tensor.New(b, nb)

	inv2s2 := 0.5 / (sigma * sigma)
	for bi := 0; bi < b; bi++ {
		rowSum := 0.0
		for ni := 0; ni < n; ni++ {
			v := values.Data[bi*n+ni]
			base := (bi*n + ni) * nb
			for ki, c := range bins {
				r := v - c
				w := math.Exp(-r * r * inv2s2)
				kernel.Data[base+ki] = w
				pdf.Data[bi*nb+ki] += w
			}
		}
		// mean over samples, then normalize the row to unit sum. The
		// epsilon floor is added after summation so it never leaks into
		// the kernel weights themselves.
		for ki := 0; ki < nb; ki++ {
			pdf.Data[bi*nb+ki] /= float64(n)
			rowSum += pdf.Data[bi*nb+ki]
		}
		norm := rowSum + epsilon
		for ki := 0; ki < nb; ki++ {
			pdf.Data[bi*nb+ki] /= norm
		}
	}
	return pdf, kernel, nil
}

// JointPDF combines two raw kernel-weight tensors from MarginalPDF over the
// same N samples into a normalized 2-D joint density of shape
// (B, NUM_BINS, NUM_BINS). The sample axis is summed implicitly by a batched
// matrix product of the transposed first kernel against the second.
func JointPDF(kernel1, kernel2 *tensor.Tensor, epsilon float64) (*tensor.Tensor, error) {
	if kernel1 == nil || kernel2 == nil {
		return nil, fmt.Errorf("kernel tensors must not be nil")
	}
	if kernel1.Rank() != 3 || kernel2.Rank() != 3 {
		return nil, fmt.Errorf("kernel tensors must have shape (B, N, NUM_BINS), got %v and %v",
			kernel1.Shape, kernel2.Shape)
	}
	if !tensor.SameShape(kernel1, kernel2) {
		return nil, fmt.Errorf("kernel tensors must have the same shape, got %v and %v",
			kernel1.Shape, kernel2.Shape)
	}
	if epsilon < 0 {
		return nil, fmt.Errorf("epsilon must be non-negative, got %v", epsilon)
	}
	if epsilon == 0 {
		epsilon = DefaultEpsilon
	}

	b, n, nb := kernel1.Shape[0], kernel1.Shape[1], kernel1.Shape[2]
	out := tensor.New(b, nb, nb)
	for bi := 0; bi < b; bi++ {
		k1 := mat.NewDense(n, nb, kernel1.Data[bi*n*nb:(bi+1)*n*nb])
		k2 := mat.NewDense(n, nb, kernel2.Data[bi*n*nb:(bi+1)*n*nb])
		joint := mat.NewDense(nb, nb, out.Data[bi*nb*nb:(bi+1)*nb*nb])
		joint.Mul(k1.T(), k2)

		sum := 0.0
		for _, v := range out.Data[bi*nb*nb : (bi+1)*nb*nb] {
			sum += v
		}
		norm := sum + epsilon
		grid := out.Data[bi*nb*nb : (bi+1)*nb*nb]
		for i := range grid {
			grid[i] /= norm
		}
	}
	return out, nil
}

// Histogram estimates 1-D densities for a batch of scalar samples.
// x has shape (B, D): B independent rows of D samples each. The result has
// shape (B, NUM_BINS) and each row sums to one (up to the epsilon floor).
func Histogram(x *tensor.Tensor, bins []float64, bandwidth, epsilon float64) (*tensor.Tensor, error) {
	if x == nil {
		return nil, fmt.Errorf("x must not be nil")
	}
	if x.Rank() != 2 {
		return nil, fmt.Errorf("x must have shape (B, D), got %v", x.Shape)
	}
	values, err := x.Reshape(x.Shape[0], x.Shape[1], 1)
	if err != nil {
		return nil, err
	}
	pdf, _, err := MarginalPDF(values, bins, bandwidth, epsilon)
	return pdf, err
}

// Histogram2D estimates 2-D joint densities of paired sample coordinates,
// e.g. horizontal and vertical screen positions of the same particles.
// x1 and x2 must both have shape (B, D) with samples paired along D. The
// result has shape (B, NUM_BINS, NUM_BINS) and each grid sums to one.
func Histogram2D(x1, x2 *tensor.Tensor, bins []float64, bandwidth, epsilon float64) (*tensor.Tensor, error) {
	if x1 == nil || x2 == nil {
		return nil, fmt.Errorf("x1 and x2 must not be nil")
	}
	if x1.Rank() != 2 || x2.Rank() != 2 {
		return nil, fmt.Errorf("x1 and x2 must have shape (B, D), got %v and %v", x1.Shape, x2.Shape)
	}
	if !tensor.SameShape(x1, x2) {
		return nil, fmt.Errorf("x1 and x2 must have the same shape, got %v and %v", x1.Shape, x2.Shape)
	}
	v1, err := x1.Reshape(x1.Shape[0], x1.Shape[1], 1)
	if err != nil {
		return nil, err
	}
	v2, err := x2.Reshape(x2.Shape[0], x2.Shape[1], 1)
	if err != nil {
		return nil, err
	}
	_, k1, err := MarginalPDF(v1, bins, bandwidth, epsilon)
	if err != nil {
		return nil, err
	}
	_, k2, err := MarginalPDF(v2, bins, bandwidth, epsilon)
	if err != nil {
		return nil, err
	}
	return JointPDF(k1, k2, epsilon)
}

// Linspace returns n evenly spaced bin centers from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	if n < 2 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
