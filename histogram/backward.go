package histogram

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// Histogram2DBackward computes the gradient of a scalar loss with respect to
// the paired sample coordinates x1 and x2, given the gradient of the loss with
// respect to the Histogram2D output grid.
//
// grad must have shape (NUM_BINS, NUM_BINS) matching a single-row
// Histogram2D(x1, x2) result. The returned slices hold dLoss/dx1[n] and
// dLoss/dx2[n] for each sample n.
//
// The derivation uses the chain rule through the unnormalized kernel sum
// S[u][v] = sum_n kx[n][u]*ky[n][v] and the per-grid normalization
// I = S/(sum S + epsilon):
//
//	dL/dS[u][v] = grad[u][v]/(T+eps) - (sum grad*S)/(T+eps)^2
//	dL/dx[n]    = sum_u dkx[n][u]/dx[n] * sum_v dL/dS[u][v] * ky[n][v]
//
// with dkx/dx = -(x-bin)/sigma^2 * kx for the Gaussian kernel.
func Histogram2DBackward(x1, x2 []float64, bins []float64, bandwidth, epsilon float64, grad *tensor.Tensor) ([]float64, []float64, error) {
	if len(x1) == 0 || len(x1) != len(x2) {
		return nil, nil, fmt.Errorf("x1 and x2 must be non-empty and equal length, got %d and %d", len(x1), len(x2))
	}
	if len(bins) == 0 {
		return nil, nil, fmt.Errorf("bins must be a non-empty rank-1 sequence of bin centers")
	}
	if bandwidth <= 0 {
		return nil, nil, fmt.Errorf("bandwidth must be strictly positive, got %v", bandwidth)
	}
	nb := len(bins)
	if grad == nil || grad.Rank() != 2 || grad.Shape[0] != nb || grad.Shape[1] != nb {
		return nil, nil, fmt.Errorf("grad must have shape (%d, %d)", nb, nb)
	}
	if epsilon < 0 {
		return nil, nil, fmt.Errorf("epsilon must be non-negative, got %v", epsilon)
	}
	if epsilon == 0 {
		epsilon = DefaultEpsilon
	}

	n := len(x1)
	invS2 := 1.0 / (bandwidth * bandwidth)

	// Recompute the raw kernel weights and their coordinate derivatives.
	kx := mat.NewDense(n, nb, nil)
	ky := mat.NewDense(n, nb, nil)
	dkx := mat.NewDense(n, nb, nil)
	dky := mat.NewDense(n, nb, nil)
	for i := 0; i < n; i++ {
		for j, c := range bins {
			r1 := x1[i] - c
			w1 := math.Exp(-0.5 * r1 * r1 * invS2)
			kx.Set(i, j, w1)
			dkx.Set(i, j, -r1*invS2*w1)

			r2 := x2[i] - c
			w2 := math.Exp(-0.5 * r2 * r2 * invS2)
			ky.Set(i, j, w2)
			dky.Set(i, j, -r2*invS2*w2)
		}
	}

	// S = kx^T * ky, T = sum S.
	s := mat.NewDense(nb, nb, nil)
	s.Mul(kx.T(), ky)
	total := 0.0
	weighted := 0.0
	for u := 0; u < nb; u++ {
		for v := 0; v < nb; v++ {
			total += s.At(u, v)
			weighted += grad.At(u, v) * s.At(u, v)
		}
	}
	denom := total + epsilon

	// W[u][v] = dL/dS[u][v].
	w := mat.NewDense(nb, nb, nil)
	for u := 0; u < nb; u++ {
		for v := 0; v < nb; v++ {
			w.Set(u, v, grad.At(u, v)/denom-weighted/(denom*denom))
		}
	}

	// P[n][u] = sum_v W[u][v]*ky[n][v]; Q[n][v] = sum_u W[u][v]*kx[n][u].
	p := mat.NewDense(n, nb, nil)
	p.Mul(ky, w.T())
	q := mat.NewDense(n, nb, nil)
	q.Mul(kx, w)

	g1 := make([]float64, n)
	g2 := make([]float64, n)
	for i := 0; i < n; i++ {
		s1, s2 := 0.0, 0.0
		for j := 0; j < nb; j++ {
			s1 += dkx.At(i, j) * p.At(i, j)
			s2 += dky.At(i, j) * q.At(i, j)
		}
		g1[i] = s1
		g2[i] = s2
	}
	return g1, g2, nil
}
