package beams

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// NNConfig configures an NNGenerator. Zero values select defaults.
type NNConfig struct {
	// HiddenSizes lists the hidden layer widths. Default []int{20, 20}.
	HiddenSizes []int

	// OutputScale multiplies the network output to map it into physical
	// beam coordinates. Default 1e-2.
	OutputScale float64

	// NumParticles per generated ensemble. Default 10000.
	NumParticles int

	// P0C is the design momentum times c in eV. Default 10 MeV.
	P0C float64

	// Seed for weight init and base sampling. If zero, time-based.
	Seed int64

	// Deterministic freezes the base samples drawn at construction.
	Deterministic bool
}

// NNGenerator transforms unit-Gaussian base samples through a small MLP with
// tanh hidden activations and a linear, scaled output layer:
// X = MLP(Z) * OutputScale. Unlike LinearGenerator it can represent
// non-Gaussian phase-space densities.
type NNGenerator struct {
	cfg        NNConfig
	layerSizes []int

	params []float64
	grads  []float64
	// weights[l] and biases[l] are views into params for layer l.
	weights []*mat.Dense
	biases  [][]float64
	gradW   []*mat.Dense
	gradB   [][]float64

	normal *distmv.Normal
	rng    *rand.Rand
	frozen *mat.Dense

	// forward activations of the most recent Generate, needed by Backward.
	lastBase *mat.Dense
	preacts  []*mat.Dense
	acts     []*mat.Dense
}

// NewNNGenerator constructs an NNGenerator with Xavier-style uniform weight
// initialization.
func NewNNGenerator(cfg NNConfig) (*NNGenerator, error) {
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{20, 20}
	}
	if cfg.OutputScale == 0 {
		cfg.OutputScale = 1e-2
	}
	if cfg.NumParticles == 0 {
		cfg.NumParticles = 10000
	}
	if cfg.NumParticles < 1 {
		return nil, fmt.Errorf("NumParticles must be >= 1, got %d", cfg.NumParticles)
	}
	if cfg.P0C == 0 {
		cfg.P0C = 10.0e6
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, NumCoords)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, NumCoords)

	total := 0
	for l := 0; l < len(sizes)-1; l++ {
		total += sizes[l]*sizes[l+1] + sizes[l+1]
	}

	g := &NNGenerator{
		cfg:        cfg,
		layerSizes: sizes,
		params:     make([]float64, total),
		grads:      make([]float64, total),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}

	off := 0
	nLayers := len(sizes) - 1
	g.weights = make([]*mat.Dense, nLayers)
	g.biases = make([][]float64, nLayers)
	g.gradW = make([]*mat.Dense, nLayers)
	g.gradB = make([][]float64, nLayers)
	for l := 0; l < nLayers; l++ {
		in, out := sizes[l], sizes[l+1]
		g.weights[l] = mat.NewDense(out, in, g.params[off:off+out*in])
		g.gradW[l] = mat.NewDense(out, in, g.grads[off:off+out*in])
		off += out * in
		g.biases[l] = g.params[off : off+out]
		g.gradB[l] = g.grads[off : off+out]
		off += out

		limit := math.Sqrt(6.0 / float64(in+out))
		for j := 0; j < out; j++ {
			for i := 0; i < in; i++ {
				g.weights[l].Set(j, i, (g.rng.Float64()*2.0-1.0)*limit)
			}
		}
	}

	mu := make([]float64, NumCoords)
	sigma := mat.NewSymDense(NumCoords, nil)
	for i := 0; i < NumCoords; i++ {
		sigma.SetSym(i, i, 1.0)
	}
	normal, ok := distmv.NewNormal(mu, sigma, g.rng)
	if !ok {
		return nil, fmt.Errorf("failed to construct unit normal base distribution")
	}
	g.normal = normal

	if cfg.Deterministic {
		g.frozen = g.sample()
	}
	return g, nil
}

func (g *NNGenerator) sample() *mat.Dense {
	z := mat.NewDense(g.cfg.NumParticles, NumCoords, nil)
	row := make([]float64, NumCoords)
	for i := 0; i < g.cfg.NumParticles; i++ {
		g.normal.Rand(row)
		z.SetRow(i, row)
	}
	return z
}

// Generate runs the base samples through the network. The intermediate
// activations are retained for Backward.
func (g *NNGenerator) Generate() (*Beam, error) {
	var z *mat.Dense
	if g.cfg.Deterministic {
		z = g.frozen
	} else {
		z = g.sample()
	}
	g.lastBase = z

	nLayers := len(g.weights)
	g.preacts = make([]*mat.Dense, nLayers)
	g.acts = make([]*mat.Dense, nLayers+1)
	g.acts[0] = z

	n := g.cfg.NumParticles
	for l := 0; l < nLayers; l++ {
		out := g.layerSizes[l+1]
		pre := mat.NewDense(n, out, nil)
		pre.Mul(g.acts[l], g.weights[l].T())
		for i := 0; i < n; i++ {
			for j := 0; j < out; j++ {
				pre.Set(i, j, pre.At(i, j)+g.biases[l][j])
			}
		}
		g.preacts[l] = pre

		act := mat.NewDense(n, out, nil)
		if l < nLayers-1 {
			for i := 0; i < n; i++ {
				for j := 0; j < out; j++ {
					act.Set(i, j, math.Tanh(pre.At(i, j)))
				}
			}
		} else {
			act.Copy(pre)
		}
		g.acts[l+1] = act
	}

	x := mat.NewDense(n, NumCoords, nil)
	x.Scale(g.cfg.OutputScale, g.acts[nLayers])
	return &Beam{Particles: x, P0C: g.cfg.P0C}, nil
}

// Backward backpropagates dLoss/dCoords through the network, accumulating
// weight and bias gradients for the most recent Generate call.
func (g *NNGenerator) Backward(grad *mat.Dense) error {
	if g.lastBase == nil {
		return fmt.Errorf("Backward called before Generate")
	}
	n := g.cfg.NumParticles
	r, c := grad.Dims()
	if r != n || c != NumCoords {
		return fmt.Errorf("grad must have shape (%d, %d), got (%d, %d)", n, NumCoords, r, c)
	}

	nLayers := len(g.weights)
	delta := mat.NewDense(n, NumCoords, nil)
	delta.Scale(g.cfg.OutputScale, grad)

	for l := nLayers - 1; l >= 0; l-- {
		var gw mat.Dense
		gw.Mul(delta.T(), g.acts[l])
		g.gradW[l].Add(g.gradW[l], &gw)

		_, out := delta.Dims()
		for j := 0; j < out; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += delta.At(i, j)
			}
			g.gradB[l][j] += sum
		}

		if l > 0 {
			prev := mat.NewDense(n, g.layerSizes[l], nil)
			prev.Mul(delta, g.weights[l])
			// tanh' = 1 - tanh^2 of the previous layer's pre-activation
			for i := 0; i < n; i++ {
				for j := 0; j < g.layerSizes[l]; j++ {
					th := math.Tanh(g.preacts[l-1].At(i, j))
					prev.Set(i, j, prev.At(i, j)*(1.0-th*th))
				}
			}
			delta = prev
		}
	}
	return nil
}

// Parameters returns the live flat parameter vector.
func (g *NNGenerator) Parameters() []float64 { return g.params }

// Gradients returns the live flat gradient accumulator.
func (g *NNGenerator) Gradients() []float64 { return g.grads }

// ZeroGrad clears the gradient accumulator.
func (g *NNGenerator) ZeroGrad() {
	for i := range g.grads {
		g.grads[i] = 0
	}
}

// Clone returns an independent copy with its own parameter storage.
func (g *NNGenerator) Clone() Generator {
	cfg := g.cfg
	cfg.Seed = g.rng.Int63()
	clone, err := NewNNGenerator(cfg)
	if err != nil {
		panic(err)
	}
	copy(clone.params, g.params)
	if g.frozen != nil {
		clone.frozen = mat.DenseCopyOf(g.frozen)
	}
	return clone
}
