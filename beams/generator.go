package beams

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Generator produces a fresh BeamEnsemble per call. The reconstruction model
// does not inspect how the ensemble is generated; it only relies on this
// zero-argument contract. Unless a generator is explicitly deterministic, a
// new ensemble is generated on every call.
type Generator interface {
	Generate() (*Beam, error)

	// Clone returns an independent copy so that a model owning the clone
	// never observes mutation of the caller's template instance.
	Clone() Generator
}

// Trainable is implemented by generators whose parameters can be optimized by
// gradient descent. Parameters and Gradients expose live flat views shared
// with the generator's internal matrices, so an optimizer can update them in
// place.
type Trainable interface {
	Generator

	// Backward accumulates parameter gradients given dLoss/dCoords for the
	// ensemble produced by the most recent Generate call.
	Backward(grad *mat.Dense) error

	Parameters() []float64
	Gradients() []float64
	ZeroGrad()
}

// LinearConfig configures a LinearGenerator. Zero values select defaults.
type LinearConfig struct {
	// NumParticles in each generated ensemble. Default 10000.
	NumParticles int

	// P0C is the design momentum times c in eV. Default 10 MeV.
	P0C float64

	// Scale is the initial magnitude of the transform diagonal, i.e. the
	// rms beam size before training. Default 1e-3.
	Scale float64

	// Seed for the base-distribution sampler. If zero, a time-based seed
	// is used.
	Seed int64

	// Deterministic freezes the base samples drawn at construction so
	// every Generate call transforms the same underlying ensemble. When
	// false, fresh base samples are drawn on every call.
	Deterministic bool
}

// LinearGenerator produces ensembles by applying a learnable affine transform
// to samples from a unit 6-D Gaussian: X = Z A^T + mu. The 36 transform
// entries and 6 offsets are the trainable parameters, enough to represent an
// arbitrary correlated Gaussian beam.
type LinearGenerator struct {
	cfg    LinearConfig
	params []float64 // 36 transform entries followed by 6 offsets
	grads  []float64

	transform *mat.Dense // 6x6 view over params[:36]
	normal    *distmv.Normal
	rng       *rand.Rand

	frozen   *mat.Dense // fixed base samples when Deterministic
	lastBase *mat.Dense // base samples of the most recent Generate
}

// NewLinearGenerator constructs a LinearGenerator with the transform
// initialized to Scale times the identity.
func NewLinearGenerator(cfg LinearConfig) (*LinearGenerator, error) {
	if cfg.NumParticles == 0 {
		cfg.NumParticles = 10000
	}
	if cfg.NumParticles < 1 {
		return nil, fmt.Errorf("NumParticles must be >= 1, got %d", cfg.NumParticles)
	}
	if cfg.P0C == 0 {
		cfg.P0C = 10.0e6
	}
	if cfg.P0C < 0 {
		return nil, fmt.Errorf("P0C must be positive, got %v", cfg.P0C)
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1e-3
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	g := &LinearGenerator{
		cfg:    cfg,
		params: make([]float64, NumCoords*NumCoords+NumCoords),
		grads:  make([]float64, NumCoords*NumCoords+NumCoords),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	g.transform = mat.NewDense(NumCoords, NumCoords, g.params[:NumCoords*NumCoords])
	for i := 0; i < NumCoords; i++ {
		g.transform.Set(i, i, cfg.Scale)
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

// sample draws NumParticles base vectors from the unit Gaussian.
func (g *LinearGenerator) sample() *mat.Dense {
	z := mat.NewDense(g.cfg.NumParticles, NumCoords, nil)
	row := make([]float64, NumCoords)
	for i := 0; i < g.cfg.NumParticles; i++ {
		g.normal.Rand(row)
		z.SetRow(i, row)
	}
	return z
}

// Generate produces a fresh ensemble X = Z A^T + mu.
func (g *LinearGenerator) Generate() (*Beam, error) {
	var z *mat.Dense
	if g.cfg.Deterministic {
		z = g.frozen
	} else {
		z = g.sample()
	}
	g.lastBase = z

	x := mat.NewDense(g.cfg.NumParticles, NumCoords, nil)
	x.Mul(z, g.transform.T())
	offsets := g.params[NumCoords*NumCoords:]
	for i := 0; i < g.cfg.NumParticles; i++ {
		for j := 0; j < NumCoords; j++ {
			x.Set(i, j, x.At(i, j)+offsets[j])
		}
	}
	return &Beam{Particles: x, P0C: g.cfg.P0C}, nil
}

// Backward accumulates dLoss/dA += grad^T Z and dLoss/dmu += column sums of
// grad, where Z is the base ensemble of the most recent Generate call.
func (g *LinearGenerator) Backward(grad *mat.Dense) error {
	if g.lastBase == nil {
		return fmt.Errorf("Backward called before Generate")
	}
	r, c := grad.Dims()
	if r != g.cfg.NumParticles || c != NumCoords {
		return fmt.Errorf("grad must have shape (%d, %d), got (%d, %d)", g.cfg.NumParticles, NumCoords, r, c)
	}

	var ga mat.Dense
	ga.Mul(grad.T(), g.lastBase)
	gaData := g.grads[:NumCoords*NumCoords]
	for i := 0; i < NumCoords; i++ {
		for j := 0; j < NumCoords; j++ {
			gaData[i*NumCoords+j] += ga.At(i, j)
		}
	}
	gm := g.grads[NumCoords*NumCoords:]
	for i := 0; i < r; i++ {
		for j := 0; j < NumCoords; j++ {
			gm[j] += grad.At(i, j)
		}
	}
	return nil
}

// Parameters returns the live flat parameter vector (transform then offsets).
func (g *LinearGenerator) Parameters() []float64 { return g.params }

// Gradients returns the live flat gradient accumulator.
func (g *LinearGenerator) Gradients() []float64 { return g.grads }

// ZeroGrad clears the gradient accumulator.
func (g *LinearGenerator) ZeroGrad() {
	for i := range g.grads {
		g.grads[i] = 0
	}
}

// Clone returns an independent copy with its own parameter storage and an
// independent random stream seeded from this generator's stream. Frozen base
// samples are copied so a deterministic clone reproduces its parent's
// ensemble.
func (g *LinearGenerator) Clone() Generator {
	cfg := g.cfg
	cfg.Seed = g.rng.Int63()
	clone, err := NewLinearGenerator(cfg)
	if err != nil {
		// Construction from a validated config cannot fail.
		panic(err)
	}
	copy(clone.params, g.params)
	if g.frozen != nil {
		clone.frozen = mat.DenseCopyOf(g.frozen)
	}
	return clone
}
