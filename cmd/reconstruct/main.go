// Command reconstruct runs an end-to-end synthetic quadrupole-scan
// reconstruction: it simulates screen images of a hidden ground-truth beam,
// fits a fresh generative beam model to those images and reports how well
// the reconstructed ensemble matches the hidden one.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/datasets"
	"github.com/roussel-ryan/phase-space-reconstruction/diagnostics"
	"github.com/roussel-ryan/phase-space-reconstruction/histogram"
	"github.com/roussel-ryan/phase-space-reconstruction/lattice"
	"github.com/roussel-ryan/phase-space-reconstruction/reconstruct"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

func main() {
	var (
		particles = flag.Int("particles", 2000, "particles per generated ensemble")
		epochs    = flag.Int("epochs", 200, "training epochs")
		lr        = flag.Float64("lr", 0.01, "Adam learning rate")
		bins      = flag.Int("bins", 40, "screen resolution (bins per axis)")
		width     = flag.Float64("width", 0.01, "screen half-width in meters")
		ksteps    = flag.Int("ksteps", 7, "number of quadrupole strengths in the scan")
		kmax      = flag.Float64("kmax", 15.0, "quadrupole strength range [-kmax, kmax] in 1/m^2")
		seed      = flag.Int64("seed", 42, "random seed for the hidden ground-truth beam")
		outDir    = flag.String("out", "output", "output directory for plots and checkpoints")
		doPlots   = flag.Bool("plots", false, "render measurement heat maps")
	)
	flag.Parse()

	if err := run(*particles, *epochs, *lr, *bins, *width, *ksteps, *kmax, *seed, *outDir, *doPlots); err != nil {
		log.Fatal(err)
	}
}

func run(particles, epochs int, lr float64, bins int, width float64, ksteps int, kmax float64, seed int64, outDir string, doPlots bool) error {
	if ksteps < 2 {
		return fmt.Errorf("ksteps must be >= 2, got %d", ksteps)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	pixelBins := histogram.Linspace(-width, width, bins)
	screen, err := diagnostics.NewImageDiagnostic(pixelBins)
	if err != nil {
		return err
	}
	lat, err := lattice.NewQuadScanLattice(0.1, 1.0, screen)
	if err != nil {
		return err
	}

	// Hidden ground-truth beam: a correlated Gaussian the reconstruction
	// never sees directly, only through its screen images.
	truth, err := beams.NewLinearGenerator(beams.LinearConfig{
		NumParticles:  particles,
		Scale:         1.5e-3,
		Seed:          seed,
		Deterministic: true,
	})
	if err != nil {
		return err
	}
	p := truth.Parameters()
	p[beams.CoordX*beams.NumCoords+beams.CoordPX] = 0.8e-3  // x/px correlation
	p[beams.CoordY*beams.NumCoords+beams.CoordPY] = -0.5e-3 // y/py correlation

	truthModel, err := reconstruct.NewModel(truth, lat)
	if err != nil {
		return err
	}

	strengths := tensor.New(ksteps, 1)
	for i := 0; i < ksteps; i++ {
		strengths.Data[i] = -kmax + 2.0*kmax*float64(i)/float64(ksteps-1)
	}
	log.Printf("simulating %d-point quad scan with %d particles", ksteps, particles)
	observations, err := truthModel.Forward(strengths)
	if err != nil {
		return fmt.Errorf("forward simulation failed: %w", err)
	}

	ds, err := datasets.NewQuadScanDataset(strengths, observations[0], pixelBins)
	if err != nil {
		return err
	}
	if err := datasets.SaveQuadScanCSV(filepath.Join(outDir, "scan.csv"), ds); err != nil {
		return err
	}
	if doPlots {
		if err := ds.PlotData(filepath.Join(outDir, "measurements")); err != nil {
			return err
		}
	}

	// Fresh model with an independent seed; training only sees the images.
	guess, err := beams.NewLinearGenerator(beams.LinearConfig{
		NumParticles:  particles,
		Scale:         1e-3,
		Seed:          seed + 1,
		Deterministic: true,
	})
	if err != nil {
		return err
	}
	model, err := reconstruct.NewModel(guess, lat)
	if err != nil {
		return err
	}
	trainer, err := reconstruct.NewQuadScanTrainer(model, reconstruct.TrainConfig{
		Epochs:       epochs,
		LearningRate: lr,
	})
	if err != nil {
		return err
	}

	log.Printf("training for %d epochs (lr=%g)", epochs, lr)
	losses, err := trainer.Train(ds)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	log.Printf("loss: %.3e -> %.3e", losses[0], losses[len(losses)-1])

	truthBeam, err := truthModel.Generator().Generate()
	if err != nil {
		return err
	}
	recBeam, err := model.Generator().Generate()
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		col  int
	}{{"x", beams.CoordX}, {"y", beams.CoordY}} {
		t := rms(truthBeam.Coordinate(c.col))
		r := rms(recBeam.Coordinate(c.col))
		log.Printf("rms %s: truth %.4e m, reconstructed %.4e m", c.name, t, r)
	}

	checkpoint := filepath.Join(outDir, "reconstructed_beam.csv")
	if err := reconstruct.SaveBeamCSV(checkpoint, recBeam); err != nil {
		return err
	}
	log.Printf("reconstructed ensemble written to %s", checkpoint)
	return nil
}

func rms(values []float64) float64 {
	mean, std := stat.MeanStdDev(values, nil)
	return math.Hypot(mean, std)
}
