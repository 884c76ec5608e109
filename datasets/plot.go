package datasets

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// imageGrid adapts a (bins, bins) observation tensor to the heat-map grid
// interface. Image rows index the horizontal screen coordinate.
type imageGrid struct {
	bins []float64
	img  *tensor.Tensor
}

func (g imageGrid) Dims() (int, int)   { return len(g.bins), len(g.bins) }
func (g imageGrid) Z(c, r int) float64 { return g.img.At(c, r) }
func (g imageGrid) X(c int) float64    { return g.bins[c] }
func (g imageGrid) Y(r int) float64    { return g.bins[r] }

// SaveImagePlot renders one screen observation as a heat map PNG.
func SaveImagePlot(path, title string, bins []float64, img *tensor.Tensor) error {
	if img == nil || img.Rank() != 2 || img.Shape[0] != len(bins) || img.Shape[1] != len(bins) {
		return fmt.Errorf("image must have shape (%d, %d)", len(bins), len(bins))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	p.Add(plotter.NewHeatMap(imageGrid{bins: bins, img: img}, moreland.SmoothBlueRed().Palette(255)))
	if err := p.Save(4*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// PlotData renders every scan point's image into dir, one PNG per setting.
func (d *QuadScanDataset) PlotData(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	strengths := d.ScanParameters()
	images := d.Images()
	nb := len(d.Bins)
	for ki := 0; ki < strengths.Shape[0]; ki++ {
		img, err := tensor.FromFlat(images.Data[ki*nb*nb:(ki+1)*nb*nb], nb, nb)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("scan_%02d.png", ki))
		title := fmt.Sprintf("k1 = %.3f 1/m^2", strengths.Data[ki])
		if err := SaveImagePlot(path, title, d.Bins, img); err != nil {
			return err
		}
	}
	return nil
}

// PlotData renders every (voltage, strength) grid point of both screens into
// dir, one PNG per screen and setting.
func (d *SixDScanDataset) PlotData(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	for s, obs := range d.Observations {
		nb := len(d.Bins[s])
		items := obs.Shape[0] * obs.Shape[1]
		for i := 0; i < items; i++ {
			img, err := tensor.FromFlat(obs.Data[i*nb*nb:(i+1)*nb*nb], nb, nb)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("screen%d_%03d.png", s+1, i))
			if err := SaveImagePlot(path, fmt.Sprintf("screen %d, setting %d", s+1, i), d.Bins[s], img); err != nil {
				return err
			}
		}
	}
	return nil
}
