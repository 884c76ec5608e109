package datasets

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/roussel-ryan/phase-space-reconstruction/histogram"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

func TestNewObservableDatasetValidation(t *testing.T) {
	params := tensor.New(1, 4, 1)
	obs := tensor.New(4, 8, 8)

	if _, err := NewObservableDataset(nil, []*tensor.Tensor{obs}); err == nil {
		t.Error("expected error for nil parameters")
	}
	if _, err := NewObservableDataset(tensor.New(4), []*tensor.Tensor{obs}); err == nil {
		t.Error("expected error for rank-1 parameters")
	}
	// a bare observation is not a tuple: zero tensors must be rejected
	if _, err := NewObservableDataset(params, nil); err == nil {
		t.Error("expected error for empty observation tuple")
	}
	if _, err := NewObservableDataset(params, []*tensor.Tensor{nil}); err == nil {
		t.Error("expected error for nil observation entry")
	}
	// batch-axis disagreement must fail at construction, not first use
	if _, err := NewObservableDataset(params, []*tensor.Tensor{tensor.New(3, 8, 8)}); err == nil {
		t.Error("expected error for batch shape mismatch")
	}
	if _, err := NewObservableDataset(params, []*tensor.Tensor{obs}); err != nil {
		t.Errorf("valid dataset rejected: %v", err)
	}
}

func TestObservableDatasetLenAndItem(t *testing.T) {
	// M=2 passes, batch (3, 4), K=1
	params := tensor.New(2, 3, 4, 1)
	for i := range params.Data {
		params.Data[i] = float64(i)
	}
	obs := tensor.New(3, 4, 5, 5)
	for i := range obs.Data {
		obs.Data[i] = float64(i)
	}
	d, err := NewObservableDataset(params, []*tensor.Tensor{obs})
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 12 {
		t.Fatalf("Len = %d, want 12", d.Len())
	}
	bs := d.BatchShape()
	if len(bs) != 2 || bs[0] != 3 || bs[1] != 4 {
		t.Fatalf("BatchShape = %v, want [3 4]", bs)
	}

	p, o, err := d.Item(5)
	if err != nil {
		t.Fatal(err)
	}
	if p.Rank() != 2 || p.Shape[0] != 2 || p.Shape[1] != 1 {
		t.Fatalf("item parameter shape %v, want (2, 1)", p.Shape)
	}
	// pass 0 flat index 5, pass 1 flat index 12+5
	if p.Data[0] != 5 || p.Data[1] != 17 {
		t.Errorf("item parameters = %v, want [5 17]", p.Data)
	}
	if len(o) != 1 || o[0].Rank() != 2 || o[0].Shape[0] != 5 || o[0].Shape[1] != 5 {
		t.Fatalf("item observation shape wrong: %v", o[0].Shape)
	}
	if o[0].Data[0] != float64(5*25) {
		t.Errorf("item observation starts at %v, want %v", o[0].Data[0], float64(5*25))
	}

	if _, _, err := d.Item(12); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestQuadScanDatasetAccessors(t *testing.T) {
	bins := histogram.Linspace(-0.01, 0.01, 4)
	strengths, _ := tensor.FromFlat([]float64{-2, 0, 2}, 3, 1)
	images := tensor.New(3, 4, 4)
	for i := range images.Data {
		images.Data[i] = float64(i)
	}

	d, err := NewQuadScanDataset(strengths, images, bins)
	if err != nil {
		t.Fatal(err)
	}
	sp := d.ScanParameters()
	if sp.Rank() != 2 || sp.Shape[0] != 3 || sp.Shape[1] != 1 {
		t.Fatalf("ScanParameters shape %v, want (3, 1)", sp.Shape)
	}
	if sp.Data[2] != 2 {
		t.Errorf("ScanParameters data %v", sp.Data)
	}
	img := d.Images()
	if img.Rank() != 3 || img.Shape[0] != 3 {
		t.Fatalf("Images shape %v", img.Shape)
	}

	if _, err := NewQuadScanDataset(tensor.New(3, 2), images, bins); err == nil {
		t.Error("expected error for bad strength shape")
	}
	if _, err := NewQuadScanDataset(strengths, tensor.New(3, 5, 5), bins); err == nil {
		t.Error("expected error for resolution mismatch")
	}
}

func TestSixDScanDatasetValidation(t *testing.T) {
	bins := [2][]float64{histogram.Linspace(-1, 1, 4), histogram.Linspace(-1, 1, 6)}
	params := tensor.New(2, 2, 3, 3)
	obs := []*tensor.Tensor{tensor.New(2, 3, 4, 4), tensor.New(2, 3, 6, 6)}

	if _, err := NewSixDScanDataset(params, obs, bins); err != nil {
		t.Fatalf("valid six-dimensional scan rejected: %v", err)
	}
	// the dipole axis encodes off/on and must be exactly 2
	if _, err := NewSixDScanDataset(tensor.New(3, 2, 3, 3), obs, bins); err == nil {
		t.Error("expected error for dipole axis != 2")
	}
	if _, err := NewSixDScanDataset(tensor.New(2, 2, 3, 2), obs, bins); err == nil {
		t.Error("expected error for trailing axis != 3")
	}
	if _, err := NewSixDScanDataset(params, obs[:1], bins); err == nil {
		t.Error("expected error for a single observation")
	}
	bad := []*tensor.Tensor{tensor.New(2, 3, 5, 5), obs[1]}
	if _, err := NewSixDScanDataset(params, bad, bins); err == nil {
		t.Error("expected error for screen resolution mismatch")
	}
}

func TestQuadScanCSVRoundTrip(t *testing.T) {
	bins := histogram.Linspace(-0.01, 0.01, 3)
	strengths, _ := tensor.FromFlat([]float64{-1.5, 4.25}, 2, 1)
	images := tensor.New(2, 3, 3)
	for i := range images.Data {
		images.Data[i] = float64(i) / 17.0
	}
	d, err := NewQuadScanDataset(strengths, images, bins)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "scan.csv")
	if err := SaveQuadScanCSV(path, d); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadQuadScanCSV(path)
	if err != nil {
		t.Fatal(err)
	}

	for i, b := range bins {
		if math.Abs(loaded.Bins[i]-b) > 1e-14 {
			t.Fatalf("bin %d = %v, want %v", i, loaded.Bins[i], b)
		}
	}
	sp := loaded.ScanParameters()
	if sp.Data[0] != -1.5 || sp.Data[1] != 4.25 {
		t.Errorf("strengths = %v", sp.Data)
	}
	for i := range images.Data {
		if math.Abs(loaded.Images().Data[i]-images.Data[i]) > 1e-14 {
			t.Fatalf("pixel %d = %v, want %v", i, loaded.Images().Data[i], images.Data[i])
		}
	}
}

func TestLoadQuadScanCSVRejectsForeignFile(t *testing.T) {
	if _, err := LoadQuadScanCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestYieldWalksDataset(t *testing.T) {
	params := tensor.New(1, 3, 1)
	for i := range params.Data {
		params.Data[i] = float64(i)
	}
	obs := tensor.New(3, 2, 2)
	d, err := NewObservableDataset(params, []*tensor.Tensor{obs})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		_, inputs, labels, err := d.Yield()
		if err != nil {
			t.Fatalf("yield %d: %v", i, err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("yield %d returned %d inputs, %d labels", i, len(inputs), len(labels))
		}
	}
	if _, _, _, err := d.Yield(); err != io.EOF {
		t.Errorf("expected io.EOF after exhaustion, got %v", err)
	}
	if err := d.Restart(); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := d.Yield(); err != nil {
		t.Errorf("yield after restart failed: %v", err)
	}
}
