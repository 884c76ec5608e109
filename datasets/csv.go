package datasets

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// SaveQuadScanCSV writes a quad-scan dataset to a single CSV file. The first
// record stores the pixel bin centers; every following record holds one scan
// point: the quadrupole strength followed by the row-major image pixels.
func SaveQuadScanCSV(path string, d *QuadScanDataset) error {
	if d == nil {
		return fmt.Errorf("dataset must not be nil")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	nb := len(d.Bins)
	binRec := make([]string, 1+nb)
	binRec[0] = "bins"
	for i, b := range d.Bins {
		binRec[i+1] = strconv.FormatFloat(b, 'g', -1, 64)
	}
	if err := w.Write(binRec); err != nil {
		return fmt.Errorf("failed to write bin record: %w", err)
	}

	strengths := d.ScanParameters()
	images := d.Images()
	k := strengths.Shape[0]
	rec := make([]string, 1+nb*nb)
	for ki := 0; ki < k; ki++ {
		rec[0] = strconv.FormatFloat(strengths.Data[ki], 'g', -1, 64)
		for px := 0; px < nb*nb; px++ {
			rec[1+px] = strconv.FormatFloat(images.Data[ki*nb*nb+px], 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write scan point %d: %w", ki, err)
		}
	}
	return nil
}

// LoadQuadScanCSV reads a quad-scan dataset previously written by
// SaveQuadScanCSV.
func LoadQuadScanCSV(path string) (*QuadScanDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) < 2 || records[0][0] != "bins" {
		return nil, fmt.Errorf("%s is not a quad-scan dataset", path)
	}

	bins := make([]float64, len(records[0])-1)
	for i, s := range records[0][1:] {
		if bins[i], err = parseFloat(s); err != nil {
			return nil, fmt.Errorf("failed to parse bin %d: %w", i, err)
		}
	}

	nb := len(bins)
	k := len(records) - 1
	strengths := tensor.New(k, 1)
	images := tensor.New(k, nb, nb)
	for ki, rec := range records[1:] {
		if len(rec) != 1+nb*nb {
			return nil, fmt.Errorf("scan point %d has %d fields, want %d", ki, len(rec), 1+nb*nb)
		}
		if strengths.Data[ki], err = parseFloat(rec[0]); err != nil {
			return nil, fmt.Errorf("failed to parse strength at scan point %d: %w", ki, err)
		}
		for px, s := range rec[1:] {
			if images.Data[ki*nb*nb+px], err = parseFloat(s); err != nil {
				return nil, fmt.Errorf("failed to parse pixel %d at scan point %d: %w", px, ki, err)
			}
		}
	}
	return NewQuadScanDataset(strengths, images, bins)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}
