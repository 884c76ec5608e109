package reconstruct

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
)

// SaveBeamCSV writes a reconstructed ensemble to a CSV file with one particle
// per row and a header naming the six phase-space coordinates. The design
// momentum is stored in a leading comment-style row.
func SaveBeamCSV(path string, beam *beams.Beam) error {
	if beam == nil {
		return fmt.Errorf("beam must not be nil")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"p0c", strconv.FormatFloat(beam.P0C, 'g', -1, 64), "", "", "", ""}); err != nil {
		return fmt.Errorf("failed to write momentum row: %w", err)
	}
	if err := w.Write([]string{"x", "px", "y", "py", "tau", "delta"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	n := beam.NumParticles()
	row := make([]string, beams.NumCoords)
	for i := 0; i < n; i++ {
		for j := 0; j < beams.NumCoords; j++ {
			row[j] = strconv.FormatFloat(beam.Particles.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write particle %d: %w", i, err)
		}
	}
	return nil
}

// LoadBeamCSV reads an ensemble previously written by SaveBeamCSV.
func LoadBeamCSV(path string) (*beams.Beam, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) < 2 || records[0][0] != "p0c" {
		return nil, fmt.Errorf("%s is not a beam checkpoint", path)
	}
	p0c, err := strconv.ParseFloat(records[0][1], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse design momentum: %w", err)
	}

	particles := records[2:]
	if len(particles) == 0 {
		return nil, fmt.Errorf("%s holds no particle rows", path)
	}
	coords := mat.NewDense(len(particles), beams.NumCoords, nil)
	for i, rec := range particles {
		if len(rec) != beams.NumCoords {
			return nil, fmt.Errorf("particle row %d has %d columns, want %d", i, len(rec), beams.NumCoords)
		}
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse particle %d column %d: %w", i, j, err)
			}
			coords.Set(i, j, v)
		}
	}
	return beams.FromCoords(coords, p0c)
}
