package lattice

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
	"github.com/roussel-ryan/phase-space-reconstruction/diagnostics"
	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// SixDConfig holds the fixed geometry of the six-dimensional diagnostic
// beamline. Lengths are in meters, FTDC in Hz, PhiTDC in radians.
type SixDConfig struct {
	// LQuad, LTDC, LBend are the scan quadrupole, deflecting cavity and
	// dipole design lengths.
	LQuad float64
	LTDC  float64
	LBend float64

	// FTDC and PhiTDC are the cavity frequency and phase.
	FTDC   float64
	PhiTDC float64

	// ThetaOn is the nominal bend angle with the dipole powered, used to
	// pre-compute the dipole-on geometry at construction.
	ThetaOn float64

	// L1 is the design distance from quadrupole center to cavity center,
	// L2 from cavity center to dipole center, L3 from dipole center to
	// the second screen.
	L1 float64
	L2 float64
	L3 float64

	// Screen1 observes the straight-through beamline (dipole off),
	// Screen2 the bent beamline (dipole on).
	Screen1 *diagnostics.ImageDiagnostic
	Screen2 *diagnostics.ImageDiagnostic
}

// SixDLattice is the three-parameter diagnostic beamline used for full 6-D
// phase-space reconstruction: scan quadrupole, transverse deflecting cavity,
// dipole and two screens. The free parameters, in trailing-axis order, are
// (dipole curvature, cavity voltage, quadrupole strength).
//
// The drifts between quadrupole, cavity and dipole are fixed at construction
// from the design distances and element half-lengths. The drift from dipole
// to screen is recomputed on every parameter write because the path length
// from the dipole's effective center to the downstream screen changes with
// bend angle.
type SixDLattice struct {
	cfg     SixDConfig
	segment *Segment
	quad    *Quadrupole
	tdc     *TransverseDeflectingCavity
	bend    *Dipole
	d3      *Drift

	batchShape []int
	configured bool
}

// NewSixDLattice assembles the element sequence
// [quad, drift, TDC, drift, dipole, drift] with the dipole-on geometry.
func NewSixDLattice(cfg SixDConfig) (*SixDLattice, error) {
	if cfg.LQuad <= 0 || cfg.LTDC <= 0 || cfg.LBend <= 0 {
		return nil, fmt.Errorf("element lengths must be positive, got lQuad=%v lTDC=%v lBend=%v",
			cfg.LQuad, cfg.LTDC, cfg.LBend)
	}
	if cfg.Screen1 == nil || cfg.Screen2 == nil {
		return nil, fmt.Errorf("both screens must be provided")
	}

	lD1 := cfg.L1 - cfg.LQuad/2.0 - cfg.LTDC/2.0
	lD2 := cfg.L2 - cfg.LTDC/2.0 - cfg.LBend/2.0
	lD3 := cfg.L3 - cfg.LBend/2.0/math.Cos(cfg.ThetaOn)
	if lD1 <= 0 || lD2 <= 0 || lD3 <= 0 {
		return nil, fmt.Errorf("design distances leave non-positive drift lengths: %v, %v, %v", lD1, lD2, lD3)
	}

	// Arc length with the dipole powered at the nominal angle.
	arcOn := cfg.LBend
	if cfg.ThetaOn != 0 {
		arcOn = cfg.LBend * cfg.ThetaOn / math.Sin(cfg.ThetaOn)
	}

	quad := NewQuadrupole("SCAN_QUAD", cfg.LQuad)
	tdc := NewTransverseDeflectingCavity("SCAN_TDC", cfg.LTDC, cfg.FTDC, cfg.PhiTDC, math.Pi/2.0)
	bend := NewDipole("SCAN_DIPOLE", cfg.LBend, arcOn, cfg.ThetaOn)
	d3 := NewDrift("DIPOLE_TO_SCREEN", lD3)

	return &SixDLattice{
		cfg: cfg,
		segment: NewSegment(
			quad,
			NewDrift("QUAD_TO_TDC", lD1),
			tdc,
			NewDrift("TDC_TO_DIPOLE", lD2),
			bend,
			d3,
		),
		quad: quad,
		tdc:  tdc,
		bend: bend,
		d3:   d3,
	}, nil
}

// ParameterCount returns 3: dipole curvature, cavity voltage, quad strength.
func (l *SixDLattice) ParameterCount() int { return 3 }

// Screens returns the two diagnostic screens.
func (l *SixDLattice) Screens() (*diagnostics.ImageDiagnostic, *diagnostics.ImageDiagnostic) {
	return l.cfg.Screen1, l.cfg.Screen2
}

// SetLatticeParameters writes the batched scan settings into the element
// configuration. The trailing axis must have size 3 with the fixed order
// (dipole curvature G, cavity voltage V, quadrupole strength K).
//
// Derived dipole geometry per batch row: bend angle = asin(LBend*G), arc
// length = angle/G, exit edge angle = bend angle, and the dipole-to-screen
// drift length = L3 - LBend/2/cos(angle). A curvature of exactly zero takes
// the straight-through limit: zero angle, arc length equal to the dipole
// design length.
func (l *SixDLattice) SetLatticeParameters(params *tensor.Tensor) error {
	if params == nil {
		return fmt.Errorf("params must not be nil")
	}
	if params.Rank() < 1 || params.Shape[params.Rank()-1] != l.ParameterCount() {
		return fmt.Errorf("params must have trailing axis of size %d, got shape %v",
			l.ParameterCount(), params.Shape)
	}

	b := params.Size() / l.ParameterCount()
	ks := make([]float64, b)
	vs := make([]float64, b)
	angles := make([]float64, b)
	arcs := make([]float64, b)
	edges := make([]float64, b)
	d3s := make([]float64, b)
	for i := 0; i < b; i++ {
		g := params.Data[i*3]
		vs[i] = params.Data[i*3+1]
		ks[i] = params.Data[i*3+2]

		if g == 0 {
			angles[i] = 0
			arcs[i] = l.cfg.LBend
			edges[i] = 0
			d3s[i] = l.cfg.L3 - l.cfg.LBend/2.0
			continue
		}
		sinAngle := l.cfg.LBend * g
		if math.Abs(sinAngle) >= 1 {
			return fmt.Errorf("dipole curvature %v at scan index %d exceeds the geometric limit 1/LBend", g, i)
		}
		angle := math.Asin(sinAngle)
		angles[i] = angle
		arcs[i] = angle / g
		edges[i] = angle
		d3s[i] = l.cfg.L3 - l.cfg.LBend/2.0/math.Cos(angle)
	}

	l.quad.SetK1(ks)
	l.tdc.SetVoltage(vs)
	l.bend.SetBend(arcs, angles, edges)
	l.d3.SetLengths(d3s)
	l.batchShape = append([]int(nil), params.Shape[:params.Rank()-1]...)
	l.configured = true
	return nil
}

// TrackAndObserve propagates the beam once through the shared element
// sequence for every scan configuration, then reads the two screens from two
// different leading batch indices of the result: index 0 along the first
// batch axis belongs to screen 1's measurement plane, index 1 to screen 2's.
// The returned tensors have shape (batch[1:]..., bins, bins) each.
func (l *SixDLattice) TrackAndObserve(beam *beams.Beam) ([]*tensor.Tensor, error) {
	if !l.configured {
		return nil, fmt.Errorf("SetLatticeParameters must be called before TrackAndObserve")
	}
	if beam == nil {
		return nil, fmt.Errorf("beam must not be nil")
	}
	if len(l.batchShape) < 1 || l.batchShape[0] < 2 {
		return nil, fmt.Errorf("six-dimensional scan needs a leading dipole axis of size >= 2, got batch shape %v",
			l.batchShape)
	}

	rest := l.batchShape[1:]
	restSize := 1
	for _, d := range rest {
		restSize *= d
	}

	screens := []*diagnostics.ImageDiagnostic{l.cfg.Screen1, l.cfg.Screen2}
	observations := make([]*tensor.Tensor, len(screens))
	for s, screen := range screens {
		nb := screen.NumBins()
		out := tensor.New(append(append([]int(nil), rest...), nb, nb)...)
		for i := 0; i < restSize; i++ {
			row := s*restSize + i
			img, err := screen.Observe(l.segment.Track(beam, row))
			if err != nil {
				return nil, fmt.Errorf("screen %d observation at scan index %d: %w", s+1, i, err)
			}
			copy(out.Data[i*nb*nb:(i+1)*nb*nb], img.Data)
		}
		observations[s] = out
	}
	return observations, nil
}

// TransferMatrices returns the composed map per flattened scan configuration
// for the current parameters.
func (l *SixDLattice) TransferMatrices(p0c float64) ([]*mat.Dense, error) {
	if !l.configured {
		return nil, fmt.Errorf("SetLatticeParameters must be called before TransferMatrices")
	}
	b := 1
	for _, d := range l.batchShape {
		b *= d
	}
	out := make([]*mat.Dense, b)
	for i := 0; i < b; i++ {
		out[i] = l.segment.TransferMatrix(i, p0c)
	}
	return out, nil
}

// BatchShape returns the leading batch shape of the most recent parameters.
func (l *SixDLattice) BatchShape() []int {
	return append([]int(nil), l.batchShape...)
}

// Clone returns an independent copy with its own element configuration.
func (l *SixDLattice) Clone() Lattice {
	seg := l.segment.Clone()
	cfg := l.cfg
	cfg.Screen1 = l.cfg.Screen1.Clone()
	cfg.Screen2 = l.cfg.Screen2.Clone()
	return &SixDLattice{
		cfg:        cfg,
		segment:    seg,
		quad:       seg.Elements[0].(*Quadrupole),
		tdc:        seg.Elements[2].(*TransverseDeflectingCavity),
		bend:       seg.Elements[4].(*Dipole),
		d3:         seg.Elements[5].(*Drift),
		batchShape: append([]int(nil), l.batchShape...),
		configured: l.configured,
	}
}
