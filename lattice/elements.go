// Package lattice models an ordered sequence of beamline transport elements
// with a small set of free physical parameters. Elements carry a mutable
// configuration that is overwritten in place before each tracking call; the
// element objects themselves are assembled once at lattice construction time.
//
// Transport uses first-order (linear) 6x6 transfer maps in the coordinates
// (x, px, y, py, tau, delta). Each element exposes its map for one batch row
// of the current configuration, so a single element sequence can be evaluated
// over a whole grid of scan settings without rebuilding any objects.
package lattice

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roussel-ryan/phase-space-reconstruction/beams"
)

const (
	speedOfLight   = 299792458.0  // m/s
	electronMassEV = 0.51099895e6 // electron rest energy in eV
)

// lorentzGamma returns the Lorentz factor for the design momentum p0c in eV.
func lorentzGamma(p0c float64) float64 {
	r := p0c / electronMassEV
	return math.Sqrt(1.0 + r*r)
}

// values holds a batched element setting: either a single scalar broadcast to
// every batch row, or one value per row.
type values struct {
	data []float64
}

func scalar(v float64) values { return values{data: []float64{v}} }

func (v values) at(i int) float64 {
	if len(v.data) == 1 {
		return v.data[0]
	}
	return v.data[i]
}

func (v *values) assign(data []float64) {
	v.data = append(v.data[:0], data...)
}

func (v values) clone() values {
	return values{data: append([]float64(nil), v.data...)}
}

// Element is one physical beamline component. TransferMatrix returns the
// first-order map for the element's current configuration at batch row i.
type Element interface {
	Name() string
	TransferMatrix(i int, p0c float64) *mat.Dense
	CloneElement() Element
}

func identity6() *mat.Dense {
	m := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
	for i := 0; i < beams.NumCoords; i++ {
		m.Set(i, i, 1.0)
	}
	return m
}

func driftMatrix(length, gamma float64) *mat.Dense {
	m := identity6()
	m.Set(beams.CoordX, beams.CoordPX, length)
	m.Set(beams.CoordY, beams.CoordPY, length)
	m.Set(beams.CoordTau, beams.CoordDelta, length/(gamma*gamma))
	return m
}

// Drift is a field-free region. Its length may be updated per batch row,
// which the six-dimensional lattice uses for the dipole-to-screen distance.
type Drift struct {
	name   string
	length values
}

// NewDrift creates a drift of fixed design length.
func NewDrift(name string, length float64) *Drift {
	return &Drift{name: name, length: scalar(length)}
}

// Name returns the element identifier.
func (d *Drift) Name() string { return d.name }

// Length returns the configured length at batch row i.
func (d *Drift) Length(i int) float64 { return d.length.at(i) }

// SetLengths overwrites the drift length per batch row.
func (d *Drift) SetLengths(lengths []float64) { d.length.assign(lengths) }

// TransferMatrix returns the drift map for batch row i.
func (d *Drift) TransferMatrix(i int, p0c float64) *mat.Dense {
	return driftMatrix(d.length.at(i), lorentzGamma(p0c))
}

// CloneElement returns a deep copy.
func (d *Drift) CloneElement() Element {
	return &Drift{name: d.name, length: d.length.clone()}
}

// Quadrupole focuses in one transverse plane and defocuses in the other. K1
// is the focusing strength in 1/m^2; positive focuses horizontally.
type Quadrupole struct {
	name   string
	length float64
	k1     values
}

// NewQuadrupole creates a quadrupole of fixed length with strength zero.
func NewQuadrupole(name string, length float64) *Quadrupole {
	return &Quadrupole{name: name, length: length, k1: scalar(0.0)}
}

// Name returns the element identifier.
func (q *Quadrupole) Name() string { return q.name }

// K1 returns the configured strength at batch row i.
func (q *Quadrupole) K1(i int) float64 { return q.k1.at(i) }

// SetK1 overwrites the focusing strength per batch row.
func (q *Quadrupole) SetK1(k1 []float64) { q.k1.assign(k1) }

// TransferMatrix returns the thick-quadrupole map for batch row i. A strength
// of exactly zero degenerates to a drift.
func (q *Quadrupole) TransferMatrix(i int, p0c float64) *mat.Dense {
	gamma := lorentzGamma(p0c)
	k := q.k1.at(i)
	if k == 0 {
		return driftMatrix(q.length, gamma)
	}
	m := identity6()
	sk := math.Sqrt(math.Abs(k))
	omega := sk * q.length

	cos, sin := math.Cos(omega), math.Sin(omega)
	cosh, sinh := math.Cosh(omega), math.Sinh(omega)
	if k > 0 {
		// horizontal focusing, vertical defocusing
		m.Set(beams.CoordX, beams.CoordX, cos)
		m.Set(beams.CoordX, beams.CoordPX, sin/sk)
		m.Set(beams.CoordPX, beams.CoordX, -sk*sin)
		m.Set(beams.CoordPX, beams.CoordPX, cos)
		m.Set(beams.CoordY, beams.CoordY, cosh)
		m.Set(beams.CoordY, beams.CoordPY, sinh/sk)
		m.Set(beams.CoordPY, beams.CoordY, sk*sinh)
		m.Set(beams.CoordPY, beams.CoordPY, cosh)
	} else {
		m.Set(beams.CoordX, beams.CoordX, cosh)
		m.Set(beams.CoordX, beams.CoordPX, sinh/sk)
		m.Set(beams.CoordPX, beams.CoordX, sk*sinh)
		m.Set(beams.CoordPX, beams.CoordPX, cosh)
		m.Set(beams.CoordY, beams.CoordY, cos)
		m.Set(beams.CoordY, beams.CoordPY, sin/sk)
		m.Set(beams.CoordPY, beams.CoordY, -sk*sin)
		m.Set(beams.CoordPY, beams.CoordPY, cos)
	}
	m.Set(beams.CoordTau, beams.CoordDelta, q.length/(gamma*gamma))
	return m
}

// CloneElement returns a deep copy.
func (q *Quadrupole) CloneElement() Element {
	return &Quadrupole{name: q.name, length: q.length, k1: q.k1.clone()}
}

// TransverseDeflectingCavity imparts a time-correlated transverse kick,
// resolving longitudinal structure on a downstream screen. The tilt selects
// the deflection plane (pi/2 deflects vertically). The map is a thin kick at
// the cavity center sandwiched between two half-length drifts.
type TransverseDeflectingCavity struct {
	name      string
	length    float64
	frequency float64
	phase     float64
	tilt      float64
	voltage   values
}

// NewTransverseDeflectingCavity creates a TDC with voltage zero.
func NewTransverseDeflectingCavity(name string, length, frequency, phase, tilt float64) *TransverseDeflectingCavity {
	return &TransverseDeflectingCavity{
		name:      name,
		length:    length,
		frequency: frequency,
		phase:     phase,
		tilt:      tilt,
		voltage:   scalar(0.0),
	}
}

// Name returns the element identifier.
func (t *TransverseDeflectingCavity) Name() string { return t.name }

// Voltage returns the configured voltage at batch row i.
func (t *TransverseDeflectingCavity) Voltage(i int) float64 { return t.voltage.at(i) }

// SetVoltage overwrites the cavity voltage per batch row.
func (t *TransverseDeflectingCavity) SetVoltage(voltage []float64) { t.voltage.assign(voltage) }

// TransferMatrix returns the TDC map for batch row i. At zero voltage it
// degenerates to a drift.
func (t *TransverseDeflectingCavity) TransferMatrix(i int, p0c float64) *mat.Dense {
	gamma := lorentzGamma(p0c)
	half := driftMatrix(t.length/2.0, gamma)
	v := t.voltage.at(i)
	if v == 0 {
		m := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
		m.Mul(half, half)
		return m
	}

	// Deflection strength at the zero-crossing phase offset.
	kappa := 2.0 * math.Pi * t.frequency * v * math.Cos(t.phase) / (speedOfLight * p0c)
	ct, st := math.Cos(t.tilt), math.Sin(t.tilt)
	kick := identity6()
	kick.Set(beams.CoordPX, beams.CoordTau, kappa*ct)
	kick.Set(beams.CoordPY, beams.CoordTau, kappa*st)
	kick.Set(beams.CoordDelta, beams.CoordX, kappa*ct)
	kick.Set(beams.CoordDelta, beams.CoordY, kappa*st)

	inner := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
	inner.Mul(kick, half)
	m := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
	m.Mul(half, inner)
	return m
}

// CloneElement returns a deep copy.
func (t *TransverseDeflectingCavity) CloneElement() Element {
	c := *t
	c.voltage = t.voltage.clone()
	return &c
}

// Dipole is a sector bending magnet with entrance and exit edge focusing.
// Arc length, bend angle and the exit edge angle are rewritten per batch row
// by the six-dimensional lattice; the design length is the straight-through
// arc length used when the bend is off.
type Dipole struct {
	name         string
	designLength float64
	length       values
	angle        values
	e1           values
	e2           values
}

// NewDipole creates a dipole with the given initial arc length, bend angle
// zero and the given exit edge angle.
func NewDipole(name string, designLength, arcLength, e2 float64) *Dipole {
	return &Dipole{
		name:         name,
		designLength: designLength,
		length:       scalar(arcLength),
		angle:        scalar(0.0),
		e1:           scalar(0.0),
		e2:           scalar(e2),
	}
}

// Name returns the element identifier.
func (d *Dipole) Name() string { return d.name }

// DesignLength returns the straight design length of the magnet.
func (d *Dipole) DesignLength() float64 { return d.designLength }

// ArcLength returns the configured arc length at batch row i.
func (d *Dipole) ArcLength(i int) float64 { return d.length.at(i) }

// Angle returns the configured bend angle at batch row i.
func (d *Dipole) Angle(i int) float64 { return d.angle.at(i) }

// ExitEdgeAngle returns the configured exit edge angle at batch row i.
func (d *Dipole) ExitEdgeAngle(i int) float64 { return d.e2.at(i) }

// SetBend overwrites arc length, bend angle and exit edge angle per batch row.
func (d *Dipole) SetBend(arcLength, angle, e2 []float64) {
	d.length.assign(arcLength)
	d.angle.assign(angle)
	d.e2.assign(e2)
}

// TransferMatrix returns the sector-bend map with edge focusing for batch
// row i. A bend angle of exactly zero degenerates to a drift of the arc
// length.
func (d *Dipole) TransferMatrix(i int, p0c float64) *mat.Dense {
	gamma := lorentzGamma(p0c)
	arc := d.length.at(i)
	theta := d.angle.at(i)
	if theta == 0 {
		return driftMatrix(arc, gamma)
	}

	rho := arc / theta
	cos, sin := math.Cos(theta), math.Sin(theta)
	body := identity6()
	body.Set(beams.CoordX, beams.CoordX, cos)
	body.Set(beams.CoordX, beams.CoordPX, rho*sin)
	body.Set(beams.CoordX, beams.CoordDelta, rho*(1.0-cos))
	body.Set(beams.CoordPX, beams.CoordX, -sin/rho)
	body.Set(beams.CoordPX, beams.CoordPX, cos)
	body.Set(beams.CoordPX, beams.CoordDelta, sin)
	body.Set(beams.CoordY, beams.CoordPY, arc)
	body.Set(beams.CoordTau, beams.CoordX, -sin)
	body.Set(beams.CoordTau, beams.CoordPX, -rho*(1.0-cos))
	body.Set(beams.CoordTau, beams.CoordDelta, arc/(gamma*gamma)-(arc-rho*sin))

	inner := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
	inner.Mul(body, edgeMatrix(d.e1.at(i), rho))
	m := mat.NewDense(beams.NumCoords, beams.NumCoords, nil)
	m.Mul(edgeMatrix(d.e2.at(i), rho), inner)
	return m
}

// edgeMatrix is the thin-lens edge-focusing map for edge angle e and bending
// radius rho.
func edgeMatrix(e, rho float64) *mat.Dense {
	m := identity6()
	if e == 0 {
		return m
	}
	t := math.Tan(e) / rho
	m.Set(beams.CoordPX, beams.CoordX, t)
	m.Set(beams.CoordPY, beams.CoordY, -t)
	return m
}

// CloneElement returns a deep copy.
func (d *Dipole) CloneElement() Element {
	return &Dipole{
		name:         d.name,
		designLength: d.designLength,
		length:       d.length.clone(),
		angle:        d.angle.clone(),
		e1:           d.e1.clone(),
		e2:           d.e2.clone(),
	}
}
