// Package arcflash computes incident energy, arc flash boundary and
// PPE requirements per IEEE 1584 and NFPA 70E. Distances are in
// millimetres, times in seconds, energies in cal/cm².
package arcflash

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput rejects non-positive fault current or voltage.
var ErrInvalidInput = errors.New("arcflash: invalid input")

// Enclosure is the electrode/enclosure configuration.
type Enclosure int

const (
	// EnclosureVCB is vertical conductors in a box, the common
	// switchgear case and the default.
	EnclosureVCB Enclosure = iota
	EnclosureVCBB
	EnclosureHCB
	EnclosureVOA
	EnclosureHOA
)

func (e Enclosure) String() string {
	switch e {
	case EnclosureVCB:
		return "VCB"
	case EnclosureVCBB:
		return "VCBB"
	case EnclosureHCB:
		return "HCB"
	case EnclosureVOA:
		return "VOA"
	case EnclosureHOA:
		return "HOA"
	default:
		return "unknown"
	}
}

// enclosed reports whether the configuration confines the arc, which
// selects the equation constants and distance exponent.
func (e Enclosure) enclosed() bool {
	return e == EnclosureVCB || e == EnclosureVCBB
}

// PPE categories per NFPA 70E, ordered by required arc rating.
const (
	PPECategory0 = 0 // < 1.2 cal/cm²
	PPECategory1 = 1
	PPECategory2 = 2
	PPECategory3 = 3
	PPECategory4 = 4
	// PPEDangerous means no PPE is adequate; de-energize before work.
	PPEDangerous = 5
)

const (
	burnThreshold = 1.2 // cal/cm², second-degree burn onset

	defaultWorkingDistMM = 457.2 // 18 inches
	defaultClearingSec   = 0.1

	exponentEnclosed = 1.473
	exponentOpenAir  = 2.0

	joulesToCal = 0.2388
)

// Input is one bus's arc flash study input.
type Input struct {
	BoltedFaultKA float64 `json:"bolted_fault_ka"`
	VoltageKV     float64 `json:"voltage_kv"`
	// WorkingDistanceMM defaults to 457.2 mm (18 in).
	WorkingDistanceMM float64 `json:"working_distance_mm"`
	// GapMM is the conductor gap; zero selects a typical value for
	// the voltage class.
	GapMM           float64   `json:"gap_mm"`
	ClearingTimeSec float64   `json:"clearing_time_sec"`
	Enclosure       Enclosure `json:"-"`
}

// Result is the study output for one bus.
type Result struct {
	ArcingCurrentKA      float64 `json:"arcing_current_ka"`
	IncidentEnergyCalCm2 float64 `json:"incident_energy_cal_cm2"`
	BoundaryMM           float64 `json:"boundary_mm"`
	BoundaryM            float64 `json:"boundary_m"`
	DurationSec          float64 `json:"duration_sec"`

	PPECategory     int     `json:"ppe_category"`
	PPERatingCalCm2 float64 `json:"ppe_rating_cal_cm2"`
	HazardCategory  string  `json:"hazard_category"`

	// DeEnergize is set when no PPE category covers the energy.
	DeEnergize bool     `json:"de_energize"`
	Safe       bool     `json:"safe"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Calculate runs the full study for one input set.
func Calculate(in Input) (*Result, error) {
	if in.BoltedFaultKA <= 0 {
		return nil, fmt.Errorf("%w: bolted fault current %g kA", ErrInvalidInput, in.BoltedFaultKA)
	}
	if in.VoltageKV <= 0 {
		return nil, fmt.Errorf("%w: voltage %g kV", ErrInvalidInput, in.VoltageKV)
	}
	if in.WorkingDistanceMM <= 0 {
		in.WorkingDistanceMM = defaultWorkingDistMM
	}
	if in.GapMM <= 0 {
		in.GapMM = TypicalGapMM(in.VoltageKV)
	}
	if in.ClearingTimeSec <= 0 {
		in.ClearingTimeSec = defaultClearingSec
	}

	res := &Result{DurationSec: in.ClearingTimeSec}
	res.ArcingCurrentKA = arcingCurrent(in)

	en := normalizedEnergy(in, res.ArcingCurrentKA)
	x := distanceExponent(in.Enclosure)

	res.IncidentEnergyCalCm2 = en * math.Pow(610.0/in.WorkingDistanceMM, x)
	res.BoundaryMM = 610.0 * math.Pow(en/burnThreshold, 1.0/x)
	res.BoundaryM = res.BoundaryMM / 1000.0

	res.PPECategory = ppeCategory(res.IncidentEnergyCalCm2)
	res.PPERatingCalCm2 = ppeRating(res.PPECategory)
	res.HazardCategory = hazardCategory(res.IncidentEnergyCalCm2)
	res.DeEnergize = res.PPECategory == PPEDangerous

	res.Safe, res.Warnings = validate(in, res)
	return res, nil
}

// ForBus is the common case: a fault study result plus a breaker
// clearing time, everything else at typical values.
func ForBus(faultKA, voltageKV, clearingSec float64) (*Result, error) {
	return Calculate(Input{
		BoltedFaultKA:   faultKA,
		VoltageKV:       voltageKV,
		ClearingTimeSec: clearingSec,
		Enclosure:       EnclosureVCB,
	})
}

// TypicalGapMM returns the standard conductor gap for a voltage
// class.
func TypicalGapMM(voltageKV float64) float64 {
	switch {
	case voltageKV <= 0.6:
		return 32.0
	case voltageKV <= 15.0:
		return 104.0
	default:
		return 152.0
	}
}

// arcingCurrent reduces the bolted fault current to the sustained
// arcing current. Below 1 kV the empirical low-voltage equation
// applies; above, the arc sustains about 85% of the bolted value.
func arcingCurrent(in Input) float64 {
	if in.VoltageKV > 1.0 {
		return 0.85 * in.BoltedFaultKA
	}
	k1 := -0.792
	if !in.Enclosure.enclosed() {
		k1 = -0.555
	}
	lg := k1 +
		0.662*math.Log10(in.BoltedFaultKA) +
		0.0966*in.VoltageKV +
		-0.113*math.Log10(in.GapMM)
	return math.Pow(10, lg)
}

// normalizedEnergy is the incident energy at the 610 mm reference
// distance, scaled to the actual arc duration.
func normalizedEnergy(in Input, iArc float64) float64 {
	t := in.ClearingTimeSec
	if in.VoltageKV > 1.0 {
		return 5.271 * iArc * t * math.Pow(10, 0.0016*in.GapMM)
	}
	k1 := -0.792
	if !in.Enclosure.enclosed() {
		k1 = -0.555
	}
	lg := k1 + 1.081*math.Log10(iArc) + 0.0011*in.GapMM
	en := math.Pow(10, lg) * joulesToCal
	return en * (t / 0.2)
}

func distanceExponent(e Enclosure) float64 {
	if e.enclosed() {
		return exponentEnclosed
	}
	return exponentOpenAir
}

func ppeCategory(energy float64) int {
	switch {
	case energy < 1.2:
		return PPECategory0
	case energy < 4.0:
		return PPECategory1
	case energy < 8.0:
		return PPECategory2
	case energy < 25.0:
		return PPECategory3
	case energy < 40.0:
		return PPECategory4
	default:
		return PPEDangerous
	}
}

func ppeRating(category int) float64 {
	switch category {
	case PPECategory0:
		return 1.2
	case PPECategory1:
		return 4.0
	case PPECategory2:
		return 8.0
	case PPECategory3:
		return 25.0
	case PPECategory4:
		return 40.0
	default:
		return 100.0
	}
}

func hazardCategory(energy float64) string {
	switch {
	case energy < 1.2:
		return "low"
	case energy < 8.0:
		return "moderate"
	case energy < 25.0:
		return "high"
	default:
		return "extreme"
	}
}

func validate(in Input, res *Result) (bool, []string) {
	safe := true
	var warnings []string

	if res.IncidentEnergyCalCm2 > 40.0 {
		warnings = append(warnings, "incident energy above 40 cal/cm², de-energize before work")
		safe = false
	} else if res.IncidentEnergyCalCm2 > 25.0 {
		warnings = append(warnings, "incident energy above 25 cal/cm², high hazard")
	}
	if res.BoundaryMM > 3048.0 {
		warnings = append(warnings, fmt.Sprintf("arc flash boundary %.1f m, consider de-energizing", res.BoundaryM))
	}
	if in.WorkingDistanceMM < res.BoundaryMM {
		warnings = append(warnings, "working distance is inside the arc flash boundary")
		safe = false
	}
	return safe, warnings
}
