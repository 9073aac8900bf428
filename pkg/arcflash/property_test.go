package arcflash

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEnergyProperties checks physical invariants of the incident
// energy model over random study inputs.
func TestEnergyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Property 1: energy falls as the worker stands further back.
	properties.Property("energy decreases with distance", prop.ForAll(
		func(faultKA, kv, clearing, near float64) bool {
			base := Input{
				BoltedFaultKA:   faultKA,
				VoltageKV:       kv,
				ClearingTimeSec: clearing,
			}
			closeIn := base
			closeIn.WorkingDistanceMM = near
			farOut := base
			farOut.WorkingDistanceMM = near * 2

			a, err := Calculate(closeIn)
			if err != nil {
				return false
			}
			b, err := Calculate(farOut)
			if err != nil {
				return false
			}
			return b.IncidentEnergyCalCm2 < a.IncidentEnergyCalCm2
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(0.2, 35),
		gen.Float64Range(0.01, 2),
		gen.Float64Range(100, 1000),
	))

	// Property 2: standing exactly on the computed boundary receives
	// the 1.2 cal/cm2 burn threshold.
	properties.Property("boundary energy is the burn threshold", prop.ForAll(
		func(faultKA, kv, clearing float64) bool {
			ref, err := Calculate(Input{
				BoltedFaultKA:   faultKA,
				VoltageKV:       kv,
				ClearingTimeSec: clearing,
			})
			if err != nil || ref.BoundaryMM <= 0 {
				return false
			}
			at, err := Calculate(Input{
				BoltedFaultKA:     faultKA,
				VoltageKV:         kv,
				ClearingTimeSec:   clearing,
				WorkingDistanceMM: ref.BoundaryMM,
			})
			if err != nil {
				return false
			}
			return math.Abs(at.IncidentEnergyCalCm2-1.2) < 1e-6
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(0.2, 35),
		gen.Float64Range(0.01, 2),
	))

	// Property 3: the arc never carries more than the bolted fault.
	properties.Property("arcing current bounded by bolted fault", prop.ForAll(
		func(faultKA, kv float64) bool {
			res, err := Calculate(Input{
				BoltedFaultKA:   faultKA,
				VoltageKV:       kv,
				ClearingTimeSec: 0.1,
			})
			if err != nil {
				return false
			}
			return res.ArcingCurrentKA > 0 && res.ArcingCurrentKA <= faultKA
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(0.2, 35),
	))

	properties.TestingRun(t)
}
