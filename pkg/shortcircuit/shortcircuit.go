// Package shortcircuit computes three-phase bolted fault currents per
// IEC 60909 from the per-unit bus impedance matrix, plus breaker
// adequacy checks against the computed duties.
package shortcircuit

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gridworks/powercalc/pkg/model"
	"github.com/gridworks/powercalc/pkg/perunit"
	"github.com/gridworks/powercalc/pkg/topology"
)

// Motor fault contribution multiples of rated current, per voltage
// class.
const (
	motorFactorLV = 6.0 // ≤ 1 kV
	motorFactorMV = 4.5 // > 1 kV
)

// breakerMargin is the required rating headroom over the computed
// fault duty.
const breakerMargin = 1.1

// zeroSeqRatio approximates the zero-sequence driving-point impedance
// as a multiple of the positive-sequence one. The snapshot carries no
// zero-sequence network data, so the earth-fault figure uses this
// typical cable-network ratio.
const zeroSeqRatio = 3.0

// BusResult holds the fault quantities at one bus.
type BusResult struct {
	BusIndex  int     `json:"bus_index"`
	BusName   string  `json:"bus_name"`
	VoltageKV float64 `json:"voltage_kv"`

	ZkkPU complex128 `json:"-"`

	// InitialSymKA is I″k3, the initial symmetrical short-circuit
	// current from the network.
	InitialSymKA float64 `json:"initial_sym_ka"`
	// MotorContribKA is the additional first-cycle current from
	// motors connected at this bus.
	MotorContribKA float64 `json:"motor_contrib_ka"`
	// TotalKA is network plus motor contribution.
	TotalKA float64 `json:"total_ka"`

	// LineToLineKA is I″k2 per IEC 60909 eq. 43; LineToGroundKA is
	// I″k1 per eq. 35 with the assumed zero-sequence ratio.
	LineToLineKA   float64 `json:"line_to_line_ka"`
	LineToGroundKA float64 `json:"line_to_ground_ka"`

	PeakKA        float64 `json:"peak_ka"`
	BreakingKA    float64 `json:"breaking_ka"`
	DCComponentKA float64 `json:"dc_component_ka"`
	PowerMVA      float64 `json:"power_mva"`

	XOverR float64 `json:"x_over_r"`
	Kappa  float64 `json:"kappa"`
	Mu     float64 `json:"mu"`

	// Reachable is false for buses no source feeds; their fault
	// current is zero by definition.
	Reachable bool  `json:"reachable"`
	Err       error `json:"-"`
}

// BreakerCheck compares one breaker's rating against the fault duty
// at its bus.
type BreakerCheck struct {
	NodeID     string  `json:"node_id"`
	Tag        string  `json:"tag,omitempty"`
	BusIndex   int     `json:"bus_index"`
	FaultKA    float64 `json:"fault_ka"`
	RequiredKA float64 `json:"required_ka"`
	RatedKA    float64 `json:"rated_ka"`
	Pass       bool    `json:"pass"`
	// UtilizationPct is fault duty over rating.
	UtilizationPct float64 `json:"utilization_pct"`
	// MarginPct is the remaining headroom after the required margin.
	MarginPct float64 `json:"margin_pct"`
}

// Result is the fault study over all buses.
type Result struct {
	Buses    []BusResult    `json:"buses"`
	Breakers []BreakerCheck `json:"breakers"`

	MaxFaultBus string  `json:"max_fault_bus"`
	MaxFaultKA  float64 `json:"max_fault_ka"`
}

// Run performs the fault study. Source internal impedances are part
// of the admittance matrix, so the Z-bus diagonal is the
// driving-point impedance at each bus. Motors enter as first-cycle
// current contributions rather than shunts, keeping the two effects
// from being counted twice.
func Run(sys *perunit.System, settings model.Settings) (*Result, error) {
	zbus, zerr := sys.ZBus(perunit.BuildOptions{SourceShunts: true})

	res := &Result{}
	motorKA := motorContributions(sys)

	for _, bus := range sys.Graph.Buses {
		if midpointBus(sys.Graph, bus) {
			continue
		}
		br := BusResult{
			BusIndex:  bus.Index,
			BusName:   bus.Name,
			VoltageKV: bus.VoltageKV,
		}
		pos, active := sys.Pos(bus.Index)
		if !active {
			res.Buses = append(res.Buses, br)
			continue
		}
		br.Reachable = true
		if zerr != nil {
			br.Err = fmt.Errorf("bus %s: %w", bus.Name, zerr)
			res.Buses = append(res.Buses, br)
			continue
		}

		br.ZkkPU = zbus.At(pos, pos)
		zmag := cmplx.Abs(br.ZkkPU)
		if zmag == 0 {
			br.Err = fmt.Errorf("bus %s: %w", bus.Name, perunit.ErrSingularNetwork)
			res.Buses = append(res.Buses, br)
			continue
		}

		base := sys.Base(bus.VoltageKV)
		ipu := settings.VoltageFactorC / zmag
		br.InitialSymKA = ipu * base.IBaseAmps / 1000.0
		br.MotorContribKA = motorKA[bus.Index]
		br.TotalKA = br.InitialSymKA + br.MotorContribKA

		// I″k2 = c·Un / (2|Z1|), I″k1 = √3·c·Un / |2Z1 + Z0|.
		br.LineToLineKA = math.Sqrt(3) / 2.0 * br.InitialSymKA
		z0 := complex(zeroSeqRatio, 0) * br.ZkkPU
		br.LineToGroundKA = 3 * settings.VoltageFactorC / cmplx.Abs(2*br.ZkkPU+z0) *
			base.IBaseAmps / 1000.0

		r, x := real(br.ZkkPU), imag(br.ZkkPU)
		if x > 0 {
			br.XOverR = x / r
			br.Kappa = 1.02 + 0.98*math.Exp(-3*r/x)
		} else {
			br.Kappa = 1.02
		}
		br.PeakKA = br.Kappa * math.Sqrt2 * br.TotalKA
		br.Mu = breakingFactor(sys, bus.Index)
		br.BreakingKA = br.Mu * br.InitialSymKA
		br.DCComponentKA = math.Sqrt2 * br.InitialSymKA
		br.PowerMVA = math.Sqrt(3) * bus.VoltageKV * br.TotalKA

		if br.TotalKA > res.MaxFaultKA {
			res.MaxFaultKA = br.TotalKA
			res.MaxFaultBus = bus.Name
		}
		res.Buses = append(res.Buses, br)
	}

	res.Breakers = checkBreakers(sys, res.Buses)
	return res, nil
}

// midpointBus reports whether every node on the bus is a transformer.
// Such a bus is the junction between the two halves of a winding
// impedance, not a physical busbar, so no fault is placed there.
func midpointBus(g *topology.Graph, bus topology.Bus) bool {
	if len(bus.NodeIDs) == 0 {
		return false
	}
	for _, id := range bus.NodeIDs {
		if g.Node(id).Kind != model.KindTransformer {
			return false
		}
	}
	return true
}

// motorContributions sums, per bus, each motor's first-cycle fault
// infeed: a fixed multiple of rated current by voltage class.
func motorContributions(sys *perunit.System) map[int]float64 {
	out := make(map[int]float64)
	for _, m := range sys.Motors {
		factor := motorFactorMV
		if m.VoltageKV <= 1.0 {
			factor = motorFactorLV
		}
		out[m.Bus] += factor * m.RatedA / 1000.0
	}
	return out
}

// breakingFactor returns μ for the bus. Far-from-generator buses keep
// μ = 1; a breaker flagged near-generator selects the decrement
// factor for its minimum clearing time.
func breakingFactor(sys *perunit.System, busIndex int) float64 {
	g := sys.Graph
	mu := 1.0
	for _, bus := range g.Buses {
		if bus.Index != busIndex {
			continue
		}
		for _, id := range bus.NodeIDs {
			node := g.Node(id)
			if node.Kind != model.KindBreaker || node.Breaker == nil || !node.Breaker.NearGenerator {
				continue
			}
			if m := muForClearingTime(node.Breaker.ClearingTimeSec); m < mu {
				mu = m
			}
		}
	}
	return mu
}

func muForClearingTime(t float64) float64 {
	if t <= 0 {
		t = 0.1
	}
	switch {
	case t < 0.05:
		return 0.94
	case t < 0.10:
		return 0.90
	case t < 0.25:
		return 0.86
	default:
		return 0.82
	}
}

// checkBreakers rates every breaker against the fault duty at its
// bus, requiring 10% headroom over the computed current.
func checkBreakers(sys *perunit.System, buses []BusResult) []BreakerCheck {
	byIndex := make(map[int]*BusResult, len(buses))
	for i := range buses {
		byIndex[buses[i].BusIndex] = &buses[i]
	}

	var checks []BreakerCheck
	g := sys.Graph
	for _, id := range g.NodeIDs() {
		node := g.Node(id)
		if node.Kind != model.KindBreaker || node.Breaker == nil {
			continue
		}
		bus, ok := g.BusOf(id)
		if !ok {
			continue
		}
		br, ok := byIndex[bus]
		if !ok {
			continue
		}

		c := BreakerCheck{
			NodeID:     id,
			Tag:        node.Tag,
			BusIndex:   bus,
			FaultKA:    br.TotalKA,
			RequiredKA: breakerMargin * br.TotalKA,
			RatedKA:    node.Breaker.RatedKA,
		}
		c.Pass = c.RatedKA >= c.RequiredKA
		if c.RatedKA > 0 {
			c.UtilizationPct = c.FaultKA / c.RatedKA * 100.0
			c.MarginPct = (c.RatedKA - c.RequiredKA) / c.RatedKA * 100.0
		}
		checks = append(checks, c)
	}
	return checks
}
