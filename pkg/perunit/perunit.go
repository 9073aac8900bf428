// Package perunit normalizes heterogeneous component impedances onto
// one per-unit system and assembles the bus admittance matrix the
// downstream solvers share. One System is derived per topology graph
// and never mutated afterwards.
package perunit

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gridworks/powercalc/pkg/matrix"
	"github.com/gridworks/powercalc/pkg/model"
	"github.com/gridworks/powercalc/pkg/topology"
)

// ErrSingularNetwork marks buses whose admittance sub-matrix cannot
// be inverted, typically an isolated sub-network.
var ErrSingularNetwork = errors.New("singular admittance matrix")

// ErrZeroImpedance marks a branch whose admittance would divide by
// zero. The branch is skipped, not the run.
var ErrZeroImpedance = errors.New("zero branch impedance")

const (
	defaultXOverR     = 10.0
	defaultMotorSubX  = 0.15
	defaultMotorPF    = 0.85
	defaultMotorEff   = 0.95
	motorResistancePU = 0.01 // on motor base, R is small against X''d
)

// Base holds the derived base quantities for one nominal voltage
// level.
type Base struct {
	VoltageKV float64
	ZBaseOhms float64
	IBaseAmps float64
}

// NewBase computes Zbase = kV²/MVA and Ibase = 1000·MVA/(√3·kV).
func NewBase(voltageKV, baseMVA float64) Base {
	return Base{
		VoltageKV: voltageKV,
		ZBaseOhms: voltageKV * voltageKV / baseMVA,
		IBaseAmps: baseMVA * 1000.0 / (math.Sqrt(3) * voltageKV),
	}
}

// ToPU converts an impedance in ohms to per-unit on this base.
func (b Base) ToPU(zOhms complex128) complex128 {
	return zOhms / complex(b.ZBaseOhms, 0)
}

// FromPU converts a per-unit impedance back to ohms.
func (b Base) FromPU(zPU complex128) complex128 {
	return zPU * complex(b.ZBaseOhms, 0)
}

// Branch is one per-unit series element between two buses.
type Branch struct {
	EdgeID  string
	FromBus int
	ToBus   int
	ZPU     complex128
	RatedA  float64
}

// MotorInfo carries the fault-contribution data of one motor, keyed
// to its bus.
type MotorInfo struct {
	NodeID    string
	Bus       int
	RatedA    float64
	VoltageKV float64
	ShuntY    complex128 // sub-transient admittance in pu
}

// System is the per-unit view of one topology graph.
type System struct {
	BaseMVA float64
	Graph   *topology.Graph

	Bases    map[float64]Base
	Branches []Branch
	Motors   []MotorInfo

	// SourceShunts holds each source's internal admittance, keyed by
	// bus index. Including them makes the Z-bus diagonal the total
	// fault impedance at each bus.
	SourceShunts map[int]complex128

	// BranchErrors records per-branch numeric failures; the affected
	// branch is omitted, the run continues.
	BranchErrors map[string]error

	// ActiveBuses are bus indices that participate in matrix work:
	// buses some source reaches. Isolated islands are excluded and
	// reported per bus instead of making the whole matrix singular.
	ActiveBuses []int
	posOf       map[int]int

	zbusCache map[BuildOptions]*matrix.Complex
}

// BuildOptions select which shunt contributions enter the Y-bus.
type BuildOptions struct {
	// SourceShunts adds source internal admittances to the diagonal
	// (used by the fault study so Zkk is the driving-point impedance).
	SourceShunts bool
	// MotorShunts adds motor sub-transient admittances; the fault
	// study leaves these off and models motors as current
	// contributions instead, avoiding double counting.
	MotorShunts bool
}

// Normalize derives the per-unit system from a topology graph.
// Configuration problems (non-positive base MVA) are fatal; numeric
// problems on individual branches are recorded and skipped.
func Normalize(graph *topology.Graph, settings model.Settings) (*System, error) {
	if settings.BaseMVA <= 0 {
		return nil, fmt.Errorf("%w: base MVA %g must be positive", model.ErrInvalidSettings, settings.BaseMVA)
	}

	s := &System{
		BaseMVA:      settings.BaseMVA,
		Graph:        graph,
		Bases:        make(map[float64]Base),
		SourceShunts: make(map[int]complex128),
		BranchErrors: make(map[string]error),
		posOf:        make(map[int]int),
		zbusCache:    make(map[BuildOptions]*matrix.Complex),
	}

	for _, id := range graph.NodeIDs() {
		node := graph.Node(id)
		if node.VoltageKV <= 0 {
			return nil, fmt.Errorf("%w: node %s has voltage level %gkV", model.ErrInvalidSettings, id, node.VoltageKV)
		}
		if _, ok := s.Bases[node.VoltageKV]; !ok {
			s.Bases[node.VoltageKV] = NewBase(node.VoltageKV, settings.BaseMVA)
		}
	}

	s.convertBranches()
	s.convertShunts(settings)
	s.selectActiveBuses()
	return s, nil
}

// Base returns the base quantities for a voltage level, deriving it
// on first use.
func (s *System) Base(voltageKV float64) Base {
	if b, ok := s.Bases[voltageKV]; ok {
		return b
	}
	b := NewBase(voltageKV, s.BaseMVA)
	s.Bases[voltageKV] = b
	return b
}

// convertBranches turns every non-conductive edge into a per-unit
// branch between its endpoint buses. Transformer nodes contribute
// half their re-based impedance to each incident edge, making the
// series total between primary and secondary buses exact.
func (s *System) convertBranches() {
	g := s.Graph
	for i := range g.Snapshot.Edges {
		e := &g.Snapshot.Edges[i]
		fromBus, _ := g.BusOf(e.FromID)
		toBus, _ := g.BusOf(e.ToID)
		if fromBus == toBus {
			continue // merged into one bus, no series element
		}

		from := g.Node(e.FromID)
		to := g.Node(e.ToID)

		zpu := s.cablePU(e, from, to)
		zpu += s.transformerHalf(from)
		zpu += s.transformerHalf(to)

		if cmplx.Abs(zpu) == 0 {
			s.BranchErrors[e.ID] = fmt.Errorf("%w: edge %s", ErrZeroImpedance, e.ID)
			continue
		}
		s.Branches = append(s.Branches, Branch{
			EdgeID:  e.ID,
			FromBus: fromBus,
			ToBus:   toBus,
			ZPU:     zpu,
			RatedA:  e.RatedA,
		})
	}
}

// cablePU converts the edge's own series impedance. The reference
// voltage is the non-transformer endpoint; a transformer endpoint
// contributes its impedance separately.
func (s *System) cablePU(e *model.Edge, from, to *model.Node) complex128 {
	ref := from
	if ref.Kind == model.KindTransformer {
		ref = to
	}
	return s.Base(ref.VoltageKV).ToPU(e.ImpedanceOhms())
}

// transformerHalf re-bases a transformer node's %Z impedance onto the
// system base and returns half of it, one half per incident edge.
func (s *System) transformerHalf(n *model.Node) complex128 {
	if n.Kind != model.KindTransformer || n.Transformer == nil {
		return 0
	}
	return TransformerPU(*n.Transformer, n.VoltageKV, s.BaseMVA) / 2
}

// TransformerPU re-bases %Z on the transformer's own MVA/voltage base
// to the system base: Zpu = %Z/100 · (Sbase/Str) · (Vtr²/Vbus²),
// split into R and X by the nameplate X/R ratio.
func TransformerPU(p model.TransformerParams, busKV, baseMVA float64) complex128 {
	if p.RatedMVA <= 0 || p.ZPercent <= 0 {
		return 0
	}
	refKV := p.SecondaryKV
	if refKV <= 0 {
		refKV = busKV
	}
	mag := p.ZPercent / 100.0 * (baseMVA / p.RatedMVA) * (refKV * refKV) / (busKV * busKV)
	return splitXOverR(mag, p.XOverR)
}

// SourcePU derives the utility infeed's internal impedance from its
// short-circuit power: |Z| = c·Sbase/Sk on the system base.
func SourcePU(p model.SourceParams, voltageFactorC, baseMVA float64) (complex128, error) {
	if p.ShortCircuitMVA <= 0 {
		return 0, fmt.Errorf("source short-circuit power %gMVA must be positive", p.ShortCircuitMVA)
	}
	mag := voltageFactorC * baseMVA / p.ShortCircuitMVA
	return splitXOverR(mag, p.XOverR), nil
}

// MotorPU converts a motor's sub-transient impedance to the system
// base. R is taken small against the sub-transient reactance, the
// usual assumption for the first cycles of a fault.
func MotorPU(p model.MotorParams, baseMVA float64) complex128 {
	mva := MotorMVA(p)
	if mva <= 0 {
		return 0
	}
	subX := p.SubtransientX
	if subX == 0 {
		subX = defaultMotorSubX
	}
	zMotorBase := complex(motorResistancePU, subX)
	return zMotorBase * complex(baseMVA/mva, 0)
}

// MotorMVA returns the motor's apparent-power rating derived from its
// shaft rating, power factor and efficiency.
func MotorMVA(p model.MotorParams) float64 {
	pf := p.PowerFactor
	if pf == 0 {
		pf = defaultMotorPF
	}
	eff := p.Efficiency
	if eff == 0 {
		eff = defaultMotorEff
	}
	return (p.RatedKW / 1000.0) / (pf * eff)
}

// MotorRatedA returns the motor's full-load current in amperes.
func MotorRatedA(p model.MotorParams, voltageKV float64) float64 {
	mva := MotorMVA(p)
	if voltageKV <= 0 {
		return 0
	}
	return mva * 1000.0 / (math.Sqrt(3) * voltageKV)
}

func splitXOverR(mag, xOverR float64) complex128 {
	if xOverR <= 0 {
		xOverR = defaultXOverR
	}
	den := math.Sqrt(1 + xOverR*xOverR)
	return complex(mag/den, mag*xOverR/den)
}

// convertShunts collects source internal admittances and motor
// contributions per bus.
func (s *System) convertShunts(settings model.Settings) {
	g := s.Graph
	for _, id := range g.NodeIDs() {
		node := g.Node(id)
		bus, ok := g.BusOf(id)
		if !ok {
			continue
		}
		switch node.Kind {
		case model.KindSource:
			if node.Source == nil {
				s.BranchErrors[id] = fmt.Errorf("source %s has no parameters", id)
				continue
			}
			z, err := SourcePU(*node.Source, settings.VoltageFactorC, s.BaseMVA)
			if err != nil {
				s.BranchErrors[id] = err
				continue
			}
			s.SourceShunts[bus] += 1 / z
		case model.KindMotor:
			if node.Motor == nil {
				continue
			}
			z := MotorPU(*node.Motor, s.BaseMVA)
			var y complex128
			if cmplx.Abs(z) > 0 {
				y = 1 / z
			}
			s.Motors = append(s.Motors, MotorInfo{
				NodeID:    id,
				Bus:       bus,
				RatedA:    MotorRatedA(*node.Motor, node.VoltageKV),
				VoltageKV: node.VoltageKV,
				ShuntY:    y,
			})
		}
	}
}

// selectActiveBuses keeps buses containing at least one node a source
// reaches (or a source itself). Everything else is an isolated island
// that would make the matrix singular; those buses are reported
// individually instead.
func (s *System) selectActiveBuses() {
	g := s.Graph
	for _, bus := range g.Buses {
		active := false
		for _, id := range bus.NodeIDs {
			if g.Levels[id] != topology.Unreached {
				active = true
				break
			}
		}
		if active {
			s.posOf[bus.Index] = len(s.ActiveBuses)
			s.ActiveBuses = append(s.ActiveBuses, bus.Index)
		}
	}
}

// Pos maps a bus index to its matrix position; ok is false for
// inactive (isolated) buses.
func (s *System) Pos(busIndex int) (int, bool) {
	p, ok := s.posOf[busIndex]
	return p, ok
}

// YBus assembles the nodal admittance matrix over the active buses:
// Y[i][i] += 1/Z and Y[i][j] -= 1/Z for every branch, plus the shunt
// contributions the options select.
func (s *System) YBus(opts BuildOptions) *matrix.Complex {
	n := len(s.ActiveBuses)
	y := matrix.NewComplex(n)

	for _, br := range s.Branches {
		i, iok := s.posOf[br.FromBus]
		j, jok := s.posOf[br.ToBus]
		if !iok || !jok {
			continue
		}
		adm := 1 / br.ZPU
		y.Add(i, i, adm)
		y.Add(j, j, adm)
		y.Add(i, j, -adm)
		y.Add(j, i, -adm)
	}

	if opts.SourceShunts {
		for bus, adm := range s.SourceShunts {
			if i, ok := s.posOf[bus]; ok {
				y.Add(i, i, adm)
			}
		}
	}
	if opts.MotorShunts {
		for _, m := range s.Motors {
			if i, ok := s.posOf[m.Bus]; ok {
				y.Add(i, i, m.ShuntY)
			}
		}
	}
	return y
}

// ZBus returns the bus impedance matrix, the inverse of the Y-bus for
// the given options, computed on demand and cached for the lifetime
// of the system. A singular Y-bus returns ErrSingularNetwork.
func (s *System) ZBus(opts BuildOptions) (*matrix.Complex, error) {
	if z, ok := s.zbusCache[opts]; ok {
		return z, nil
	}
	z, err := matrix.InvertComplex(s.YBus(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularNetwork, err)
	}
	s.zbusCache[opts] = z
	return z, nil
}
