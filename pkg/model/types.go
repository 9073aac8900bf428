package model

// Kind identifies the electrical component a node represents.
// The set is closed: every solver switches exhaustively over it.
type Kind int

const (
	KindSource Kind = iota
	KindBus
	KindTransformer
	KindBreaker
	KindMotor
	KindLoad
	KindCableJoint
)

// String returns the canonical name of a component kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindBus:
		return "bus"
	case KindTransformer:
		return "transformer"
	case KindBreaker:
		return "breaker"
	case KindMotor:
		return "motor"
	case KindLoad:
		return "load"
	case KindCableJoint:
		return "cable-joint"
	default:
		return "unknown"
	}
}

// ParseKind converts a serialized kind name to a Kind.
// Unknown names report ok=false.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "source":
		return KindSource, true
	case "bus", "busbar", "switchgear":
		return KindBus, true
	case "transformer":
		return KindTransformer, true
	case "breaker":
		return KindBreaker, true
	case "motor":
		return KindMotor, true
	case "load":
		return KindLoad, true
	case "cable-joint", "cable":
		return KindCableJoint, true
	default:
		return 0, false
	}
}

// SourceParams describe a utility infeed.
type SourceParams struct {
	ShortCircuitMVA float64 `yaml:"short_circuit_mva"`
	XOverR          float64 `yaml:"x_over_r"` // 0 means the default of 10
}

// TransformerParams describe a two-winding transformer. Impedance is
// given as %Z on the transformer's own MVA base, the usual nameplate
// convention.
type TransformerParams struct {
	RatedMVA    float64 `yaml:"rated_mva"`
	ZPercent    float64 `yaml:"z_percent"`
	PrimaryKV   float64 `yaml:"primary_kv"`
	SecondaryKV float64 `yaml:"secondary_kv"`
	XOverR      float64 `yaml:"x_over_r"` // 0 means the default of 10
}

// BreakerParams describe a circuit breaker's interrupting capability.
type BreakerParams struct {
	RatedKA          float64 `yaml:"rated_ka"`
	ClearingTimeSec  float64 `yaml:"clearing_time_sec"`
	NearGenerator    bool    `yaml:"near_generator"`
	RatedContinuousA float64 `yaml:"rated_continuous_a"`
}

// MotorParams describe a rotating machine. Motors both draw load and
// feed fault current during the sub-transient period.
type MotorParams struct {
	RatedKW       float64 `yaml:"rated_kw"`
	PowerFactor   float64 `yaml:"power_factor"`   // 0 means 0.85
	Efficiency    float64 `yaml:"efficiency"`     // 0 means 0.95
	SubtransientX float64 `yaml:"subtransient_x"` // pu on motor base, 0 means 0.15
}

// LoadParams describe a static load.
type LoadParams struct {
	RatedA      float64 `yaml:"rated_a"`
	PowerKW     float64 `yaml:"power_kw"`
	PowerFactor float64 `yaml:"power_factor"` // 0 means 0.85
}

// Node is one component in the network. Only the parameter struct
// matching Kind is populated; the rest stay nil.
type Node struct {
	ID        string  `yaml:"id"`
	Kind      Kind    `yaml:"-"`
	KindName  string  `yaml:"kind"`
	Tag       string  `yaml:"tag"`
	VoltageKV float64 `yaml:"voltage_kv"`

	Source      *SourceParams      `yaml:"source,omitempty"`
	Transformer *TransformerParams `yaml:"transformer,omitempty"`
	Breaker     *BreakerParams     `yaml:"breaker,omitempty"`
	Motor       *MotorParams       `yaml:"motor,omitempty"`
	Load        *LoadParams        `yaml:"load,omitempty"`

	// Diagram position, carried through for reporting only.
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Edge is a connection between two nodes. Directed for topology
// purposes, bidirectional as an admittance.
type Edge struct {
	ID     string `yaml:"id"`
	FromID string `yaml:"from"`
	ToID   string `yaml:"to"`

	LengthM  float64 `yaml:"length_m"`
	RPerKM   float64 `yaml:"r_per_km"`
	XPerKM   float64 `yaml:"x_per_km"`
	Derating float64 `yaml:"derating"` // 0 means 1.0
	RatedA   float64 `yaml:"rated_a"`

	// BusLink marks a zero-impedance bus-bar link; its endpoints are
	// electrically one bus.
	BusLink bool `yaml:"bus_link"`
}

// ImpedanceOhms returns the series impedance of the edge in ohms,
// including the installation derating factor on resistance.
func (e Edge) ImpedanceOhms() complex128 {
	if e.BusLink {
		return 0
	}
	km := e.LengthM / 1000.0
	derating := e.Derating
	if derating == 0 {
		derating = 1.0
	}
	return complex(e.RPerKM*km*derating, e.XPerKM*km)
}

// Snapshot is one immutable view of the network handed to an analysis
// run. Runs never mutate it; a changed network means a new Snapshot.
type Snapshot struct {
	Nodes    []Node   `yaml:"nodes"`
	Edges    []Edge   `yaml:"edges"`
	Settings Settings `yaml:"settings"`
}

// NodeByID returns the node with the given identifier, or nil.
func (s *Snapshot) NodeByID(id string) *Node {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}
