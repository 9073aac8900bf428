package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridworks/powercalc/pkg/logging"
	"github.com/gridworks/powercalc/pkg/metrics"
	"github.com/gridworks/powercalc/pkg/model"
)

// commissioningSnapshot is the standard commissioning check: an 11kV
// utility infeed through a 1MVA transformer and 50m of cable onto a
// 0.4kV switchboard with a 22kA incomer and a 200kW load.
func commissioningSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Nodes: []model.Node{
			{ID: "grid", Kind: model.KindSource, VoltageKV: 11,
				Source: &model.SourceParams{ShortCircuitMVA: 500}},
			{ID: "tx1", Kind: model.KindTransformer, VoltageKV: 0.4,
				Transformer: &model.TransformerParams{RatedMVA: 1, ZPercent: 6, PrimaryKV: 11, SecondaryKV: 0.4}},
			{ID: "cb1", Kind: model.KindBreaker, VoltageKV: 0.4,
				Breaker: &model.BreakerParams{RatedKA: 22, ClearingTimeSec: 0.1}},
			{ID: "panel", Kind: model.KindBus, VoltageKV: 0.4},
			{ID: "load1", Kind: model.KindLoad, VoltageKV: 0.4,
				Load: &model.LoadParams{PowerKW: 200, PowerFactor: 0.9}},
		},
		Edges: []model.Edge{
			{ID: "e1", FromID: "grid", ToID: "tx1"},
			{ID: "e2", FromID: "tx1", ToID: "cb1", LengthM: 50, RPerKM: 0.161, XPerKM: 0.086, RatedA: 1600},
			{ID: "e3", FromID: "cb1", ToID: "panel", BusLink: true},
			{ID: "e4", FromID: "panel", ToID: "load1", LengthM: 20, RPerKM: 0.387, XPerKM: 0.082, RatedA: 400},
		},
		Settings: model.DefaultSettings(),
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(Options{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestFullPipeline(t *testing.T) {
	r := newTestRunner(t)

	res, err := r.Run(context.Background(), commissioningSnapshot())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, StatusOK, res.Status())
	for _, name := range []string{
		SectionTopology, SectionPerUnit, SectionShortCircuit,
		SectionLoadFlow, SectionArcFlash, SectionLoopFlow,
	} {
		require.Contains(t, res.Sections, name)
		assert.Equal(t, StatusOK, res.Sections[name].Status, name)
	}

	// The study maximum is the 11kV infeed at about 26 kA.
	require.NotNil(t, res.ShortCircuit)
	assert.InDelta(t, 26.2, res.Summary.MaxFaultKA, 1.5)

	// The 400V board itself sits in the 15-20kA band.
	board := 0.0
	for _, b := range res.ShortCircuit.Buses {
		if b.VoltageKV == 0.4 && b.InitialSymKA > board {
			board = b.InitialSymKA
		}
	}
	assert.InDelta(t, 17.5, board, 2.5)

	// The 22kA incomer covers the duty with the standard margin.
	assert.Equal(t, 1, res.Summary.BreakersPass)
	assert.Zero(t, res.Summary.BreakersFail)

	// A 200kW load on a healthy feeder converges with small losses.
	require.NotNil(t, res.LoadFlow)
	assert.True(t, res.Summary.Converged)
	assert.Greater(t, res.Summary.TotalLossMW, 0.0)
	assert.Less(t, res.Summary.TotalLossMW, 0.05)

	// Every reachable bus gets an arc flash study.
	assert.NotEmpty(t, res.ArcFlash)
	for _, af := range res.ArcFlash {
		assert.Empty(t, af.Error, af.BusName)
		require.NotNil(t, af.Study)
		assert.Greater(t, af.Study.IncidentEnergyCalCm2, 0.0)
	}

	// Radial network, no rings.
	require.NotNil(t, res.Loops)
	assert.Zero(t, res.Summary.LoopCount)
	assert.Zero(t, res.Summary.IssueErrors)
}

func TestRunRecordsMatrixSolveDuration(t *testing.T) {
	reg := metrics.NewRegistry()
	r, err := NewRunner(Options{Logger: logging.NopLogger{}, Metrics: reg})
	require.NoError(t, err)
	t.Cleanup(r.Close)

	_, err = r.Run(context.Background(), commissioningSnapshot())
	require.NoError(t, err)

	families, err := reg.GetPrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "powercalc_matrix_solve_duration_seconds" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.Metric)
		assert.EqualValues(t, 1, mf.Metric[0].GetHistogram().GetSampleCount())
		require.NotEmpty(t, mf.Metric[0].Label)
		assert.Equal(t, "zbus", mf.Metric[0].Label[0].GetValue())
	}
	assert.True(t, found, "matrix solve duration not recorded")
}

func TestUnreachableNodeDegradesRun(t *testing.T) {
	r := newTestRunner(t)

	snap := commissioningSnapshot()
	snap.Nodes = append(snap.Nodes, model.Node{
		ID: "orphan", Kind: model.KindBus, VoltageKV: 0.4,
	})

	res, err := r.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, res.Status())
	assert.Equal(t, StatusDegraded, res.Sections[SectionTopology].Status)
	assert.NotEmpty(t, res.Issues)
	assert.Greater(t, res.Summary.IssueErrors, 0)

	// The healthy part of the network is still fully studied.
	assert.InDelta(t, 26.2, res.Summary.MaxFaultKA, 1.5)
	assert.True(t, res.Summary.Converged)
}

func TestRingNetworkCountsLoops(t *testing.T) {
	r := newTestRunner(t)

	snap := commissioningSnapshot()
	// Close a ring between the board and the load via a second cable.
	snap.Edges = append(snap.Edges, model.Edge{
		ID: "e5", FromID: "panel", ToID: "load1",
		LengthM: 40, RPerKM: 0.387, XPerKM: 0.082, RatedA: 400,
	})

	res, err := r.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.LoopCount)
	require.NotNil(t, res.Loops)
	require.Len(t, res.Loops.Loops, 1)
}

func TestInvalidSettingsRejected(t *testing.T) {
	r := newTestRunner(t)

	snap := commissioningSnapshot()
	snap.Settings.VoltageFactorC = 3.0

	_, err := r.Run(context.Background(), snap)
	require.Error(t, err)
}

func TestRunHonorsContext(t *testing.T) {
	r := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context stops the load flow; the run itself still
	// returns, with that section degraded.
	res, err := r.Run(ctx, commissioningSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, res.Sections[SectionLoadFlow].Status)
}

func TestRunIDsUnique(t *testing.T) {
	r := newTestRunner(t)

	a, err := r.Run(context.Background(), commissioningSnapshot())
	require.NoError(t, err)
	b, err := r.Run(context.Background(), commissioningSnapshot())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Less(t, time.Since(a.StartedAt), time.Minute)
}
