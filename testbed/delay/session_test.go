package delay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/matrix"
	"github.com/clusterbed/clusterbed/testbed/metrics"
	"github.com/clusterbed/clusterbed/testbed/registry"
	"github.com/clusterbed/clusterbed/testbed/selection"
	"github.com/clusterbed/clusterbed/testbed/topology"
	"github.com/clusterbed/clusterbed/testbed/trace"
)

func execute(t *testing.T, s *Session, mode int, args ...string) Outcome {
	t.Helper()
	cmd, err := selection.ParseBatch(mode, args, s.Catalog().Len())
	require.NoError(t, err)
	out, err := s.Execute(context.Background(), cmd)
	require.NoError(t, err)
	return out
}

func TestSession_FixedDelayOnSubset(t *testing.T) {
	// GIVEN a 3-node mesh: links 1=(0,1) 2=(0,2) 3=(1,2)
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)

	// WHEN links 1 and 3 get a fixed 20 ms
	out := execute(t, s, selection.ModeSelected, "1,3", "20")

	// THEN exactly those links carry 20 ms and nothing else is shaped
	assert.Equal(t, OutcomeApplied, out.Kind)
	assert.Equal(t, "Settings applied: Success 2, Fail 0", out.Summary.String())
	want := map[testbed.Link]int{testbed.NewLink(0, 1): 20, testbed.NewLink(1, 2): 20}
	if diff := cmp.Diff(want, s.State().Snapshot()); diff != "" {
		t.Errorf("applied state mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[testbed.ClusterID]int{1: 20}, backend.nodes[0].rules, "shaped on the lower id only")
	assert.Equal(t, map[testbed.ClusterID]int{2: 20}, backend.nodes[1].rules)
	_, touched := backend.nodes[2]
	assert.False(t, touched, "reverse direction is never configured")
}

func TestSession_FixedDelayOnAllLinks(t *testing.T) {
	s := newMeshSession(t, newFakeBackend(), 1)

	out := execute(t, s, selection.ModeAllLinks, "20")

	assert.Len(t, out.Assignment, 3)
	for _, ld := range out.Assignment {
		assert.Equal(t, 20, ld.DelayMs, ld.Link.String())
	}
	assert.Equal(t, 3, s.State().Len())
}

func TestSession_CompositeCommand(t *testing.T) {
	// GIVEN "1=10 other=5:50"
	s := newMeshSession(t, newFakeBackend(), 42)

	// WHEN executed
	out := execute(t, s, selection.ModeSelected, "1=10", "other=5:50")

	// THEN link 1 has 10 ms and every other link a draw from [5, 50]
	require.Len(t, out.Assignment, 3)
	assert.Equal(t, []testbed.Link{testbed.NewLink(0, 1), testbed.NewLink(0, 2), testbed.NewLink(1, 2)}, out.Assignment.Links(), "catalog order")
	ms, ok := s.State().Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, 10, ms)
	for _, l := range []testbed.Link{testbed.NewLink(0, 2), testbed.NewLink(1, 2)} {
		ms, ok := out.Assignment.Get(l)
		require.True(t, ok)
		assert.GreaterOrEqual(t, ms, 5)
		assert.LessOrEqual(t, ms, 50)
	}
}

func TestSession_SameSeedSamePlan(t *testing.T) {
	plan := func(seed int64) Assignment {
		s := newMeshSession(t, newFakeBackend(), seed)
		p, err := s.Planner().Plan(selection.AllLinks{Spec: selection.Range(0, 1000)})
		require.NoError(t, err)
		return p
	}
	if diff := cmp.Diff(plan(7), plan(7)); diff != "" {
		t.Errorf("plans differ for the same seed:\n%s", diff)
	}
}

func TestSession_RepeatedApplyReplacesAndNeverAccumulates(t *testing.T) {
	// GIVEN all links applied once at 10 ms
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)
	execute(t, s, selection.ModeAllLinks, "10")
	rulesBefore := len(backend.nodes[0].rules) + len(backend.nodes[1].rules)
	require.Equal(t, 3, backend.totalClassifiers())

	// WHEN the same links are applied again, twice, with new values
	execute(t, s, selection.ModeAllLinks, "30")
	out := execute(t, s, selection.ModeAllLinks, "30")

	// THEN each destination still has one rule and one classifier, with the new value
	assert.Equal(t, rulesBefore, len(backend.nodes[0].rules)+len(backend.nodes[1].rules))
	assert.Equal(t, 3, backend.totalClassifiers())
	for dst, count := range backend.nodes[0].classifiers {
		assert.Equal(t, 1, count, "destination %d", dst)
	}
	assert.Equal(t, 30, backend.nodes[0].rules[2])
	assert.True(t, out.Summary.OK())
}

func TestSession_RemoveAfterApplyClearsState(t *testing.T) {
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)
	execute(t, s, selection.ModeAllLinks, "10")

	out := execute(t, s, selection.ModeRemove)

	assert.Equal(t, OutcomeRemoved, out.Kind)
	assert.Equal(t, "Removal complete: Success 3, Fail 0", out.Summary.String())
	assert.Equal(t, 0, s.State().Len())
	assert.Equal(t, 0, backend.totalClassifiers())
	assert.Equal(t, matrix.Connected, s.Matrix().Cell(0, 1).Kind)
}

func TestSession_RemoveOnCleanNodesIsNoOp(t *testing.T) {
	// GIVEN nodes with nothing installed
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)

	// WHEN removal runs
	out := execute(t, s, selection.ModeRemove)

	// THEN every node succeeds as a no-op
	assert.Equal(t, 3, out.Summary.Success)
	assert.Equal(t, 3, out.Summary.NoOp)
	assert.Equal(t, 0, out.Summary.Fail)
}

func TestSession_PartialRemovalFailureKeepsState(t *testing.T) {
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)
	execute(t, s, selection.ModeAllLinks, "10")
	backend.failDeleteRoot[1] = true

	out := execute(t, s, selection.ModeRemove)

	assert.Equal(t, "Removal complete: Success 2, Fail 1", out.Summary.String())
	assert.Equal(t, 3, s.State().Len(), "state untouched while any node failed")
	assert.Equal(t, 1, out.Summary.ByStage[trace.StageRoot])
}

func TestSession_PerLinkFailuresAreCounted(t *testing.T) {
	// GIVEN cluster 1 without a shaping backend and cluster 2 rejecting its rule
	backend := newFakeBackend()
	backend.unavailable[1] = true
	s := newMeshSession(t, backend, 1)

	// WHEN all links are applied
	out := execute(t, s, selection.ModeAllLinks, "10")

	// THEN link (1,2) fails at the availability check and the rest succeed
	assert.Equal(t, "Settings applied: Success 2, Fail 1", out.Summary.String())
	assert.Equal(t, 1, out.Summary.ByStage[trace.StageAvailable])
	_, ok := s.State().Get(1, 2)
	assert.False(t, ok)

	// AND a failed replace keeps the previously applied value
	backend.unavailable[1] = false
	backend.failReplaceDest[2] = true
	execute(t, s, selection.ModeAllLinks, "40")
	ms, _ := s.State().Get(0, 1)
	assert.Equal(t, 40, ms)
	ms, _ = s.State().Get(0, 2)
	assert.Equal(t, 10, ms)
}

func TestSession_UnresolvedGatewayIsResourceFailure(t *testing.T) {
	// GIVEN a registry without an IP for cluster 2
	doc, err := topology.DecodeDocument(strings.NewReader(meshDocument))
	require.NoError(t, err)
	reg := registry.New(map[testbed.ClusterID]registry.Endpoint{
		0: {Interface: "eth0", IP: "172.18.0.2"},
		1: {Interface: "eth0", IP: "172.18.0.3"},
		2: {Interface: "eth0"},
	})
	recorder := metrics.NewRecorder()
	s, err := NewSession(reg, doc, newFakeBackend(), Options{Seed: 1, Recorder: recorder})
	require.NoError(t, err)

	out := execute(t, s, selection.ModeAllLinks, "10")

	assert.Equal(t, 2, out.Summary.Fail)
	assert.Equal(t, 2, out.Summary.ByStage[trace.StageResolve])
	assert.Contains(t, out.Summary.Failures[0], "ip for cluster 2 not found")
	assert.Equal(t, 1, s.State().Len())
}

func TestSession_CancelledContextSkipsRemainingLinks(t *testing.T) {
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan, err := s.Planner().Plan(selection.AllLinks{Spec: selection.Fixed(10)})
	require.NoError(t, err)
	out := s.Apply(ctx, plan)

	assert.Equal(t, 3, out.Summary.Fail)
	assert.Equal(t, 3, out.Summary.ByStage[trace.StageCancelled])
	assert.Equal(t, 0, backend.calls)
}

func TestSession_NoOpTouchesNothing(t *testing.T) {
	backend := newFakeBackend()
	s := newMeshSession(t, backend, 1)

	out := execute(t, s, selection.ModeNoOp)

	assert.Equal(t, OutcomeNoOp, out.Kind)
	assert.Nil(t, out.Summary)
	assert.Equal(t, 0, backend.calls)
}

func TestNewSession_RejectsAsymmetricDocument(t *testing.T) {
	doc, err := topology.DecodeDocument(strings.NewReader(`{
		"cluster0": {"adjacentList": {"cluster1": "172.18.0.3"}, "internalList": {}},
		"cluster1": {"adjacentList": {}, "internalList": {}}
	}`))
	require.NoError(t, err)

	_, err = NewSession(registry.New(nil), doc, newFakeBackend(), Options{})
	var schemaErr *testbed.SchemaError
	assert.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestApplier_ForeignRootIsReplaced(t *testing.T) {
	backend := newFakeBackend()
	backend.node(0).foreignRoot = true
	s := newMeshSession(t, backend, 1)

	out := execute(t, s, selection.ModeSelected, "1", "5")

	assert.True(t, out.Summary.OK())
	assert.True(t, backend.nodes[0].root)
	assert.False(t, backend.nodes[0].foreignRoot)
}
