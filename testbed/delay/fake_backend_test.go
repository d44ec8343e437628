package delay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/registry"
	"github.com/clusterbed/clusterbed/testbed/shaping"
	"github.com/clusterbed/clusterbed/testbed/topology"
)

// fakeNode is the shaping state of one gateway.
type fakeNode struct {
	root        bool
	foreignRoot bool // a non-htb root holding handle 1:
	rules       map[testbed.ClusterID]int // destination -> delay ms
	classifiers map[testbed.ClusterID]int // destination -> installed filter count
}

// fakeBackend keeps shaping state in memory and fails on demand.
type fakeBackend struct {
	nodes           map[testbed.ClusterID]*fakeNode
	unavailable     map[testbed.ClusterID]bool
	failDeleteRoot  map[testbed.ClusterID]bool
	failReplaceDest map[testbed.ClusterID]bool
	calls           int
}

var _ shaping.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nodes:           make(map[testbed.ClusterID]*fakeNode),
		unavailable:     make(map[testbed.ClusterID]bool),
		failDeleteRoot:  make(map[testbed.ClusterID]bool),
		failReplaceDest: make(map[testbed.ClusterID]bool),
	}
}

func (b *fakeBackend) node(id testbed.ClusterID) *fakeNode {
	n, ok := b.nodes[id]
	if !ok {
		n = &fakeNode{rules: map[testbed.ClusterID]int{}, classifiers: map[testbed.ClusterID]int{}}
		b.nodes[id] = n
	}
	return n
}

func (b *fakeBackend) Available(_ context.Context, node testbed.ClusterID) error {
	b.calls++
	if b.unavailable[node] {
		return &testbed.BackendUnavailableError{Node: node, Detail: "tc not installed"}
	}
	return nil
}

func (b *fakeBackend) QueryRoot(_ context.Context, t shaping.Target) (shaping.RootStatus, error) {
	b.calls++
	n := b.node(t.Node)
	switch {
	case n.foreignRoot:
		return shaping.RootStatus{Present: true, Kind: shaping.RootOther, Detail: "netem"}, nil
	case n.root:
		return shaping.RootStatus{Present: true, Kind: shaping.RootClassful, Detail: "htb"}, nil
	}
	return shaping.RootStatus{Kind: shaping.RootNone}, nil
}

// EnsureRoot refuses to change the kind of an existing 1: root, as tc does.
func (b *fakeBackend) EnsureRoot(_ context.Context, t shaping.Target) error {
	b.calls++
	n := b.node(t.Node)
	if n.foreignRoot {
		return &testbed.CommandExecutionError{Node: t.Node, Args: []string{"tc", "qdisc", "replace"}, Stderr: "Error: Invalid qdisc name.", Err: errors.New("exit status 2")}
	}
	n.root = true
	return nil
}

func (b *fakeBackend) ReplaceDelay(_ context.Context, t shaping.Target, rule shaping.DelayRule) error {
	b.calls++
	if b.failReplaceDest[rule.Destination] {
		return &testbed.CommandExecutionError{Node: t.Node, Args: []string{"tc", "qdisc", "replace"}, Stderr: "RTNETLINK answers: Invalid argument", Err: errors.New("exit status 2")}
	}
	b.node(t.Node).rules[rule.Destination] = rule.DelayMs
	return nil
}

func (b *fakeBackend) DeleteClassifier(_ context.Context, t shaping.Target, rule shaping.DelayRule) error {
	b.calls++
	delete(b.node(t.Node).classifiers, rule.Destination)
	return nil
}

func (b *fakeBackend) AddClassifier(_ context.Context, t shaping.Target, rule shaping.DelayRule) error {
	b.calls++
	b.node(t.Node).classifiers[rule.Destination]++
	return nil
}

func (b *fakeBackend) DeleteRoot(_ context.Context, t shaping.Target) error {
	b.calls++
	if b.failDeleteRoot[t.Node] {
		return &testbed.CommandExecutionError{Node: t.Node, Args: []string{"tc", "qdisc", "del"}, Stderr: "Operation not permitted", Err: errors.New("exit status 2")}
	}
	n := b.node(t.Node)
	if !n.root && !n.foreignRoot {
		return testbed.ErrNothingToRemove
	}
	b.nodes[t.Node] = &fakeNode{rules: map[testbed.ClusterID]int{}, classifiers: map[testbed.ClusterID]int{}}
	return nil
}

// totalClassifiers counts installed filters across all nodes.
func (b *fakeBackend) totalClassifiers() int {
	total := 0
	for _, n := range b.nodes {
		for _, c := range n.classifiers {
			total += c
		}
	}
	return total
}

// meshDocument is a 3-cluster full mesh with gateways 172.18.0.2-4.
const meshDocument = `{
  "cluster0": {"adjacentList": {"cluster1": "172.18.0.3", "cluster2": "172.18.0.4"}, "internalList": {"gatewayIP": "172.18.0.2"}},
  "cluster1": {"adjacentList": {"cluster0": "172.18.0.2", "cluster2": "172.18.0.4"}, "internalList": {"gatewayIP": "172.18.0.3"}},
  "cluster2": {"adjacentList": {"cluster0": "172.18.0.2", "cluster1": "172.18.0.3"}, "internalList": {"gatewayIP": "172.18.0.4"}}
}`

func newMeshSession(t *testing.T, backend *fakeBackend, seed int64) *Session {
	t.Helper()
	doc, err := topology.DecodeDocument(strings.NewReader(meshDocument))
	require.NoError(t, err)
	s, err := NewSession(registry.FromDocument(doc, "eth0"), doc, backend, Options{Seed: seed, RunID: "test"})
	require.NoError(t, err)
	return s
}
