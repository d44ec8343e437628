package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/shaping"
)

// memoryBackend keeps one delay per (node, destination) and counts calls.
type memoryBackend struct {
	roots map[testbed.ClusterID]bool
	rules map[[2]testbed.ClusterID]int
	calls int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{roots: map[testbed.ClusterID]bool{}, rules: map[[2]testbed.ClusterID]int{}}
}

func (b *memoryBackend) Available(context.Context, testbed.ClusterID) error {
	b.calls++
	return nil
}

func (b *memoryBackend) QueryRoot(_ context.Context, t shaping.Target) (shaping.RootStatus, error) {
	b.calls++
	if b.roots[t.Node] {
		return shaping.RootStatus{Present: true, Kind: shaping.RootClassful}, nil
	}
	return shaping.RootStatus{}, nil
}

func (b *memoryBackend) EnsureRoot(_ context.Context, t shaping.Target) error {
	b.calls++
	b.roots[t.Node] = true
	return nil
}

func (b *memoryBackend) ReplaceDelay(_ context.Context, t shaping.Target, r shaping.DelayRule) error {
	b.calls++
	b.rules[[2]testbed.ClusterID{t.Node, r.Destination}] = r.DelayMs
	return nil
}

func (b *memoryBackend) DeleteClassifier(context.Context, shaping.Target, shaping.DelayRule) error {
	b.calls++
	return nil
}

func (b *memoryBackend) AddClassifier(context.Context, shaping.Target, shaping.DelayRule) error {
	b.calls++
	return nil
}

func (b *memoryBackend) DeleteRoot(_ context.Context, t shaping.Target) error {
	b.calls++
	delete(b.roots, t.Node)
	for k := range b.rules {
		if k[0] == t.Node {
			delete(b.rules, k)
		}
	}
	return nil
}

const pathDocument = `{
  "cluster0": {"adjacentList": {"cluster1": "172.18.0.3"}, "internalList": {"gatewayIP": "172.18.0.2"}},
  "cluster1": {"adjacentList": {"cluster0": "172.18.0.2", "cluster2": "172.18.0.4"}, "internalList": {"gatewayIP": "172.18.0.3"}},
  "cluster2": {"adjacentList": {"cluster1": "172.18.0.3"}, "internalList": {"gatewayIP": "172.18.0.4"}}
}`

func testOptions(t *testing.T, backend shaping.Backend) delayOptions {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adjacentList.json")
	require.NoError(t, os.WriteFile(path, []byte(pathDocument), 0o644))
	return delayOptions{
		Adjacency: path,
		Interface: "eth0",
		Runtime:   shaping.RuntimeLocal,
		Seed:      1,
		RunID:     "test-run",
		Backend:   backend,
	}
}

func TestRunDelay_BatchAllLinks(t *testing.T) {
	// GIVEN a path 0-1-2 and mode 0 with 20 ms
	backend := newMemoryBackend()
	opts := testOptions(t, backend)
	opts.MetricsFile = filepath.Join(t.TempDir(), "clusterbed.prom")
	var out bytes.Buffer

	// WHEN run in batch mode
	err := runDelay(context.Background(), opts, []string{"0", "20"}, strings.NewReader(""), &out)

	// THEN both links are shaped from their lower-id endpoint
	require.NoError(t, err)
	assert.Equal(t, 20, backend.rules[[2]testbed.ClusterID{0, 1}])
	assert.Equal(t, 20, backend.rules[[2]testbed.ClusterID{1, 2}])
	text := out.String()
	assert.Contains(t, text, "0: 172.18.0.2 (eth0)")
	assert.Contains(t, text, "Delay time: 20ms (Same for all links)")
	assert.Contains(t, text, "Settings applied: Success 2, Fail 0")
	assert.Contains(t, text, "Average applied delay: 20.0ms")
	assert.Contains(t, text, "  0 |   -   20    . ")
	assert.Contains(t, text, "=== Configuration Complete ===")

	_, statErr := os.Stat(opts.MetricsFile)
	assert.NoError(t, statErr, "metrics textfile written")
}

func TestRunDelay_InvalidArgumentsTouchNothing(t *testing.T) {
	cases := [][]string{
		{"0"},
		{"1", "3", "20"},
		{"1", "1,9", "20"},
		{"2", "extra"},
		{"7"},
	}
	for _, args := range cases {
		backend := newMemoryBackend()
		var out bytes.Buffer
		err := runDelay(context.Background(), testOptions(t, backend), args, strings.NewReader(""), &out)

		var usage *usageError
		assert.True(t, errors.As(err, &usage), "args %v: got %v", args, err)
		assert.Equal(t, 0, backend.calls, "args %v", args)
		assert.Empty(t, out.String(), "args %v", args)
	}
}

func TestRunDelay_RemoveReportsSummary(t *testing.T) {
	backend := newMemoryBackend()
	backend.roots[1] = true
	var out bytes.Buffer

	err := runDelay(context.Background(), testOptions(t, backend), []string{"2"}, strings.NewReader(""), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Removal complete: Success 3, Fail 0")
	assert.False(t, backend.roots[1])
}

func TestRunDelay_InteractiveSubset(t *testing.T) {
	// GIVEN answers: manual selection, a bad token, link 2, confirm, default delay
	backend := newMemoryBackend()
	var out bytes.Buffer
	answers := "1\n9\n2\ny\n\n"

	err := runDelay(context.Background(), testOptions(t, backend), nil, strings.NewReader(answers), &out)

	require.NoError(t, err)
	assert.Equal(t, 10, backend.rules[[2]testbed.ClusterID{1, 2}])
	assert.NotContains(t, backend.rules, [2]testbed.ClusterID{0, 1})
	text := out.String()
	assert.Contains(t, text, "1. Cluster 0 - Cluster 1 (172.18.0.2 -> 172.18.0.3)")
	assert.Contains(t, text, "Error: invalid selection")
	assert.Contains(t, text, "Setting 10ms delay for 1 selected links.")
}

func TestRunDelay_InteractiveRandomDeclineThenAccept(t *testing.T) {
	// GIVEN: all links, random 5..6, decline, random defaults, accept
	backend := newMemoryBackend()
	var out bytes.Buffer
	answers := "0\n1\n5\n6\nn\n1\n\n\ny\n"

	err := runDelay(context.Background(), testOptions(t, backend), nil, strings.NewReader(answers), &out)

	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Randomly assigned delays"))
	for _, ms := range backend.rules {
		assert.GreaterOrEqual(t, ms, 10)
		assert.LessOrEqual(t, ms, 100)
	}
	assert.Len(t, backend.rules, 2)
}

func TestRunDelay_InteractiveNoOpAndClosedInput(t *testing.T) {
	backend := newMemoryBackend()
	var out bytes.Buffer
	err := runDelay(context.Background(), testOptions(t, backend), nil, strings.NewReader("x\n3\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Error: Please enter one of 0, 1, 2, 3")
	assert.Contains(t, out.String(), "Skipping delay configuration.")
	assert.Equal(t, 0, backend.calls)

	// WHEN input ends before an answer THEN the run stops as interrupted
	err = runDelay(context.Background(), testOptions(t, backend), nil, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, errInterrupted)
	assert.Equal(t, 0, backend.calls)
}

func TestRunDelay_CancelledDuringPrompt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader, writer, err := os.Pipe()
	require.NoError(t, err)
	defer writer.Close()
	defer reader.Close()

	err = runDelay(ctx, testOptions(t, newMemoryBackend()), nil, reader, &bytes.Buffer{})
	assert.ErrorIs(t, err, errInterrupted)
}
