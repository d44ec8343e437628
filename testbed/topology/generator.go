// Package topology synthesizes inter-cluster graphs and converts them to and
// from the adjacency document handed to the delay orchestrator.
package topology

import (
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/clusterbed/clusterbed/testbed"
)

// Model selects the generative model of a topology.
type Model string

const (
	ModelRandom                 Model = "random"
	ModelPreferentialAttachment Model = "preferential-attachment"
	ModelFullMesh               Model = "full-mesh"
)

// Fixed model parameters. Seeds are constants so that the same cluster count
// always yields the same graph.
const (
	RandomEdgeProbability = 0.3
	RandomSeed            = 3

	AttachmentEdges = 3
	AttachmentSeed  = 0
)

var modelAliases = map[string]Model{
	"random":                  ModelRandom,
	"r":                       ModelRandom,
	"preferential-attachment": ModelPreferentialAttachment,
	"ba":                      ModelPreferentialAttachment,
	"full-mesh":               ModelFullMesh,
	"f":                       ModelFullMesh,
	"fullmesh":                ModelFullMesh,
}

// ParseModel resolves a selector (full name or short alias) to a Model.
func ParseModel(s string) (Model, error) {
	if m, ok := modelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", &testbed.InvalidModelError{Model: s, Valid: ValidModelNames()}
}

// ValidModelNames lists the accepted selectors.
func ValidModelNames() []string {
	names := make([]string, 0, len(modelAliases))
	for k := range modelAliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Generate builds an undirected simple graph on nodes 0..n-1 under the model.
func Generate(n int, model Model) (*simple.UndirectedGraph, error) {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	switch model {
	case ModelRandom:
		rng := testbed.NewPartitionedRNG(testbed.NewRunKey(RandomSeed)).ForSubsystem(testbed.SubsystemTopology)
		gnp(g, n, RandomEdgeProbability, rng)
	case ModelPreferentialAttachment:
		rng := testbed.NewPartitionedRNG(testbed.NewRunKey(AttachmentSeed)).ForSubsystem(testbed.SubsystemTopology)
		preferentialAttachment(g, n, AttachmentEdges, rng)
	case ModelFullMesh:
		complete(g, n)
	default:
		return nil, &testbed.InvalidModelError{Model: string(model), Valid: ValidModelNames()}
	}
	return g, nil
}

// gnp adds each of the n(n-1)/2 possible edges independently with probability p.
// Pairs are visited in a fixed order so the draw sequence depends only on n.
func gnp(g *simple.UndirectedGraph, n int, p float64, rng *rand.Rand) {
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			if rng.Float64() < p {
				setEdge(g, u, v)
			}
		}
	}
}

// preferentialAttachment grows a Barabási–Albert graph: it starts from a star
// on m+1 nodes and attaches every further node to m distinct existing nodes
// chosen with probability proportional to their degree.
func preferentialAttachment(g *simple.UndirectedGraph, n, m int, rng *rand.Rand) {
	if n <= m {
		complete(g, n)
		return
	}

	// every node appears once per incident edge
	var repeated []int
	for leaf := 1; leaf <= m; leaf++ {
		setEdge(g, 0, leaf)
		repeated = append(repeated, 0, leaf)
	}

	for source := m + 1; source < n; source++ {
		targets := make(map[int]bool, m)
		var ordered []int
		for len(ordered) < m {
			x := repeated[rng.Intn(len(repeated))]
			if targets[x] {
				continue
			}
			targets[x] = true
			ordered = append(ordered, x)
		}
		for _, t := range ordered {
			setEdge(g, source, t)
			repeated = append(repeated, t, source)
		}
	}
}

func complete(g *simple.UndirectedGraph, n int) {
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			setEdge(g, u, v)
		}
	}
}

func setEdge(g *simple.UndirectedGraph, u, v int) {
	g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
}

// AdjacencyLists returns, for each node 0..n-1, its neighbors in ascending order.
func AdjacencyLists(g *simple.UndirectedGraph) map[int][]int {
	out := make(map[int][]int)
	for _, node := range graph.NodesOf(g.Nodes()) {
		id := int(node.ID())
		neighbors := []int{}
		for _, nb := range graph.NodesOf(g.From(node.ID())) {
			neighbors = append(neighbors, int(nb.ID()))
		}
		sort.Ints(neighbors)
		out[id] = neighbors
	}
	return out
}

// EdgeSet returns the canonical edge list of g, sorted.
func EdgeSet(g *simple.UndirectedGraph) []testbed.Link {
	seen := make(map[testbed.Link]bool)
	var links []testbed.Link
	for _, e := range graph.EdgesOf(g.Edges()) {
		l := testbed.NewLink(testbed.ClusterID(e.From().ID()), testbed.ClusterID(e.To().ID()))
		if !seen[l] {
			seen[l] = true
			links = append(links, l)
		}
	}
	return testbed.SortLinks(links)
}
