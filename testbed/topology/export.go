package topology

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/clusterbed/clusterbed/testbed"
)

// ExportOptions controls how much of each cluster's metadata is exported.
type ExportOptions struct {
	// ServiceLimits caps, per cluster index, how many internal services are
	// exported (first N by key). Missing indices and negative values mean
	// "include all".
	ServiceLimits []int
}

func (o ExportOptions) limit(index int) (int, bool) {
	if index >= len(o.ServiceLimits) || o.ServiceLimits[index] < 0 {
		return 0, false
	}
	return o.ServiceLimits[index], true
}

// Export maps graph g over the clusters of src (graph node i is src.Clusters[i])
// into an AdjacencyDocument.
func Export(g *simple.UndirectedGraph, src *SourceDocument, opts ExportOptions) (AdjacencyDocument, error) {
	entryAt := func(index int64) (*ClusterEntry, error) {
		if index < 0 || index >= int64(len(src.Clusters)) {
			return nil, &testbed.SchemaError{Field: fmt.Sprintf("node %d", index), Reason: "no cluster in the input document for this node"}
		}
		return &src.Clusters[index], nil
	}

	doc := make(AdjacencyDocument, len(src.Clusters))
	for _, node := range graph.NodesOf(g.Nodes()) {
		entry, err := entryAt(node.ID())
		if err != nil {
			return nil, err
		}

		adjacent := make(map[string]string)
		for _, nb := range graph.NodesOf(g.From(node.ID())) {
			neighbor, err := entryAt(nb.ID())
			if err != nil {
				return nil, err
			}
			adjacent[neighbor.Name] = neighbor.GatewayIP
		}

		internal, err := internalList(entry, opts, int(node.ID()))
		if err != nil {
			return nil, err
		}
		doc[entry.Name] = ClusterAdjacency{
			AdjacentList: adjacent,
			InternalList: internal,
		}
	}
	return doc, nil
}

func internalList(entry *ClusterEntry, opts ExportOptions, index int) (map[string]json.RawMessage, error) {
	gateway, err := json.Marshal(entry.GatewayIP)
	if err != nil {
		return nil, fmt.Errorf("encode gateway IP of %s: %w", entry.Name, err)
	}
	out := map[string]json.RawMessage{GatewayKey: gateway}

	services := entry.Services
	if limit, ok := opts.limit(index); ok && limit < len(services) {
		services = services[:limit]
	}
	for _, s := range services {
		out[s.Key] = s.Value
	}
	return out, nil
}
