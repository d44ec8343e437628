package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/clusterbed/clusterbed/testbed"
)

// ClusterAdjacency is one cluster's entry in the adjacency document.
type ClusterAdjacency struct {
	AdjacentList map[string]string          `json:"adjacentList"`
	InternalList map[string]json.RawMessage `json:"internalList"`
}

// AdjacencyDocument maps a cluster name to its adjacency entry. It is the only
// hand-off between topology generation and the delay orchestrator.
type AdjacencyDocument map[string]ClusterAdjacency

// LoadDocument reads an adjacency document from path.
// Unknown entry fields are rejected.
func LoadDocument(path string) (AdjacencyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading adjacency document: %w", err)
	}
	doc, err := DecodeDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing adjacency document %s: %w", path, err)
	}
	return doc, nil
}

// DecodeDocument decodes an adjacency document.
func DecodeDocument(r io.Reader) (AdjacencyDocument, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc AdjacencyDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, &testbed.SchemaError{Reason: err.Error()}
	}
	return doc, nil
}

// Encode writes the document as indented JSON. Map keys are emitted sorted.
func (d AdjacencyDocument) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Save writes the document to path, creating parent directories.
func (d AdjacencyDocument) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir output: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return fmt.Errorf("encode adjacency document: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write adjacency document: %w", err)
	}
	return nil
}

// Adjacency converts the document to cluster ids. Every name must be
// "cluster<id>", every neighbor must itself be a document entry, and the
// relation must be symmetric.
func (d AdjacencyDocument) Adjacency() (map[testbed.ClusterID][]testbed.ClusterID, error) {
	ids := make(map[string]testbed.ClusterID, len(d))
	taken := make(map[testbed.ClusterID]string, len(d))
	for name := range d {
		id, err := testbed.ParseClusterName(name)
		if err != nil {
			return nil, err
		}
		if other, dup := taken[id]; dup {
			return nil, &testbed.SchemaError{Field: name, Reason: fmt.Sprintf("same cluster id as %s", other)}
		}
		taken[id] = name
		ids[name] = id
	}

	adj := make(map[testbed.ClusterID][]testbed.ClusterID, len(d))
	for name, entry := range d {
		src := ids[name]
		neighbors := make([]testbed.ClusterID, 0, len(entry.AdjacentList))
		for neighbor := range entry.AdjacentList {
			dst, ok := ids[neighbor]
			if !ok {
				return nil, &testbed.SchemaError{Field: name + ".adjacentList." + neighbor, Reason: "neighbor is not a cluster of the document"}
			}
			if dst == src {
				return nil, &testbed.SchemaError{Field: name + ".adjacentList", Reason: "cluster lists itself as adjacent"}
			}
			if _, back := d[neighbor].AdjacentList[name]; !back {
				return nil, &testbed.SchemaError{Field: neighbor + ".adjacentList", Reason: fmt.Sprintf("missing reverse entry for %s", name)}
			}
			neighbors = append(neighbors, dst)
		}
		adj[src] = testbed.SortClusterIDs(neighbors)
	}
	return adj, nil
}

// GatewayIPs returns each cluster's own gateway IP from its internal list.
// Clusters without a readable gateway IP are omitted.
func (d AdjacencyDocument) GatewayIPs() map[testbed.ClusterID]string {
	out := make(map[testbed.ClusterID]string, len(d))
	for name, entry := range d {
		id, err := testbed.ParseClusterName(name)
		if err != nil {
			continue
		}
		var ip string
		if raw, ok := entry.InternalList[GatewayKey]; ok && json.Unmarshal(raw, &ip) == nil && ip != "" {
			out[id] = ip
		}
	}
	return out
}

// NeighborIP returns the gateway IP src's entry records for dst.
func (d AdjacencyDocument) NeighborIP(src, dst testbed.ClusterID) (string, bool) {
	ip, ok := d[src.Name()].AdjacentList[dst.Name()]
	return ip, ok && ip != ""
}
