package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/clusterbed/clusterbed/testbed"
)

// GatewayKey is the internal-list key carrying a cluster's gateway IP.
const GatewayKey = "gatewayIP"

// legacyGatewayKey is accepted in input documents written for older tooling.
const legacyGatewayKey = "cluster_lb"

// Service is one internal service entry of a cluster, kept verbatim.
type Service struct {
	Key   string
	Value json.RawMessage
}

// ClusterEntry is one cluster of the input document.
type ClusterEntry struct {
	Name      string
	GatewayIP string
	Services  []Service // sorted by key
}

// SourceDocument is the topology-generation input: cluster name -> object with
// a gateway IP and arbitrary internal service keys. Clusters keep document
// order, which defines the node-name <-> graph-index bijection.
type SourceDocument struct {
	Clusters []ClusterEntry
}

// Len returns the number of clusters.
func (d *SourceDocument) Len() int {
	return len(d.Clusters)
}

// LoadSource reads and parses an input document.
func LoadSource(path string) (*SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology input: %w", err)
	}
	doc, err := ParseSource(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing topology input %s: %w", path, err)
	}
	return doc, nil
}

// ParseSource decodes an input document, preserving the order of its top-level keys.
func ParseSource(r io.Reader) (*SourceDocument, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, &testbed.SchemaError{Reason: fmt.Sprintf("reading document: %v", err)}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &testbed.SchemaError{Reason: "document must be a JSON object"}
	}

	doc := &SourceDocument{}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &testbed.SchemaError{Reason: fmt.Sprintf("reading cluster name: %v", err)}
		}
		name, _ := tok.(string)
		if seen[name] {
			return nil, &testbed.SchemaError{Field: name, Reason: "duplicate cluster"}
		}
		seen[name] = true

		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			return nil, &testbed.SchemaError{Field: name, Reason: fmt.Sprintf("cluster entry must be an object: %v", err)}
		}
		entry, err := newClusterEntry(name, fields)
		if err != nil {
			return nil, err
		}
		doc.Clusters = append(doc.Clusters, entry)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &testbed.SchemaError{Reason: fmt.Sprintf("unterminated document: %v", err)}
	}
	return doc, nil
}

func newClusterEntry(name string, fields map[string]json.RawMessage) (ClusterEntry, error) {
	entry := ClusterEntry{Name: name}
	raw, ok := fields[GatewayKey]
	if !ok {
		raw, ok = fields[legacyGatewayKey]
	}
	if !ok {
		return entry, &testbed.SchemaError{Field: name + "." + GatewayKey, Reason: "missing gateway IP"}
	}
	if err := json.Unmarshal(raw, &entry.GatewayIP); err != nil || entry.GatewayIP == "" {
		return entry, &testbed.SchemaError{Field: name + "." + GatewayKey, Reason: "gateway IP must be a non-empty string"}
	}

	for key, value := range fields {
		if key == GatewayKey || key == legacyGatewayKey {
			continue
		}
		entry.Services = append(entry.Services, Service{Key: key, Value: value})
	}
	sort.Slice(entry.Services, func(i, j int) bool { return entry.Services[i].Key < entry.Services[j].Key })
	return entry, nil
}
