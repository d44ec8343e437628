// Package registry maps cluster ids to the gateway interface and IP address
// the shaping backend needs. Node discovery happens elsewhere; a registry is
// either loaded from a YAML file or derived from an adjacency document.
package registry

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/topology"
)

// Endpoint is the shaping-relevant view of one cluster gateway.
type Endpoint struct {
	Interface string `yaml:"interface"`
	IP        string `yaml:"ip"`
}

// Registry resolves clusters to endpoints. Immutable after construction.
type Registry struct {
	endpoints map[testbed.ClusterID]Endpoint
}

// New builds a registry from an explicit map. The map is copied.
func New(endpoints map[testbed.ClusterID]Endpoint) *Registry {
	r := &Registry{endpoints: make(map[testbed.ClusterID]Endpoint, len(endpoints))}
	for id, ep := range endpoints {
		r.endpoints[id] = ep
	}
	return r
}

// file is the on-disk layout:
//
//	clusters:
//	  0: {interface: eth0, ip: 172.18.0.2}
type file struct {
	Clusters map[int]Endpoint `yaml:"clusters"`
}

// Load reads a registry YAML file. Unrecognized keys are rejected.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var f file
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}

	endpoints := make(map[testbed.ClusterID]Endpoint, len(f.Clusters))
	for id, ep := range f.Clusters {
		if id < 0 {
			return nil, &testbed.SchemaError{Field: fmt.Sprintf("clusters.%d", id), Reason: "cluster id must be non-negative"}
		}
		endpoints[testbed.ClusterID(id)] = ep
	}
	return New(endpoints), nil
}

// FromDocument derives a registry from an adjacency document: each cluster's
// IP is its internal gatewayIP and every cluster uses defaultInterface. A
// cluster without a gatewayIP takes the address its lowest-id neighbor lists
// for it.
func FromDocument(doc topology.AdjacencyDocument, defaultInterface string) *Registry {
	ids := make([]testbed.ClusterID, 0, len(doc))
	for name := range doc {
		if id, err := testbed.ParseClusterName(name); err == nil {
			ids = append(ids, id)
		}
	}
	testbed.SortClusterIDs(ids)

	endpoints := make(map[testbed.ClusterID]Endpoint, len(ids))
	ips := doc.GatewayIPs()
	for _, id := range ids {
		ip, ok := ips[id]
		for _, other := range ids {
			if ok {
				break
			}
			if other != id {
				ip, ok = doc.NeighborIP(other, id)
			}
		}
		endpoints[id] = Endpoint{Interface: defaultInterface, IP: ip}
	}
	return New(endpoints)
}

// Merge returns a registry where entries of overlay fill in or replace the
// fields of r. Empty overlay fields keep r's value.
func (r *Registry) Merge(overlay *Registry) *Registry {
	out := New(r.endpoints)
	if overlay == nil {
		return out
	}
	for id, ep := range overlay.endpoints {
		cur := out.endpoints[id]
		if ep.Interface != "" {
			cur.Interface = ep.Interface
		}
		if ep.IP != "" {
			cur.IP = ep.IP
		}
		out.endpoints[id] = cur
	}
	return out
}

// Lookup returns the endpoint for id. Missing clusters, interfaces and IPs
// are reported as *testbed.ResourceNotFoundError.
func (r *Registry) Lookup(id testbed.ClusterID) (Endpoint, error) {
	ep, ok := r.endpoints[id]
	switch {
	case !ok:
		return Endpoint{}, &testbed.ResourceNotFoundError{Cluster: id, Resource: "cluster"}
	case ep.Interface == "":
		return Endpoint{}, &testbed.ResourceNotFoundError{Cluster: id, Resource: "interface"}
	case ep.IP == "":
		return Endpoint{}, &testbed.ResourceNotFoundError{Cluster: id, Resource: "ip"}
	}
	return ep, nil
}

// Interface returns only the interface of id.
func (r *Registry) Interface(id testbed.ClusterID) (string, error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return "", &testbed.ResourceNotFoundError{Cluster: id, Resource: "cluster"}
	}
	if ep.Interface == "" {
		return "", &testbed.ResourceNotFoundError{Cluster: id, Resource: "interface"}
	}
	return ep.Interface, nil
}

// IP returns only the gateway IP of id.
func (r *Registry) IP(id testbed.ClusterID) (string, error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return "", &testbed.ResourceNotFoundError{Cluster: id, Resource: "cluster"}
	}
	if ep.IP == "" {
		return "", &testbed.ResourceNotFoundError{Cluster: id, Resource: "ip"}
	}
	return ep.IP, nil
}

// Resolve adapts the registry to LinkCatalog.Describe.
func (r *Registry) Resolve(id testbed.ClusterID) (string, bool) {
	ip, err := r.IP(id)
	return ip, err == nil
}

// IDs returns every registered cluster id in ascending order.
func (r *Registry) IDs() []testbed.ClusterID {
	ids := make([]testbed.ClusterID, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Nodes returns every registered cluster in ascending id order. Unknown
// interfaces and IPs are left empty.
func (r *Registry) Nodes() []testbed.ClusterNode {
	nodes := make([]testbed.ClusterNode, 0, len(r.endpoints))
	for _, id := range r.IDs() {
		ep := r.endpoints[id]
		nodes = append(nodes, testbed.ClusterNode{ID: id, GatewayIP: ep.IP, InterfaceName: ep.Interface})
	}
	return nodes
}

// Len returns the number of registered clusters.
func (r *Registry) Len() int {
	return len(r.endpoints)
}
