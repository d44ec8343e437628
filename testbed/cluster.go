package testbed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// clusterNamePrefix is the prefix of every cluster name in the adjacency document.
const clusterNamePrefix = "cluster"

// ClusterID identifies a cluster. It is the only representation of a cluster
// identity inside the module; strings appear only at document and file boundaries.
type ClusterID int

// Name returns the document name of the cluster, e.g. "cluster3".
func (id ClusterID) Name() string {
	return clusterNamePrefix + strconv.Itoa(int(id))
}

// String implements fmt.Stringer.
func (id ClusterID) String() string {
	return strconv.Itoa(int(id))
}

// ParseClusterName converts a document name ("cluster3") to a ClusterID.
func ParseClusterName(name string) (ClusterID, error) {
	digits, ok := strings.CutPrefix(name, clusterNamePrefix)
	if !ok || digits == "" {
		return 0, &SchemaError{Field: name, Reason: fmt.Sprintf("cluster name must look like %q", clusterNamePrefix+"<id>")}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, &SchemaError{Field: name, Reason: "cluster id must be a non-negative integer"}
	}
	return ClusterID(n), nil
}

// SortClusterIDs sorts ids ascending in place and returns them.
func SortClusterIDs(ids []ClusterID) []ClusterID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClusterNode describes one cluster of the testbed. Immutable once built.
type ClusterNode struct {
	ID            ClusterID
	GatewayIP     string // empty when unknown
	InterfaceName string // empty when unknown
}

// Name returns the document name of the node.
func (n ClusterNode) Name() string {
	return n.ID.Name()
}
