package testbed

import "fmt"

// Link is an undirected link between two distinct clusters.
// Values produced by NewLink are always canonical: A < B.
type Link struct {
	A ClusterID
	B ClusterID
}

// NewLink returns the canonical form of the pair (x, y).
// Panics if x == y: self links do not exist in a simple graph.
func NewLink(x, y ClusterID) Link {
	if x == y {
		panic(fmt.Sprintf("testbed: self link on cluster %d", x))
	}
	if x > y {
		x, y = y, x
	}
	return Link{A: x, B: y}
}

// Source returns the cluster whose gateway carries the delay rule for this link.
func (l Link) Source() ClusterID { return l.A }

// Destination returns the cluster whose traffic is delayed.
func (l Link) Destination() ClusterID { return l.B }

// String implements fmt.Stringer.
func (l Link) String() string {
	return fmt.Sprintf("Cluster %d - Cluster %d", l.A, l.B)
}
