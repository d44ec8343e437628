// Package testbed provides the core model of the multi-cluster network testbed.
//
// # Reading Guide
//
// Start with these files:
//   - cluster.go: ClusterID, the value type used for every cluster identity
//   - link.go: Link and its canonical (min, max) form
//   - catalog.go: LinkCatalog, the positional link index that user selections address
//   - errors.go: the error taxonomy shared by every sub-package
//
// # Architecture
//
// The testbed package defines identities and shared types; behaviour lives in
// sub-packages:
//   - testbed/topology/: graph generation and the adjacency document
//   - testbed/selection/: link-subset, delay-value and batch command grammars
//   - testbed/delay/: planning, applying and removing link delay (Session, Planner, Applier)
//   - testbed/shaping/: the traffic-shaping backend interface and its tc implementation
//   - testbed/registry/: cluster id to interface/IP resolution
//   - testbed/matrix/: adjacency/delay matrix rendering
//   - testbed/trace/: per-link and per-node outcome records
//   - testbed/metrics/: Prometheus collectors for apply/remove outcomes
//
// Delay is always configured in one direction per link: from the lower cluster
// id to the higher one.
package testbed
