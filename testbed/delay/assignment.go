// Package delay plans and applies per-link latency across the testbed.
//
// A Session ties the pieces together in a fixed order: the registry and the
// adjacency document build a LinkCatalog, a Planner turns commands into an
// Assignment, and an Applier drives the shaping backend and owns the
// AppliedState.
package delay

import "github.com/clusterbed/clusterbed/testbed"

// LinkDelay is one planned link delay.
type LinkDelay struct {
	Link    testbed.Link
	DelayMs int
}

// Assignment is an ordered set of planned link delays, in catalog order.
// A link appears at most once.
type Assignment []LinkDelay

// Get returns the planned delay for l.
func (a Assignment) Get(l testbed.Link) (int, bool) {
	for _, ld := range a {
		if ld.Link == l {
			return ld.DelayMs, true
		}
	}
	return 0, false
}

// Links returns the planned links in order.
func (a Assignment) Links() []testbed.Link {
	out := make([]testbed.Link, len(a))
	for i, ld := range a {
		out[i] = ld.Link
	}
	return out
}

// Delays returns the planned delays in order, as float64 for statistics.
func (a Assignment) Delays() []float64 {
	out := make([]float64, len(a))
	for i, ld := range a {
		out[i] = float64(ld.DelayMs)
	}
	return out
}

// AppliedState is the delay currently live on each link, as far as this
// process knows. Only the Applier mutates it.
type AppliedState struct {
	delays map[testbed.Link]int
}

// NewAppliedState returns an empty state.
func NewAppliedState() *AppliedState {
	return &AppliedState{delays: make(map[testbed.Link]int)}
}

// Get returns the applied delay for the pair (x, y) in either orientation.
func (s *AppliedState) Get(x, y testbed.ClusterID) (int, bool) {
	if x == y {
		return 0, false
	}
	ms, ok := s.delays[testbed.NewLink(x, y)]
	return ms, ok
}

// Len returns the number of links with applied delay.
func (s *AppliedState) Len() int {
	return len(s.delays)
}

// Snapshot returns a copy of the state.
func (s *AppliedState) Snapshot() map[testbed.Link]int {
	out := make(map[testbed.Link]int, len(s.delays))
	for l, ms := range s.delays {
		out[l] = ms
	}
	return out
}

func (s *AppliedState) set(l testbed.Link, ms int) {
	s.delays[l] = ms
}

func (s *AppliedState) clear() {
	s.delays = make(map[testbed.Link]int)
}
