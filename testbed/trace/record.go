// Package trace records per-link and per-node outcomes of delay operations.
// It stores pure data and has no dependency on the shaping backend.
package trace

import "github.com/clusterbed/clusterbed/testbed"

// Stage names the step a link failed at.
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageAvailable  Stage = "available"
	StageRoot       Stage = "root"
	StageDelay      Stage = "delay"
	StageClassifier Stage = "classifier"
	StageCancelled  Stage = "cancelled"
)

// ApplyRecord captures the outcome of shaping one link.
type ApplyRecord struct {
	Link    testbed.Link
	DelayMs int
	OK      bool
	Stage   Stage  // empty on success
	Err     string // empty on success
}

// RemoveRecord captures the outcome of clearing one node.
type RemoveRecord struct {
	Node  testbed.ClusterID
	OK    bool
	NoOp  bool // nothing was installed
	Stage Stage
	Err   string
}
