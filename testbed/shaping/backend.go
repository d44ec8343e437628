// Package shaping defines the traffic-shaping capability the delay applier
// drives, and a tc implementation of it.
package shaping

import (
	"context"

	"github.com/clusterbed/clusterbed/testbed"
)

// Target addresses one interface on one cluster gateway.
type Target struct {
	Node      testbed.ClusterID
	Interface string
}

// DelayRule delays traffic leaving a Target towards Destination.
type DelayRule struct {
	Destination testbed.ClusterID
	DestIP      string
	DelayMs     int
}

// RootKind classifies the root queueing discipline of an interface.
type RootKind int

const (
	// RootNone means the kernel default discipline is in place.
	RootNone RootKind = iota
	// RootClassful means our classful root is installed.
	RootClassful
	// RootOther means some other root discipline is installed.
	RootOther
)

func (k RootKind) String() string {
	switch k {
	case RootClassful:
		return "classful"
	case RootOther:
		return "other"
	default:
		return "none"
	}
}

// RootStatus is the typed result of a root discipline query.
type RootStatus struct {
	Present bool
	Kind    RootKind
	Detail  string // kind reported by the backend, e.g. "htb" or "noqueue"
}

// Backend executes shaping operations on cluster gateways. Every call is
// synchronous and touches exactly one Target.
type Backend interface {
	// Available fails with *testbed.BackendUnavailableError when node cannot shape traffic.
	Available(ctx context.Context, node testbed.ClusterID) error
	QueryRoot(ctx context.Context, target Target) (RootStatus, error)
	// EnsureRoot installs the classful root, replacing whatever root is there.
	EnsureRoot(ctx context.Context, target Target) error
	// ReplaceDelay installs or replaces the delay rule for rule.Destination. Rules never stack.
	ReplaceDelay(ctx context.Context, target Target, rule DelayRule) error
	// DeleteClassifier removes the classifier steering traffic to rule.Destination.
	// A missing classifier is not an error.
	DeleteClassifier(ctx context.Context, target Target, rule DelayRule) error
	AddClassifier(ctx context.Context, target Target, rule DelayRule) error
	// DeleteRoot removes the root and everything below it. Returns
	// testbed.ErrNothingToRemove when there was nothing installed.
	DeleteRoot(ctx context.Context, target Target) error
}
