package delay

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/matrix"
	"github.com/clusterbed/clusterbed/testbed/metrics"
	"github.com/clusterbed/clusterbed/testbed/registry"
	"github.com/clusterbed/clusterbed/testbed/selection"
	"github.com/clusterbed/clusterbed/testbed/shaping"
	"github.com/clusterbed/clusterbed/testbed/topology"
	"github.com/clusterbed/clusterbed/testbed/trace"
)

// Options configures a Session.
type Options struct {
	Seed     int64
	RunID    string
	Recorder *metrics.Recorder // optional
}

// OutcomeKind says what Execute did.
type OutcomeKind int

const (
	OutcomeNoOp OutcomeKind = iota
	OutcomeApplied
	OutcomeRemoved
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeRemoved:
		return "removed"
	default:
		return "no-op"
	}
}

// Outcome is the result of one executed command.
type Outcome struct {
	Kind       OutcomeKind
	Assignment Assignment // set for OutcomeApplied
	Summary    *trace.Summary
	Trace      *trace.OperationTrace
}

// Session is one orchestration run over a fixed registry and adjacency.
type Session struct {
	registry *registry.Registry
	document topology.AdjacencyDocument
	catalog  *testbed.LinkCatalog
	planner  *Planner
	applier  *Applier
	runID    string
	log      *logrus.Entry
}

// NewSession validates the adjacency document and builds catalog, planner
// and applier in that order.
func NewSession(reg *registry.Registry, doc topology.AdjacencyDocument, backend shaping.Backend, opts Options) (*Session, error) {
	adjacency, err := doc.Adjacency()
	if err != nil {
		return nil, fmt.Errorf("loading adjacency: %w", err)
	}
	log := logrus.WithField("run", opts.RunID)
	catalog := testbed.NewLinkCatalog(adjacency)
	rng := testbed.NewPartitionedRNG(testbed.NewRunKey(opts.Seed))

	s := &Session{
		registry: reg,
		document: doc,
		catalog:  catalog,
		planner:  NewPlanner(catalog, rng),
		applier:  NewApplier(reg, backend, opts.Recorder, log),
		runID:    opts.RunID,
		log:      log,
	}
	log.Debugf("session ready: %d clusters, %d links", len(catalog.ClusterIDs()), catalog.Len())
	return s, nil
}

// Catalog returns the link catalog.
func (s *Session) Catalog() *testbed.LinkCatalog { return s.catalog }

// Planner returns the planner, for callers that confirm a plan before applying it.
func (s *Session) Planner() *Planner { return s.planner }

// State returns the applied delay state.
func (s *Session) State() *AppliedState { return s.applier.State() }

// Execute runs one command.
func (s *Session) Execute(ctx context.Context, cmd selection.Command) (Outcome, error) {
	s.log.Debugf("executing %s", cmd.Name())
	switch cmd.(type) {
	case selection.NoOp:
		return Outcome{Kind: OutcomeNoOp}, nil
	case selection.Remove:
		return s.Remove(ctx), nil
	}
	plan, err := s.planner.Plan(cmd)
	if err != nil {
		return Outcome{}, err
	}
	return s.Apply(ctx, plan), nil
}

// Apply applies an already planned assignment.
func (s *Session) Apply(ctx context.Context, plan Assignment) Outcome {
	ot := trace.NewOperationTrace(s.runID)
	summary := s.applier.Apply(ctx, plan, ot)
	return Outcome{Kind: OutcomeApplied, Assignment: plan, Summary: summary, Trace: ot}
}

// Remove clears shaping from every node.
func (s *Session) Remove(ctx context.Context) Outcome {
	ot := trace.NewOperationTrace(s.runID)
	summary := s.applier.Remove(ctx, ot)
	return Outcome{Kind: OutcomeRemoved, Summary: summary, Trace: ot}
}

// Matrix returns a renderer over the current applied state.
func (s *Session) Matrix() *matrix.Renderer {
	return matrix.New(s.catalog, s.applier.State().Snapshot())
}

// DescribeLinks lists the catalog with gateway IPs for prompts.
func (s *Session) DescribeLinks() []string {
	return s.catalog.Describe(s.registry.Resolve)
}
