package delay

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/metrics"
	"github.com/clusterbed/clusterbed/testbed/registry"
	"github.com/clusterbed/clusterbed/testbed/shaping"
	"github.com/clusterbed/clusterbed/testbed/trace"
)

// Applier drives the shaping backend and owns the AppliedState.
//
// Each link is shaped on its lower-id endpoint towards the higher-id
// endpoint's gateway IP. The reverse direction is never configured.
// Calls are sequential; a failure on one link never stops the batch.
type Applier struct {
	registry *registry.Registry
	backend  shaping.Backend
	state    *AppliedState
	recorder *metrics.Recorder // nil disables metrics
	log      *logrus.Entry
}

// NewApplier creates an applier with empty state.
func NewApplier(reg *registry.Registry, backend shaping.Backend, recorder *metrics.Recorder, log *logrus.Entry) *Applier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Applier{
		registry: reg,
		backend:  backend,
		state:    NewAppliedState(),
		recorder: recorder,
		log:      log,
	}
}

// State returns the live state. Callers must not retain it across Apply/Remove
// if they need a stable view; use Snapshot.
func (a *Applier) State() *AppliedState {
	return a.state
}

// Apply installs every planned delay in order. Links that fail are recorded
// and counted; their previous state entry is left as it was. If ctx is
// cancelled the remaining links are recorded as skipped.
func (a *Applier) Apply(ctx context.Context, plan Assignment, ot *trace.OperationTrace) *trace.Summary {
	for _, ld := range plan {
		record := trace.ApplyRecord{Link: ld.Link, DelayMs: ld.DelayMs}
		if err := ctx.Err(); err != nil {
			record.Stage, record.Err = trace.StageCancelled, err.Error()
		} else if stage, err := a.applyLink(ctx, ld); err != nil {
			record.Stage, record.Err = stage, err.Error()
		} else {
			record.OK = true
			a.state.set(ld.Link, ld.DelayMs)
		}
		ot.RecordApply(record)

		entry := a.log.WithField("link", ld.Link.String())
		if record.OK {
			entry.Infof("delay %dms applied", ld.DelayMs)
			a.recorder.RecordLinkApply(metrics.ResultSuccess, "")
		} else {
			entry.Warnf("apply failed at %s: %s", record.Stage, record.Err)
			a.recorder.RecordLinkApply(metrics.ResultFailure, string(record.Stage))
		}
	}
	a.recorder.SetAppliedState(a.state.Snapshot())
	return trace.SummarizeApply(ot)
}

func (a *Applier) applyLink(ctx context.Context, ld LinkDelay) (trace.Stage, error) {
	src, dst := ld.Link.Source(), ld.Link.Destination()
	iface, err := a.registry.Interface(src)
	if err != nil {
		return trace.StageResolve, err
	}
	destIP, err := a.registry.IP(dst)
	if err != nil {
		return trace.StageResolve, err
	}
	target := shaping.Target{Node: src, Interface: iface}
	rule := shaping.DelayRule{Destination: dst, DestIP: destIP, DelayMs: ld.DelayMs}

	if err := a.timed("available", func() error { return a.backend.Available(ctx, src) }); err != nil {
		return trace.StageAvailable, err
	}

	var status shaping.RootStatus
	if err := a.timed("query_root", func() (err error) {
		status, err = a.backend.QueryRoot(ctx, target)
		return err
	}); err != nil {
		return trace.StageRoot, err
	}
	if status.Kind != shaping.RootClassful {
		if status.Kind == shaping.RootOther {
			// A foreign root may own handle 1: under another kind, which
			// tc refuses to replace in place.
			a.log.WithField("node", int(src)).Warnf("replacing foreign root %q on %s", status.Detail, iface)
			err := a.timed("delete_root", func() error { return a.backend.DeleteRoot(ctx, target) })
			if err != nil && !errors.Is(err, testbed.ErrNothingToRemove) {
				return trace.StageRoot, err
			}
		}
		if err := a.timed("ensure_root", func() error { return a.backend.EnsureRoot(ctx, target) }); err != nil {
			return trace.StageRoot, err
		}
	}

	if err := a.timed("replace_delay", func() error { return a.backend.ReplaceDelay(ctx, target, rule) }); err != nil {
		return trace.StageDelay, err
	}

	// Reinstall the classifier so repeated applies keep exactly one per destination.
	if err := a.timed("delete_classifier", func() error { return a.backend.DeleteClassifier(ctx, target, rule) }); err != nil {
		return trace.StageClassifier, err
	}
	if err := a.timed("add_classifier", func() error { return a.backend.AddClassifier(ctx, target, rule) }); err != nil {
		return trace.StageClassifier, err
	}
	return "", nil
}

// Remove clears shaping from every registered node that has an interface, in
// ascending id order. Nodes with nothing installed count as successes. The
// state is cleared only when no node failed.
func (a *Applier) Remove(ctx context.Context, ot *trace.OperationTrace) *trace.Summary {
	for _, id := range a.registry.IDs() {
		iface, err := a.registry.Interface(id)
		if err != nil {
			a.log.WithField("node", int(id)).Debugf("skipped: %v", err)
			continue
		}
		record := trace.RemoveRecord{Node: id}
		if err := ctx.Err(); err != nil {
			record.Stage, record.Err = trace.StageCancelled, err.Error()
		} else {
			noop, stage, err := a.removeNode(ctx, shaping.Target{Node: id, Interface: iface})
			if err != nil {
				record.Stage, record.Err = stage, err.Error()
			} else {
				record.OK, record.NoOp = true, noop
			}
		}
		ot.RecordRemove(record)

		entry := a.log.WithField("node", int(id))
		switch {
		case record.NoOp:
			entry.Debug("nothing to remove")
			a.recorder.RecordNodeRemoval(metrics.ResultNoOp)
		case record.OK:
			entry.Info("shaping removed")
			a.recorder.RecordNodeRemoval(metrics.ResultSuccess)
		default:
			entry.Warnf("remove failed at %s: %s", record.Stage, record.Err)
			a.recorder.RecordNodeRemoval(metrics.ResultFailure)
		}
	}

	summary := trace.SummarizeRemove(ot)
	if summary.OK() {
		a.state.clear()
	}
	a.recorder.SetAppliedState(a.state.Snapshot())
	return summary
}

func (a *Applier) removeNode(ctx context.Context, target shaping.Target) (noop bool, stage trace.Stage, err error) {
	if err := a.timed("available", func() error { return a.backend.Available(ctx, target.Node) }); err != nil {
		return false, trace.StageAvailable, err
	}
	var status shaping.RootStatus
	if err := a.timed("query_root", func() (err error) {
		status, err = a.backend.QueryRoot(ctx, target)
		return err
	}); err != nil {
		return false, trace.StageRoot, err
	}
	if !status.Present {
		return true, "", nil
	}
	err = a.timed("delete_root", func() error { return a.backend.DeleteRoot(ctx, target) })
	if errors.Is(err, testbed.ErrNothingToRemove) {
		return true, "", nil
	}
	if err != nil {
		return false, trace.StageRoot, err
	}
	return false, "", nil
}

func (a *Applier) timed(op string, call func() error) error {
	start := time.Now()
	err := call()
	a.recorder.ObserveBackendCall(op, time.Since(start).Seconds())
	return err
}
