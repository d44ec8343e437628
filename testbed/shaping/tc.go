package shaping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clusterbed/clusterbed/testbed"
)

const (
	rootHandle = "1:"
	rootKind   = "htb"
	// classBase offsets destination ids so minors never collide with the root.
	classBase = 0x10
	// classRate is high enough that htb itself never limits throughput.
	classRate = "10gbit"
)

// nothingToRemove lists tc stderr fragments that mean the object was absent.
var nothingToRemove = []string{
	"No such file or directory",
	"Cannot delete qdisc with handle of zero",
	"Cannot find specified filter chain",
	"Filter with specified priority/protocol not found",
}

// TC drives Linux tc: an htb root with one class, one netem child and one
// u32 filter per destination cluster.
type TC struct {
	runner Runner
}

// NewTC returns a tc backend that runs commands through runner.
func NewTC(runner Runner) *TC {
	return &TC{runner: runner}
}

// ClassMinor is the htb class minor (and netem major) used for destination d.
func ClassMinor(d testbed.ClusterID) string {
	return strconv.FormatInt(int64(d)+classBase, 16)
}

// FilterPref is the u32 filter preference used for destination d.
func FilterPref(d testbed.ClusterID) string {
	return strconv.Itoa(int(d) + classBase)
}

func (t *TC) tc(ctx context.Context, node testbed.ClusterID, args ...string) ([]byte, error) {
	return t.runner.Run(ctx, node, "tc", args...)
}

// Available checks that tc can be run on node.
func (t *TC) Available(ctx context.Context, node testbed.ClusterID) error {
	if _, err := t.tc(ctx, node, "-V"); err != nil {
		detail := err.Error()
		var execErr *testbed.CommandExecutionError
		if errors.As(err, &execErr) && strings.TrimSpace(execErr.Stderr) != "" {
			detail = strings.TrimSpace(execErr.Stderr)
		}
		return &testbed.BackendUnavailableError{Node: node, Detail: detail}
	}
	return nil
}

// qdisc is the subset of `tc -j qdisc show` output we read.
type qdisc struct {
	Kind   string `json:"kind"`
	Handle string `json:"handle"`
	Root   bool   `json:"root"`
	Parent string `json:"parent"`
}

// defaultKinds are root disciplines the kernel installs on its own.
var defaultKinds = map[string]bool{
	"noqueue":    true,
	"pfifo_fast": true,
	"fq_codel":   true,
	"mq":         true,
	"fq":         true,
}

// QueryRoot reads the root discipline from tc's JSON output.
func (t *TC) QueryRoot(ctx context.Context, target Target) (RootStatus, error) {
	out, err := t.tc(ctx, target.Node, "-j", "qdisc", "show", "dev", target.Interface)
	if err != nil {
		return RootStatus{}, err
	}
	return ParseRootStatus(out)
}

// ParseRootStatus classifies the root entry of `tc -j qdisc show` output.
func ParseRootStatus(out []byte) (RootStatus, error) {
	var qdiscs []qdisc
	if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &qdiscs); err != nil {
			return RootStatus{}, fmt.Errorf("decoding tc qdisc output: %w", err)
		}
	}
	for _, q := range qdiscs {
		if !q.Root {
			continue
		}
		switch {
		case q.Kind == rootKind && q.Handle == rootHandle:
			return RootStatus{Present: true, Kind: RootClassful, Detail: q.Kind}, nil
		case defaultKinds[q.Kind] && (q.Handle == "" || q.Handle == "0:"):
			return RootStatus{Kind: RootNone, Detail: q.Kind}, nil
		default:
			return RootStatus{Present: true, Kind: RootOther, Detail: q.Kind}, nil
		}
	}
	return RootStatus{Kind: RootNone}, nil
}

// EnsureRoot installs the htb root. Unclassified traffic bypasses shaping.
func (t *TC) EnsureRoot(ctx context.Context, target Target) error {
	_, err := t.tc(ctx, target.Node, "qdisc", "replace", "dev", target.Interface, "root", "handle", rootHandle, rootKind)
	return err
}

// ReplaceDelay installs or replaces the class and netem child for rule.Destination.
func (t *TC) ReplaceDelay(ctx context.Context, target Target, rule DelayRule) error {
	minor := ClassMinor(rule.Destination)
	classID := rootHandle + minor
	if _, err := t.tc(ctx, target.Node, "class", "replace", "dev", target.Interface,
		"parent", rootHandle, "classid", classID, rootKind, "rate", classRate); err != nil {
		return err
	}
	_, err := t.tc(ctx, target.Node, "qdisc", "replace", "dev", target.Interface,
		"parent", classID, "handle", minor+":", "netem", "delay", fmt.Sprintf("%dms", rule.DelayMs))
	return err
}

// DeleteClassifier removes the u32 filter for rule.Destination if present.
func (t *TC) DeleteClassifier(ctx context.Context, target Target, rule DelayRule) error {
	_, err := t.tc(ctx, target.Node, "filter", "del", "dev", target.Interface,
		"parent", rootHandle, "protocol", "ip", "pref", FilterPref(rule.Destination))
	if err != nil && IsNothingToRemove(err) {
		return nil
	}
	return err
}

// AddClassifier steers traffic for rule.DestIP into the destination's class.
func (t *TC) AddClassifier(ctx context.Context, target Target, rule DelayRule) error {
	_, err := t.tc(ctx, target.Node, "filter", "add", "dev", target.Interface,
		"parent", rootHandle, "protocol", "ip", "pref", FilterPref(rule.Destination),
		"u32", "match", "ip", "dst", rule.DestIP+"/32", "flowid", rootHandle+ClassMinor(rule.Destination))
	return err
}

// DeleteRoot removes the root discipline, cascading to classes, netem
// children and filters.
func (t *TC) DeleteRoot(ctx context.Context, target Target) error {
	_, err := t.tc(ctx, target.Node, "qdisc", "del", "dev", target.Interface, "root")
	if err != nil && IsNothingToRemove(err) {
		return fmt.Errorf("%s on cluster %d: %w", target.Interface, target.Node, testbed.ErrNothingToRemove)
	}
	return err
}

// IsNothingToRemove reports whether err is a tc failure caused by the object
// being absent.
func IsNothingToRemove(err error) bool {
	if errors.Is(err, testbed.ErrNothingToRemove) {
		return true
	}
	var execErr *testbed.CommandExecutionError
	if !errors.As(err, &execErr) {
		return false
	}
	for _, fragment := range nothingToRemove {
		if strings.Contains(execErr.Stderr, fragment) {
			return true
		}
	}
	return false
}
