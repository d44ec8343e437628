package testbed

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidModelError is returned for an unknown topology model selector.
type InvalidModelError struct {
	Model string
	Valid []string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("unknown topology model %q; valid: %s", e.Model, strings.Join(e.Valid, ", "))
}

// SchemaError reports malformed or missing topology/adjacency data.
type SchemaError struct {
	Field  string // document key or path the problem was found at
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
}

// SelectionError reports a malformed link selection or batch command.
type SelectionError struct {
	Input  string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection %q: %s", e.Input, e.Reason)
}

// DelayRangeError reports a malformed delay value or range.
type DelayRangeError struct {
	Input  string
	Reason string
}

func (e *DelayRangeError) Error() string {
	return fmt.Sprintf("invalid delay %q: %s", e.Input, e.Reason)
}

// ResourceNotFoundError reports a missing interface or IP for a cluster.
type ResourceNotFoundError struct {
	Cluster  ClusterID
	Resource string // "interface", "ip" or "cluster"
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s for cluster %d not found", e.Resource, e.Cluster)
}

// BackendUnavailableError reports that the shaping capability is absent on a node.
type BackendUnavailableError struct {
	Node   ClusterID
	Detail string
}

func (e *BackendUnavailableError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("shaping backend unavailable on cluster %d", e.Node)
	}
	return fmt.Sprintf("shaping backend unavailable on cluster %d: %s", e.Node, e.Detail)
}

// CommandExecutionError reports a remote shaping call that exited non-zero.
type CommandExecutionError struct {
	Node   ClusterID
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandExecutionError) Error() string {
	msg := fmt.Sprintf("cluster %d: %s failed: %v", e.Node, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " output=" + s
	}
	return msg
}

func (e *CommandExecutionError) Unwrap() error {
	return e.Err
}

// ErrNothingToRemove marks a removal that found no shaping state. Callers
// treat it as success.
var ErrNothingToRemove = errors.New("nothing to remove")
