package shaping

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clusterbed/clusterbed/testbed"
)

// Runtime selects where shaping commands run.
type Runtime string

const (
	// RuntimeDocker runs commands inside each gateway container.
	RuntimeDocker Runtime = "docker"
	// RuntimeLocal runs commands on this host. Useful when every gateway
	// interface is visible locally, e.g. in a single network namespace.
	RuntimeLocal Runtime = "local"
)

// DefaultContainerFormat names gateway containers from the cluster id.
const DefaultContainerFormat = "Cluster%d_LB"

// ParseRuntime validates a runtime name.
func ParseRuntime(s string) (Runtime, error) {
	switch Runtime(strings.ToLower(s)) {
	case RuntimeDocker:
		return RuntimeDocker, nil
	case RuntimeLocal:
		return RuntimeLocal, nil
	}
	return "", fmt.Errorf("unknown runtime %q; valid: docker, local", s)
}

// Runner executes one command on behalf of a cluster gateway and returns its
// standard output. A non-zero exit is a *testbed.CommandExecutionError.
type Runner interface {
	Run(ctx context.Context, node testbed.ClusterID, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Runtime         Runtime
	ContainerFormat string // used with RuntimeDocker; DefaultContainerFormat when empty
}

// Container returns the container name for node.
func (r *ExecRunner) Container(node testbed.ClusterID) string {
	format := r.ContainerFormat
	if format == "" {
		format = DefaultContainerFormat
	}
	return fmt.Sprintf(format, int(node))
}

// Command returns the full argv for running name+args for node.
func (r *ExecRunner) Command(node testbed.ClusterID, name string, args ...string) []string {
	argv := make([]string, 0, len(args)+5)
	if r.Runtime != RuntimeLocal {
		argv = append(argv, "docker", "exec", "--privileged", r.Container(node))
	}
	argv = append(argv, name)
	return append(argv, args...)
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, node testbed.ClusterID, name string, args ...string) ([]byte, error) {
	argv := r.Command(node, name, args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.WithFields(logrus.Fields{"node": int(node)}).Debugf("exec: %s", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &testbed.CommandExecutionError{
			Node:   node,
			Args:   argv,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}
