package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clusterbed/clusterbed/testbed/delay"
	"github.com/clusterbed/clusterbed/testbed/metrics"
	"github.com/clusterbed/clusterbed/testbed/registry"
	"github.com/clusterbed/clusterbed/testbed/selection"
	"github.com/clusterbed/clusterbed/testbed/shaping"
	"github.com/clusterbed/clusterbed/testbed/topology"
)

var (
	adjacencyPath   string // Adjacency document produced by `clusterbed topology`
	registryPath    string // Optional registry file overriding interfaces/IPs
	interfaceName   string // Default gateway interface
	runtimeName     string // Where tc runs: docker or local
	containerFormat string // Gateway container name format
	delaySeed       int64  // Seed for random delay draws
	metricsFile     string // Optional Prometheus textfile output
)

// errPartialFailure makes the CLI exit non-zero after reporting failed links or nodes.
var errPartialFailure = errors.New("some operations failed")

// usageError marks invalid command-line arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// delayCmd applies, removes or inspects per-link delay on the live testbed.
var delayCmd = &cobra.Command{
	Use:   "delay [mode] [args...]",
	Short: "Apply or remove per-link delay between clusters",
	Long: `Apply or remove one-way delay on inter-cluster links. Without a mode the
command runs interactively.

Modes:
  0 <delay>                            same delay (N or min:max) on every link
  1 <links> <delay>                    delay on selected links, e.g. 1 1,3-5 20
  1 <links>=<delay> other=<delay>      selected links plus a delay for all others
  2                                    remove all delay settings
  3                                    show the topology and exit

Delay is configured from the lower cluster id to the higher one only.`,
	Example: `  clusterbed delay 0 20
  clusterbed delay 0 10:100 --seed 7
  clusterbed delay 1 3=10 other=1:5
  clusterbed delay 2`,
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := delayOptionsFromFlags(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = runDelay(ctx, opts, args, os.Stdin, cmd.OutOrStdout())
		var usage *usageError
		switch {
		case err == nil:
		case errors.Is(err, errInterrupted):
			fmt.Fprintln(cmd.OutOrStdout(), "\n\nInterrupted.")
		case errors.As(err, &usage):
			_ = cmd.Usage()
			logrus.Fatalf("Invalid arguments: %v", err)
		case errors.Is(err, errPartialFailure):
			stop()
			os.Exit(1)
		default:
			logrus.Fatalf("%v", err)
		}
	},
}

// delayOptions is the resolved configuration of one delay invocation.
type delayOptions struct {
	Adjacency       string
	Registry        string
	Interface       string
	Runtime         shaping.Runtime
	ContainerFormat string
	Seed            int64
	MetricsFile     string
	RunID           string
	Color           bool            // highlight delayed matrix cells
	Backend         shaping.Backend // nil builds the tc backend
}

func delayOptionsFromFlags(cmd *cobra.Command) (delayOptions, error) {
	d := cfg.Delay
	opts := delayOptions{
		Adjacency:       resolveString(cmd, "adjacency", d.Adjacency),
		Registry:        resolveString(cmd, "registry", d.Registry),
		Interface:       resolveString(cmd, "interface", d.Interface),
		ContainerFormat: resolveString(cmd, "container-format", d.ContainerFormat),
		MetricsFile:     resolveString(cmd, "metrics-file", d.MetricsFile),
		RunID:           uuid.NewString(),
		Color:           !color.NoColor,
	}

	rt, err := shaping.ParseRuntime(resolveString(cmd, "runtime", d.Runtime))
	if err != nil {
		return opts, err
	}
	opts.Runtime = rt

	seed, ok, err := resolveInt64(cmd, "seed", d.Seed)
	if err != nil {
		return opts, err
	}
	if !ok {
		seed = time.Now().UnixNano()
	}
	opts.Seed = seed
	return opts, nil
}

func (o delayOptions) backend() shaping.Backend {
	if o.Backend != nil {
		return o.Backend
	}
	return shaping.NewTC(&shaping.ExecRunner{Runtime: o.Runtime, ContainerFormat: o.ContainerFormat})
}

func (o delayOptions) registry(doc topology.AdjacencyDocument) (*registry.Registry, error) {
	reg := registry.FromDocument(doc, o.Interface)
	if o.Registry == "" {
		return reg, nil
	}
	overlay, err := registry.Load(o.Registry)
	if err != nil {
		return nil, err
	}
	return reg.Merge(overlay), nil
}

// runDelay drives one delay invocation. Arguments are fully validated before
// anything is shaped.
func runDelay(ctx context.Context, opts delayOptions, args []string, in io.Reader, w io.Writer) error {
	log := logrus.WithField("run", opts.RunID)
	log.Infof("delay run started, seed=%d", opts.Seed)

	doc, err := topology.LoadDocument(opts.Adjacency)
	if err != nil {
		return err
	}
	reg, err := opts.registry(doc)
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder()
	session, err := delay.NewSession(reg, doc, opts.backend(), delay.Options{Seed: opts.Seed, RunID: opts.RunID, Recorder: recorder})
	if err != nil {
		return err
	}

	var command selection.Command
	if len(args) > 0 {
		mode, err := selection.ParseMode(args[0])
		if err != nil {
			return &usageError{err}
		}
		command, err = selection.ParseBatch(mode, args[1:], session.Catalog().Len())
		if err != nil {
			return &usageError{err}
		}
	}

	printNetwork(w, reg)
	fmt.Fprintf(w, "\n=== Adjacency Cluster Information (Matrix Format: Connection Status) ===\n")
	if err := renderMatrix(w, session, opts.Color); err != nil {
		return err
	}

	var plan delay.Assignment
	if command == nil {
		picked, err := newPrompter(ctx, in, w).chooseInteractively(session)
		if err != nil {
			return err
		}
		plan, command = picked.plan, picked.command
	}

	switch command.(type) {
	case nil, selection.Remove, selection.NoOp:
	default:
		if plan, err = session.Planner().Plan(command); err != nil {
			return err
		}
	}

	var outcome delay.Outcome
	if plan != nil {
		printPlan(w, plan)
		fmt.Fprintf(w, "\n=== Applying delay settings ===\nNote: Delay is set in one direction only\n")
		outcome = session.Apply(ctx, plan)
	} else {
		if _, isRemove := command.(selection.Remove); isRemove {
			fmt.Fprintf(w, "\n=== Removing delay settings ===\n")
		}
		if outcome, err = session.Execute(ctx, command); err != nil {
			return err
		}
	}

	switch outcome.Kind {
	case delay.OutcomeNoOp:
		return writeMetrics(opts.MetricsFile, recorder)
	case delay.OutcomeRemoved:
		printFailures(w, outcome.Summary.Failures)
		fmt.Fprintf(w, "\n%s\n", outcome.Summary)
		fmt.Fprintf(w, "\n=== Removal Complete ===\n")
	case delay.OutcomeApplied:
		printFailures(w, outcome.Summary.Failures)
		fmt.Fprintf(w, "\n%s\n", outcome.Summary)
		if mean, err := stats.Mean(outcome.Summary.Delays); err == nil {
			fmt.Fprintf(w, "Average applied delay: %.1fms\n", mean)
		}
		fmt.Fprintf(w, "\n=== Adjacency Cluster Information (Matrix Format: After Settings) ===\n")
		if err := renderMatrix(w, session, opts.Color); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n=== Configuration Complete ===\n")
	}

	if err := writeMetrics(opts.MetricsFile, recorder); err != nil {
		return err
	}
	if !outcome.Summary.OK() {
		return errPartialFailure
	}
	return nil
}

func renderMatrix(w io.Writer, session *delay.Session, colorize bool) error {
	m := session.Matrix()
	m.Colorize = colorize
	return m.Render(w)
}

func printNetwork(w io.Writer, reg *registry.Registry) {
	fmt.Fprintf(w, "\n=== Inter-cluster network information ===\n")
	for _, node := range reg.Nodes() {
		ip, iface := node.GatewayIP, node.InterfaceName
		if ip == "" {
			ip = "Unknown"
		}
		if iface == "" {
			iface = "Unknown"
		}
		fmt.Fprintf(w, "%d: %s (%s)\n", int(node.ID), ip, iface)
	}
}

// printPlan summarizes a planned assignment.
func printPlan(w io.Writer, plan delay.Assignment) {
	fmt.Fprintf(w, "\nConfiguration:\n")
	fmt.Fprintf(w, "  Number of target links: %d\n", len(plan))
	if len(plan) == 0 {
		return
	}
	delays := plan.Delays()
	lo, _ := stats.Min(delays)
	hi, _ := stats.Max(delays)
	if lo == hi {
		fmt.Fprintf(w, "  Delay time: %.0fms (Same for all links)\n", lo)
		return
	}
	mean, _ := stats.Mean(delays)
	median, _ := stats.Median(delays)
	fmt.Fprintf(w, "  Delay time: %.0fms - %.0fms (Varies by link)\n", lo, hi)
	fmt.Fprintf(w, "  Average delay: %.1fms, median %.1fms\n", mean, median)
}

func printFailures(w io.Writer, failures []string) {
	for _, f := range failures {
		fmt.Fprintf(w, "  Error: %s\n", f)
	}
}

func writeMetrics(path string, recorder *metrics.Recorder) error {
	if path == "" {
		return nil
	}
	return recorder.WriteTextfile(path)
}

func init() {
	delayCmd.Flags().StringVar(&adjacencyPath, "adjacency", "json/adjacentList.json", "Adjacency document produced by the topology command")
	delayCmd.Flags().StringVar(&registryPath, "registry", "", "YAML registry overriding gateway interfaces and IPs")
	delayCmd.Flags().StringVar(&interfaceName, "interface", "eth0", "Gateway interface used when the registry does not name one")
	delayCmd.Flags().StringVar(&runtimeName, "runtime", string(shaping.RuntimeDocker), "Where tc runs: docker or local")
	delayCmd.Flags().StringVar(&containerFormat, "container-format", shaping.DefaultContainerFormat, "Gateway container name format; %d is the cluster id")
	delayCmd.Flags().Int64Var(&delaySeed, "seed", 0, "Seed for random delay draws (default: time-based)")
	delayCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to a textfile")
}
