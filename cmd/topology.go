package cmd

import (
	"fmt"
	"io"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clusterbed/clusterbed/testbed/topology"
)

var (
	topologyInput  string // Input document with clusters and gateway IPs
	topologyOutput string // Adjacency document to write
	serviceLimits  []int  // Per-cluster cap on exported internal services
)

// topologyCmd generates an inter-cluster topology and writes the adjacency document.
var topologyCmd = &cobra.Command{
	Use:   "topology <random|preferential-attachment|full-mesh>",
	Short: "Generate an inter-cluster topology and export its adjacency document",
	Long: `Generate an undirected topology over the clusters of the input document.

Models (aliases in brackets):
  random [r]                    Erdos-Renyi, p=0.3, seed 3
  preferential-attachment [ba]  Barabasi-Albert, m=3, seed 0
  full-mesh [f]                 complete graph

Identical inputs always produce the same topology.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Validate the model before touching any file.
		model, err := topology.ParseModel(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		input := resolveString(cmd, "input", cfg.Topology.Input)
		output := resolveString(cmd, "output", cfg.Topology.Output)
		limits, err := resolveInts(cmd, "service-limits", cfg.Topology.ServiceLimits)
		if err != nil {
			logrus.Fatalf("Invalid service limits: %v", err)
		}

		if err := runTopology(model, input, output, limits, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Topology generation failed: %v", err)
		}
	},
}

// runTopology loads the input, generates the graph, and writes the adjacency document.
func runTopology(model topology.Model, input, output string, limits []int, w io.Writer) error {
	src, err := topology.LoadSource(input)
	if err != nil {
		return err
	}
	logrus.Infof("Loaded %d clusters from %s", src.Len(), input)

	g, err := topology.Generate(src.Len(), model)
	if err != nil {
		return err
	}
	doc, err := topology.Export(g, src, topology.ExportOptions{ServiceLimits: limits})
	if err != nil {
		return err
	}
	if err := doc.Save(output); err != nil {
		return err
	}

	lists := topology.AdjacencyLists(g)
	fmt.Fprintf(w, "Generated %s topology: %d clusters, %d links\n", model, src.Len(), len(topology.EdgeSet(g)))
	if len(lists) > 0 {
		degrees := make([]float64, 0, len(lists))
		for _, neighbors := range lists {
			degrees = append(degrees, float64(len(neighbors)))
		}
		minDeg, _ := stats.Min(degrees)
		maxDeg, _ := stats.Max(degrees)
		meanDeg, _ := stats.Mean(degrees)
		fmt.Fprintf(w, "Degree: min %.0f, max %.0f, mean %.2f\n", minDeg, maxDeg, meanDeg)
	}
	fmt.Fprintf(w, "Adjacency list written to %s\n", output)
	return nil
}

func init() {
	topologyCmd.Flags().StringVar(&topologyInput, "input", "json/config.json", "Input document: cluster name -> {gatewayIP, services...}")
	topologyCmd.Flags().StringVar(&topologyOutput, "output", "json/adjacentList.json", "Adjacency document to write")
	topologyCmd.Flags().IntSliceVar(&serviceLimits, "service-limits", nil, "Comma-separated per-cluster cap on exported internal services (negative = all)")
}
