package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override, e.g. CLUSTERBED_INTERFACE.
const envPrefix = "CLUSTERBED_"

// Config represents the full clusterbed.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Log      string         `yaml:"log"`
	Topology TopologyConfig `yaml:"topology"`
	Delay    DelayConfig    `yaml:"delay"`
}

// TopologyConfig holds defaults for `clusterbed topology`.
type TopologyConfig struct {
	Input         string `yaml:"input"`
	Output        string `yaml:"output"`
	ServiceLimits []int  `yaml:"service_limits"`
}

// DelayConfig holds defaults for `clusterbed delay`.
type DelayConfig struct {
	Adjacency       string `yaml:"adjacency"`
	Registry        string `yaml:"registry"`
	Interface       string `yaml:"interface"`
	Runtime         string `yaml:"runtime"`
	ContainerFormat string `yaml:"container_format"`
	Seed            *int64 `yaml:"seed"`
	MetricsFile     string `yaml:"metrics_file"`
}

// loadConfig parses clusterbed.yaml with strict field checking. A missing
// file yields the zero Config unless the path was given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("reading config file %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return c, nil
}

// envKey maps a flag name to its environment variable: "container-format"
// becomes CLUSTERBED_CONTAINER_FORMAT.
func envKey(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// resolveString applies flag > environment > config file > flag default.
func resolveString(cmd *cobra.Command, flag, fileValue string) string {
	value, _ := cmd.Flags().GetString(flag)
	if cmd.Flags().Changed(flag) {
		return value
	}
	if env, ok := os.LookupEnv(envKey(flag)); ok && env != "" {
		return env
	}
	if fileValue != "" {
		return fileValue
	}
	return value
}

// resolveInt64 is resolveString for int64 flags. ok is false when no source
// set a value and the flag default should not be trusted.
func resolveInt64(cmd *cobra.Command, flag string, fileValue *int64) (value int64, ok bool, err error) {
	if cmd.Flags().Changed(flag) {
		value, err = cmd.Flags().GetInt64(flag)
		return value, err == nil, err
	}
	if env, found := os.LookupEnv(envKey(flag)); found && env != "" {
		value, err = strconv.ParseInt(strings.TrimSpace(env), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", envKey(flag), err)
		}
		return value, true, nil
	}
	if fileValue != nil {
		return *fileValue, true, nil
	}
	return 0, false, nil
}

// resolveInts is resolveString for int slice flags. The environment form is
// comma separated.
func resolveInts(cmd *cobra.Command, flag string, fileValue []int) ([]int, error) {
	if cmd.Flags().Changed(flag) {
		return cmd.Flags().GetIntSlice(flag)
	}
	if env, ok := os.LookupEnv(envKey(flag)); ok && env != "" {
		var out []int
		for _, part := range strings.Split(env, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", envKey(flag), err)
			}
			out = append(out, n)
		}
		return out, nil
	}
	if fileValue != nil {
		return fileValue, nil
	}
	return cmd.Flags().GetIntSlice(flag)
}
