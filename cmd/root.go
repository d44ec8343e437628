package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Path to clusterbed.yaml
	envFile    string // Path to a .env file with CLUSTERBED_* overrides

	// cfg holds clusterbed.yaml, loaded before any subcommand runs.
	cfg Config
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "clusterbed",
	Short: "Multi-cluster network testbed: topology generation and per-link delay control",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
			logrus.Fatalf("Failed to load env file: %v", err)
		}

		var err error
		cfg, err = loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}

		level := resolveString(cmd, "log", cfg.Log)
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", level)
		}
		logrus.SetLevel(parsed)
	},
}

// loadEnvFile exports the variables of path into the process environment
// without overriding variables that are already set. A missing file is only
// an error when the user named it explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "clusterbed.yaml", "Path to the clusterbed config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file providing CLUSTERBED_* overrides")

	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(delayCmd)
}
