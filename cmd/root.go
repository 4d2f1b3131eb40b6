package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Path to an ExecutionConfig YAML file
	stepSize   float64
	stopTime   float64
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "dsbdemo",
	Short: "Distributed co-simulation bus reference master",
}

// runCmd drives one execution of the distributed simulation bus, either
// from a YAML ExecutionConfig or the built-in two-slave feedback scenario
// (spec.md §8 scenario 1).
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconstitute, reconfigure, step and terminate one execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)

		cfg, err := loadOrDefaultConfig()
		if err != nil {
			return err
		}
		return RunFeedbackDemo(cfg)
	},
}

// loadOrDefaultConfig reads --config when given, or else builds the
// built-in feedback scenario (spec.md §8 scenario 1): a source slave with
// a single real output, connected to a sink slave's real input.
func loadOrDefaultConfig() (*ExecutionConfig, error) {
	if configPath != "" {
		return LoadExecutionConfig(configPath)
	}
	return &ExecutionConfig{
		Name:  "feedback-demo",
		Start: 0,
		Stop:  stopTime,
		Step:  stepSize,
		Slaves: []SlaveConfig{
			{Name: "source", Type: "feedback-source", ControlAddr: "tcp://127.0.0.1:*"},
			{Name: "sink", Type: "feedback-sink", ControlAddr: "tcp://127.0.0.1:*"},
		},
		Connect: []ConnectSpec{
			{FromSlave: "source", FromVar: "outY", ToSlave: "sink", ToVar: "inX"},
		},
	}, nil
}

// Execute runs the CLI root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to an ExecutionConfig YAML file; defaults to the built-in feedback scenario")
	runCmd.Flags().Float64Var(&stopTime, "stop", 1.0, "Simulated stop time for the built-in scenario")
	runCmd.Flags().Float64Var(&stepSize, "step", 0.1, "Step size for the built-in scenario")

	rootCmd.AddCommand(runCmd)
}
