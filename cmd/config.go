package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SlaveConfig describes one slave to bring into an execution: its name,
// the fake-slave type it instantiates, and the addresses it is reachable
// at (spec.md §6 locator pair).
type SlaveConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	ControlAddr string `yaml:"control_addr"`
	DataPubAddr string `yaml:"data_pub_addr"`
}

// ExecutionConfig is the YAML-loadable description of one demo execution:
// its simulated time bounds, step size, and the slaves to reconstitute.
type ExecutionConfig struct {
	Name    string        `yaml:"name"`
	Start   float64       `yaml:"start"`
	Stop    float64       `yaml:"stop"`
	Step    float64       `yaml:"step"`
	Slaves  []SlaveConfig `yaml:"slaves"`
	Connect []ConnectSpec `yaml:"connect"`
}

// ConnectSpec wires one local input to a remote output, by slave name and
// variable name rather than raw ids, so YAML config stays readable.
type ConnectSpec struct {
	FromSlave string `yaml:"from_slave"`
	FromVar   string `yaml:"from_var"`
	ToSlave   string `yaml:"to_slave"`
	ToVar     string `yaml:"to_var"`
}

// LoadExecutionConfig reads and parses a YAML execution config file.
func LoadExecutionConfig(path string) (*ExecutionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading execution config: %w", err)
	}
	var cfg ExecutionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing execution config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidSlaveTypes is the set of fake slave types the dsbdemo command knows
// how to instantiate.
var ValidSlaveTypes = map[string]bool{"feedback-source": true, "feedback-sink": true}

// Validate checks that every slave names a known type and that connections
// reference slaves actually declared in the config.
func (c *ExecutionConfig) Validate() error {
	if c.Stop <= c.Start {
		return fmt.Errorf("execution config: stop (%v) must be after start (%v)", c.Stop, c.Start)
	}
	if c.Step <= 0 {
		return fmt.Errorf("execution config: step must be positive, got %v", c.Step)
	}
	names := make(map[string]bool, len(c.Slaves))
	for _, s := range c.Slaves {
		if !ValidSlaveTypes[s.Type] {
			return fmt.Errorf("execution config: unknown slave type %q for slave %q", s.Type, s.Name)
		}
		names[s.Name] = true
	}
	for _, conn := range c.Connect {
		if !names[conn.FromSlave] {
			return fmt.Errorf("execution config: connect references unknown slave %q", conn.FromSlave)
		}
		if !names[conn.ToSlave] {
			return fmt.Errorf("execution config: connect references unknown slave %q", conn.ToSlave)
		}
	}
	return nil
}
