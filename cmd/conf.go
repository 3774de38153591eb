package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/vrouter/nlengine/backends/prometheus"
	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/plugins/api"
)

type Config struct {
	// LogLevel overrides --log-level. It's reapplied when the file changes.
	LogLevel string `yaml:"logLevel"`

	// Groups lists the multicast groups to join, as family/group pairs.
	Groups []string `yaml:"groups"`

	// Ovs logs datapath upcalls when the openvswitch module is loaded.
	Ovs bool `yaml:"ovs"`

	Engine *netlink.Config `yaml:"engine"`

	Plugins *struct {
		Api *api.Config `yaml:"api"`
	} `yaml:"plugins"`

	Backends *struct {
		Prometheus *prometheus.Config `yaml:"prometheus"`
	} `yaml:"backends"`
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	engine := netlink.DefaultConfig
	def := &config{
		Groups: []string{},
		Engine: &engine,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}

func ReadConf(path string) (*Config, error) {
	r, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the configuration file: %w", err)
	}

	conf := Config{}
	if err := yaml.Unmarshal(r, &conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return &conf, nil
}

// readConfOrDefaults is ReadConf falling back to the defaults when there's no
// configuration file at all.
func readConfOrDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		engine := netlink.DefaultConfig
		return &Config{Groups: []string{}, Engine: &engine}, nil
	}
	return ReadConf(path)
}
