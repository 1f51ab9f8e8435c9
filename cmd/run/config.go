package main

import (
	"strings"

	"github.com/fumin/ttn/model"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type LatticeConfig struct {
	Rows         int `mapstructure:"rows" yaml:"rows"`
	Cols         int `mapstructure:"cols" yaml:"cols"`
	SitesPerLeaf int `mapstructure:"sites_per_leaf" yaml:"sites_per_leaf"`
}

type NetworkConfig struct {
	// BondDim is read as a float so that non-integral values are rejected rather than truncated.
	BondDim  float64 `mapstructure:"bond_dim" yaml:"bond_dim"`
	Cut      int     `mapstructure:"cut" yaml:"cut"`
	Backend  string  `mapstructure:"backend" yaml:"backend"`
	Strategy string  `mapstructure:"strategy" yaml:"strategy"`
	Seed     uint64  `mapstructure:"seed" yaml:"seed"`
	Name     string  `mapstructure:"name" yaml:"name"`
}

type OptimizeConfig struct {
	ProbeLength   int     `mapstructure:"probe_length" yaml:"probe_length"`
	VarError      float64 `mapstructure:"var_error" yaml:"var_error"`
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	DeltaTol      float64 `mapstructure:"delta_tol" yaml:"delta_tol"`
	Exact         bool    `mapstructure:"exact" yaml:"exact"`
	Workers       int     `mapstructure:"workers" yaml:"workers"`
}

type Config struct {
	Lattice  LatticeConfig  `mapstructure:"lattice" yaml:"lattice"`
	Model    model.Config   `mapstructure:"model" yaml:"model"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Optimize OptimizeConfig `mapstructure:"optimize" yaml:"optimize"`
	RunDir   string         `mapstructure:"run_dir" yaml:"run_dir"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
	Metrics  string         `mapstructure:"metrics" yaml:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lattice.rows", 4)
	v.SetDefault("lattice.cols", 4)
	v.SetDefault("lattice.sites_per_leaf", 4)

	v.SetDefault("model.name", "heisenberg")
	v.SetDefault("model.h", 1.0)
	v.SetDefault("model.j1", 1.0)
	v.SetDefault("model.j2", 0.0)

	v.SetDefault("network.bond_dim", 8)
	v.SetDefault("network.cut", -1)
	v.SetDefault("network.backend", "dense")
	v.SetDefault("network.strategy", "greedy")
	v.SetDefault("network.seed", 0)
	v.SetDefault("network.name", "")

	v.SetDefault("optimize.probe_length", 10)
	v.SetDefault("optimize.var_error", 1e-10)
	v.SetDefault("optimize.max_iterations", 200)
	v.SetDefault("optimize.delta_tol", 1e-15)
	v.SetDefault("optimize.exact", false)
	v.SetDefault("optimize.workers", 1)

	v.SetDefault("run_dir", "runs")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics", "")
}

// loadConfig merges defaults, the optional YAML file at path and TTN_ prefixed environment variables.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("ttn")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}
