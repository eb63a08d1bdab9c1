package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crust-sim/crust-gym/sim/env"
	"github.com/crust-sim/crust-gym/sim/process"
	"github.com/crust-sim/crust-gym/sim/rollout"
	"github.com/crust-sim/crust-gym/sim/trace"
)

// DefaultServerPath is where a debug build of the simulator lands.
const DefaultServerPath = "target/debug/crust_sim_server"

// ServerPathEnv overrides server.path from the config file.
const ServerPathEnv = "CRUST_SIM_SERVER"

// Config is the crust-gym configuration file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Env     EnvConfig     `yaml:"env"`
	Rollout RolloutConfig `yaml:"rollout"`
}

// ServerConfig describes how to launch the simulator.
type ServerConfig struct {
	Path        string        `yaml:"path"`
	Args        []string      `yaml:"args"`
	Env         []string      `yaml:"env"` // KEY=VALUE pairs added to the child environment
	Dir         string        `yaml:"dir"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // 0 waits forever
}

type EnvConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllyDropWeight  float64       `yaml:"ally_drop_weight"`
}

type RolloutConfig struct {
	Episodes    int    `yaml:"episodes"`
	MaxSteps    int    `yaml:"max_steps"`
	Seed        int64  `yaml:"seed"`
	Workers     int    `yaml:"workers"`
	Policy      string `yaml:"policy"`
	TraceLevel  string `yaml:"trace_level"`
	TraceHeader string `yaml:"trace_header"`
	TraceData   string `yaml:"trace_data"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Path: DefaultServerPath},
		Env: EnvConfig{
			ShutdownTimeout: env.DefaultShutdownTimeout,
			AllyDropWeight:  env.DefaultAllyDropWeight,
		},
		Rollout: RolloutConfig{
			Episodes:   1,
			MaxSteps:   20000,
			Workers:    1,
			Policy:     rollout.PolicyRandom,
			TraceLevel: string(trace.TraceLevelEpisodes),
		},
	}
}

// LoadConfig reads path over the defaults, then applies CRUST_SIM_SERVER.
// An empty path skips the file. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if p := os.Getenv(ServerPathEnv); p != "" {
		cfg.Server.Path = p
	}
	return cfg, nil
}

// Validate checks values the decoder cannot.
func (c Config) Validate() error {
	if c.Server.Path == "" {
		return fmt.Errorf("server.path is empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative, got %v", c.Server.ReadTimeout)
	}
	if c.Env.AllyDropWeight < 0 {
		return fmt.Errorf("env.ally_drop_weight must be non-negative, got %v", c.Env.AllyDropWeight)
	}
	if c.Rollout.Episodes <= 0 {
		return fmt.Errorf("rollout.episodes must be positive, got %d", c.Rollout.Episodes)
	}
	if c.Rollout.MaxSteps < 0 {
		return fmt.Errorf("rollout.max_steps must be non-negative, got %d", c.Rollout.MaxSteps)
	}
	if c.Rollout.Workers < 1 {
		return fmt.Errorf("rollout.workers must be at least 1, got %d", c.Rollout.Workers)
	}
	if !rollout.IsValidPolicy(c.Rollout.Policy) {
		return fmt.Errorf("unknown rollout.policy %q", c.Rollout.Policy)
	}
	if !trace.IsValidTraceLevel(c.Rollout.TraceLevel) {
		return fmt.Errorf("unknown rollout.trace_level %q", c.Rollout.TraceLevel)
	}
	if (c.Rollout.TraceHeader == "") != (c.Rollout.TraceData == "") {
		return fmt.Errorf("rollout.trace_header and rollout.trace_data must be set together")
	}
	return nil
}

// EnvConfig converts the server and env sections for env.New.
func (c Config) EnvConfig() env.Config {
	return env.Config{
		Process: process.Config{
			Path:        c.Server.Path,
			Args:        c.Server.Args,
			Env:         c.Server.Env,
			Dir:         c.Server.Dir,
			ReadTimeout: c.Server.ReadTimeout,
		},
		ShutdownTimeout: c.Env.ShutdownTimeout,
		AllyDropWeight:  c.Env.AllyDropWeight,
	}
}

// RolloutConfig converts the whole file for rollout.Run.
func (c Config) RolloutConfig() rollout.Config {
	return rollout.Config{
		Env:      c.EnvConfig(),
		Episodes: c.Rollout.Episodes,
		MaxSteps: c.Rollout.MaxSteps,
		Seed:     c.Rollout.Seed,
		Workers:  c.Rollout.Workers,
		Policy:   c.Rollout.Policy,
		Trace:    trace.TraceConfig{Level: trace.TraceLevel(c.Rollout.TraceLevel)},
	}
}
