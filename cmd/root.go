package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// CLI flags shared by every subcommand
	configPath      string        // YAML config file
	serverPath      string        // Simulator executable
	logLevel        string        // Log verbosity level
	readTimeout     time.Duration // Per-line read timeout
	shutdownTimeout time.Duration // Grace period after EXIT
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "crust-gym",
	Short: "Reinforcement learning bridge to the crust_sim_server match simulator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// dotenvFiles are tried in order; the first one found wins.
var dotenvFiles = []string{
	".env",
	"../.env",
	"../../.env",
}

func loadDotEnv() {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err == nil {
			logrus.Debugf("loaded environment from %s", f)
			return
		}
	}
}

// resolveConfig loads the config file and lets explicitly set flags win.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.Path = serverPath
	}
	if flags.Changed("read-timeout") {
		cfg.Server.ReadTimeout = readTimeout
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Env.ShutdownTimeout = shutdownTimeout
	}
	applyRolloutFlags(cmd, &cfg)
	return cfg, cfg.Validate()
}

// signalContext is cancelled on interrupt, which kills any running simulator.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Execute runs the CLI
func Execute() {
	loadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (server, env and rollout sections)")
	rootCmd.PersistentFlags().StringVar(&serverPath, "server", DefaultServerPath, "Simulator executable (also $"+ServerPathEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", 0, "Per-line read timeout; 0 waits forever")
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", time.Second, "How long to wait after EXIT before killing the simulator")

	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(rolloutCmd)
}
