package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trimbot/internal/config"
	"trimbot/internal/logging"
)

type rootOptions struct {
	cfgPath  string
	stats    bool
	logLevel string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trimbot.toml"
	}
	return filepath.Join(home, ".trimbot.toml")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "trimbot",
		Short:         "Shorten the links in chat messages with Trimd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "Path to config file (default: ~/.trimbot.toml)")
	root.PersistentFlags().BoolVar(&opts.stats, "stats", false, "Print per-outcome stats to stderr on exit (overrides engine.stats)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides log.level)")

	root.AddCommand(newBotCmd(opts), newRewriteCmd(opts))
	return root
}

// loadConfig reads the config file when one is given or present at the
// default location, otherwise it builds the config from the environment.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := strings.TrimSpace(opts.cfgPath)
	usingDefault := path == ""
	if usingDefault {
		path = defaultConfigPath()
	}

	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(path); usingDefault && os.IsNotExist(statErr) {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	if opts.stats {
		cfg.Engine.Stats = true
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func setup(opts *rootOptions) (*config.Config, zerolog.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), errors.Wrap(err, "logging")
	}
	return cfg, log, nil
}
