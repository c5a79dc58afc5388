package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/letstravel/prospensity/pkg/config"
	"github.com/letstravel/prospensity/pkg/log"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "prospensity",
		Short:         "Purchase propensity model for the wellness tourism package",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format (json, text)")

	root.AddCommand(
		c.newTrainCommand(),
		c.newServeCommand(),
		c.newPredictCommand(),
		c.newRunsCommand(),
		c.newVersionCommand(),
	)
	return root
}

// setup loads configuration and installs the process logger. Flags win over
// the config file and environment.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := log.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}
