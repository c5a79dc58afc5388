package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/serve"
)

func (c *cli) newServeCommand() *cobra.Command {
	var addr, artifact string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = c.cfg.ListenAddr
			}
			if !cmd.Flags().Changed("artifact") {
				artifact = c.cfg.ArtifactPath
			}
			logger := log.GetLoggerWithName("cmd.serve")

			// A missing artifact keeps the service up; /predict answers 500
			// until a model is trained and the service restarted.
			pred, err := serve.LoadPredictor(artifact)
			if err != nil {
				logger.Warn("Model not loaded", err, log.ArtifactKey, artifact)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve.NewServer(pred).WithVersion(version).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Model artifact to load (default from config)")
	return cmd
}
