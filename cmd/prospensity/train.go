package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/letstravel/prospensity/orchestrator"
)

func (c *cli) newTrainCommand() *cobra.Command {
	var source, artifact string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the full training pipeline and save the model artifact",
		Args:  cobra.NoArgs,
		Example: `  prospensity train --source data/raw/tourism.csv --artifact models/model.gob
  prospensity train --source s3://crm-exports/tourism.csv -c prospensity.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("source") {
				cfg.Source = source
			}
			if cmd.Flags().Changed("artifact") {
				cfg.ArtifactPath = artifact
			}
			opts, err := orchestrator.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}

			res, err := orchestrator.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:       %s\n", res.RunID)
			fmt.Fprintf(out, "rows:      %d raw, %d clean\n", res.RawRows, res.CleanRows)
			fmt.Fprintf(out, "artifact:  %s\n", res.Training.ArtifactPath)
			fmt.Fprint(out, res.Training.Report.String())
			for _, p := range res.Reports {
				fmt.Fprintf(out, "report:    %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "CSV path or s3://bucket/key of the raw CRM export")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Output path of the trained pipeline")
	return cmd
}
