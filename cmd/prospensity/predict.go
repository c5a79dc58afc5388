package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/serve"
)

func (c *cli) newPredictCommand() *cobra.Command {
	var input, artifact, url string
	var remote bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict one customer record against a local artifact or a running service",
		Args:  cobra.NoArgs,
		Example: `  prospensity predict --input customer.json
  cat customer.json | prospensity predict --remote
  prospensity predict -i customer.json --url http://models.internal:8000/predict`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			if err := in.Validate(); err != nil {
				return err
			}

			if remote && url == "" {
				url = c.cfg.APIURL
			}
			var resp *serve.PredictionResponse
			if url != "" {
				resp, err = serve.NewClient(url).Predict(cmd.Context(), in)
			} else {
				if artifact == "" {
					artifact = c.cfg.ArtifactPath
				}
				var pred *serve.Predictor
				pred, err = serve.LoadPredictor(artifact)
				if err != nil {
					return err
				}
				resp, err = pred.Predict(in.Features())
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), serve.FormatResponse(resp))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON customer record file, - for stdin")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Model artifact (default from config)")
	cmd.Flags().StringVar(&url, "url", "", "Prediction endpoint; when set the record is posted there")
	cmd.Flags().BoolVar(&remote, "remote", false, "Post the record to the configured api_url")
	return cmd
}

func readInput(stdin io.Reader, path string) (serve.CustomerInput, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return serve.CustomerInput{}, perrors.Wrapf(err, "opening input %s", path)
		}
		defer f.Close()
		r = f
	}
	in, err := serve.DecodeCustomerInput(r)
	if err != nil {
		return in, perrors.Wrap(err, "decoding customer record")
	}
	return in, nil
}
