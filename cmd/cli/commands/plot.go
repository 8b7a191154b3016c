package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/constants"
)

type PlotOptions struct {
	Output      string
	Column      string
	MaxSubplots int
	WithModel   bool
}

func NewPlotCmd(app *App) *cobra.Command {
	opts := &PlotOptions{}

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render the example batch, optionally with the best model's predictions",
		Example: `  # Plot temperature windows with the trained model's forecasts
  tsforecast plot --column "T (degC)" --with-model --output example.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Load(); err != nil {
				return err
			}

			w, err := app.BuildWindower(cmd.Context())
			if err != nil {
				return err
			}

			var predictor window.Predictor
			if opts.WithModel {
				mirror, err := app.BuildMirror()
				if err != nil {
					return err
				}
				f, err := app.BuildForecaster(w, nil, mirror)
				if err != nil {
					return err
				}
				if err := app.RestoreBest(cmd.Context(), f, mirror); err != nil {
					return err
				}
				predictor = f
			}

			file, err := os.Create(opts.Output)
			if err != nil {
				return err
			}
			column := targetColumn(opts.Column, app.Config, w)
			if err := w.Plot(file, predictor, column, opts.MaxSubplots); err != nil {
				file.Close()
				os.Remove(opts.Output)
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", opts.Output, column)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "plot.png", "PNG file to write")
	cmd.Flags().StringVar(&opts.Column, "column", "", "Column to plot (default: window.target_column, then the first label column)")
	cmd.Flags().IntVar(&opts.MaxSubplots, "max-subplots", constants.DefaultMaxSubplots, "Maximum number of windows to draw")
	cmd.Flags().BoolVar(&opts.WithModel, "with-model", false, "Overlay the best checkpoint's predictions")

	return cmd
}
