package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/export"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/constants"
)

type EvaluateOptions struct {
	ForecastFile   string
	ForecastFormat string
	Precision      int
}

func NewEvaluateCmd(app *App) *cobra.Command {
	opts := &EvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Restore the best checkpoint and report validation and test metrics",
		Example: `  # Report metrics and keep every test forecast
  tsforecast evaluate --forecasts forecasts.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Load(); err != nil {
				return err
			}
			return runEvaluate(cmd, app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ForecastFile, "forecasts", "", "Write every test forecast to this file")
	cmd.Flags().StringVar(&opts.ForecastFormat, "format", constants.OutputFormatCSV, "Forecast file format (csv, json)")
	cmd.Flags().IntVar(&opts.Precision, "precision", -1, "Digits after the decimal point, -1 for full precision")

	return cmd
}

func runEvaluate(cmd *cobra.Command, app *App, opts *EvaluateOptions) error {
	ctx := cmd.Context()

	w, err := app.BuildWindower(ctx)
	if err != nil {
		return err
	}
	mirror, err := app.BuildMirror()
	if err != nil {
		return err
	}
	f, err := app.BuildForecaster(w, nil, mirror)
	if err != nil {
		return err
	}
	if err := app.RestoreBest(ctx, f, mirror); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPLIT\tLOSS\tMAE\tWINDOWS")
	splits := []struct {
		name  string
		build func() (*window.Dataset, error)
	}{
		{"val", w.Val},
		{"test", w.Test},
	}
	for _, split := range splits {
		ds, err := split.build()
		if err != nil {
			return err
		}
		result, err := f.Evaluate(ctx, ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%d\n", split.name, result.Loss, result.MAE, result.Samples)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.ForecastFile == "" {
		return nil
	}

	test, err := w.Test()
	if err != nil {
		return err
	}
	records, err := export.CollectForecasts(ctx, f, test, w.Spec(), labelNames(w))
	if err != nil {
		return err
	}

	options := export.DefaultOptions()
	options.Precision = opts.Precision
	if err := export.WriteForecastFile(ctx, opts.ForecastFile, opts.ForecastFormat, records, options); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d forecasts to %s\n", len(records), opts.ForecastFile)
	return nil
}
