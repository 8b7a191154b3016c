package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/export"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/pkg/constants"
)

type TrainOptions struct {
	MaxEpochs     int
	Patience      int
	MakeDir       bool
	HistoryFile   string
	HistoryFormat string
	MetricsFile   string
	SkipTest      bool
}

func NewTrainCmd(app *App) *cobra.Command {
	opts := &TrainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the LSTM forecaster with early stopping and keep the best checkpoint",
		Example: `  # Train with a short patience and keep the epoch history
  tsforecast train --patience 3 --history history.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Load(); err != nil {
				return err
			}
			if cmd.Flags().Changed("epochs") {
				app.Config.Training.MaxEpochs = opts.MaxEpochs
			}
			if cmd.Flags().Changed("patience") {
				app.Config.Training.Patience = opts.Patience
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}
			if opts.MakeDir {
				if err := os.MkdirAll(app.Config.Training.CheckpointDir, 0o755); err != nil {
					return err
				}
			}
			return runTrain(cmd, app, opts)
		},
	}

	cmd.Flags().IntVar(&opts.MaxEpochs, "epochs", constants.DefaultMaxEpochs, "Maximum number of epochs")
	cmd.Flags().IntVar(&opts.Patience, "patience", constants.DefaultPatience, "Epochs without improvement before stopping")
	cmd.Flags().BoolVar(&opts.MakeDir, "mkdir", false, "Create the checkpoint directory if it is missing")
	cmd.Flags().StringVar(&opts.HistoryFile, "history", "", "Write the epoch history to this file")
	cmd.Flags().StringVar(&opts.HistoryFormat, "history-format", constants.OutputFormatCSV, "History format (csv, json)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	cmd.Flags().BoolVar(&opts.SkipTest, "skip-test", false, "Do not evaluate the restored model on the test split")

	return cmd
}

func runTrain(cmd *cobra.Command, app *App, opts *TrainOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := app.BuildWindower(ctx)
	if err != nil {
		return err
	}

	tm, err := app.BuildMetrics()
	if err != nil {
		return err
	}
	if tm == nil && opts.MetricsFile != "" {
		if tm, err = metrics.NewTrainingMetrics(app.Config.Metrics.Namespace); err != nil {
			return err
		}
	}

	mirror, err := app.BuildMirror()
	if err != nil {
		return err
	}

	f, err := app.BuildForecaster(w, tm, mirror)
	if err != nil {
		return err
	}

	train, err := w.Train()
	if err != nil {
		return err
	}
	val, err := w.Val()
	if err != nil {
		return err
	}
	tm.RecordWindows("train", train.NumWindows())
	tm.RecordWindows("val", val.NumWindows())

	history, fitErr := f.Fit(ctx, train, val)
	if history != nil && opts.HistoryFile != "" {
		if err := export.WriteHistoryFile(ctx, opts.HistoryFile, opts.HistoryFormat, history, export.DefaultOptions()); err != nil {
			app.Logger.WithError(err).Warn("Failed to write history")
		}
	}
	if fitErr != nil {
		return fitErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:          %s\n", history.RunID)
	fmt.Fprintf(out, "Epochs:       %d (stopped early: %t)\n", len(history.Epochs), history.StoppedEarly)
	fmt.Fprintf(out, "Best epoch:   %d (val loss %.6f)\n", history.BestEpoch, history.BestValLoss)
	fmt.Fprintf(out, "Checkpoint:   %s\n", history.CheckpointPath)
	if history.MirrorKey != "" {
		fmt.Fprintf(out, "Mirrored to:  %s\n", history.MirrorKey)
	}

	if !opts.SkipTest {
		test, err := w.Test()
		if err != nil {
			return err
		}
		tm.RecordWindows("test", test.NumWindows())

		result, err := f.Evaluate(ctx, test)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Test:         loss %.6f  mae %.6f  (%d windows)\n", result.Loss, result.MAE, result.Samples)
	}

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, tm.Registry()); err != nil {
			return err
		}
		app.Logger.WithFields(logrus.Fields{
			"path": opts.MetricsFile,
		}).Info("Wrote metrics")
	}

	return nil
}
