package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/observability/health"
	"github.com/inferloop/tsforecast/internal/server"
	"github.com/inferloop/tsforecast/internal/training"
)

type ServeOptions struct {
	Addr      string
	WithModel bool
}

func NewServeCmd(app *App) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the window description, example batch, plots and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Load(); err != nil {
				return err
			}
			if opts.Addr != "" {
				app.Config.Server.Addr = opts.Addr
			}

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

			checker := health.NewChecker(app.Logger)
			checker.RegisterCheck("example", true, 0, func(context.Context) error {
				_, err := w.Example()
				return err
			})
			checker.RegisterCheck("checkpoint_dir", opts.WithModel, 0, func(context.Context) error {
				return training.CheckDir(app.Config.Training.CheckpointDir)
			})

			options := server.Options{
				Metrics:      tm,
				TargetColumn: targetColumn("", app.Config, w),
				Health:       checker,
			}
			if opts.WithModel {
				mirror, err := app.BuildMirror()
				if err != nil {
					return err
				}
				f, err := app.BuildForecaster(w, tm, mirror)
				if err != nil {
					return err
				}
				if err := app.RestoreBest(ctx, f, mirror); err != nil {
					return err
				}
				options.Predictor = f
			}

			return server.NewServer(app.Config.Server, w, options, app.Logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVar(&opts.WithModel, "with-model", false, "Overlay the best checkpoint's predictions on /plot.png")

	return cmd
}
