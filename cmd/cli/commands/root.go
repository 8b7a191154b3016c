package commands

import (
	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/pkg/constants"
)

// NewRootCmd assembles the tsforecast command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Sliding-window time series datasets and recurrent forecasters",
		Long: `Load a multivariate time series table, cut it into train, validation and test
windows, and fit an LSTM forecaster with early stopping and best-checkpoint restore.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&app.ConfigFile, "config", "", "config file (default is ./tsforecast.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewWindowCmd(app))
	rootCmd.AddCommand(NewTrainCmd(app))
	rootCmd.AddCommand(NewEvaluateCmd(app))
	rootCmd.AddCommand(NewPlotCmd(app))
	rootCmd.AddCommand(NewServeCmd(app))

	return rootCmd
}
