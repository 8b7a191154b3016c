package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/pkg/constants"
)

type InitOptions struct {
	Output     string
	Force      bool
	SourcePath string
	TimeColumn string
	Labels     []string
}

func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Example: `  # Configuration for the Jena climate CSV, forecasting temperature
  tsforecast init --source-path jena_climate_2009_2016.csv --time-column "Date Time" --label "T (degC)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Source.Path = opts.SourcePath
			cfg.Source.TimeColumn = opts.TimeColumn
			cfg.Window.LabelColumns = opts.Labels

			if err := config.Save(cfg, opts.Output, opts.Force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.Output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", constants.DefaultConfigFile, "Config file to write")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&opts.SourcePath, "source-path", "", "CSV file holding the table")
	cmd.Flags().StringVar(&opts.TimeColumn, "time-column", "", "Timestamp column excluded from the features")
	cmd.Flags().StringSliceVar(&opts.Labels, "label", nil, "Label column, repeatable (default: every column)")

	return cmd
}
