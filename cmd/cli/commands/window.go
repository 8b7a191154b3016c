package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/window"
)

func NewWindowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "window",
		Short: "Describe the window geometry and the windowed splits",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Load(); err != nil {
				return err
			}

			w, err := app.BuildWindower(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, w.String())
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SPLIT\tWINDOWS\tBATCHES\tSTRIDE\tSHUFFLED")
			splits := []struct {
				name  string
				build func() (*window.Dataset, error)
			}{
				{"train", w.Train},
				{"val", w.Val},
				{"test", w.Test},
			}
			for _, split := range splits {
				ds, err := split.build()
				if err != nil {
					return fmt.Errorf("%s split: %w", split.name, err)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\n", split.name, ds.NumWindows(), ds.NumBatches(), ds.Stride(), ds.Shuffled())
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			example, err := w.Example()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nInputs shape (batch, time, features): %v\n", example.Inputs.Shape())
			fmt.Fprintf(out, "Labels shape (batch, time, features): %v\n", example.Labels.Shape())
			return nil
		},
	}
}
