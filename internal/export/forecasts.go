package export

import (
	"context"
	"fmt"

	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// CollectForecasts runs predictor over one pass of ds and pairs every predicted label value with
// its observation. labelColumns names the label features in order; windows are numbered in pass
// order, which is chronological for the test split.
func CollectForecasts(ctx context.Context, predictor window.Predictor, ds *window.Dataset, spec window.Spec, labelColumns []string) ([]ForecastRecord, error) {
	steps := spec.LabelIndices()
	records := make([]ForecastRecord, 0, ds.NumWindows()*len(steps)*len(labelColumns))

	n := 0
	it := ds.Iterator()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := it.Batch()
		predictions, err := predictor.Predict(batch.Inputs)
		if err != nil {
			return nil, err
		}
		if got, want := predictions.Shape(), batch.Labels.Shape(); got != want {
			return nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
				fmt.Sprintf("predictions shaped %v, labels shaped %v", got, want))
		}
		if len(labelColumns) != batch.Labels.Shape()[2] {
			return nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
				fmt.Sprintf("%d label column names for %d label features", len(labelColumns), batch.Labels.Shape()[2]))
		}

		for b := range batch.Labels {
			for t, step := range steps {
				for k, column := range labelColumns {
					records = append(records, ForecastRecord{
						Window:    n,
						Step:      step,
						Column:    column,
						Observed:  batch.Labels[b][t][k],
						Predicted: predictions[b][t][k],
					})
				}
			}
			n++
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
