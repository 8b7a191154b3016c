package forecast

import (
	"fmt"

	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Geometry fixes the tensor shapes a forecaster consumes and produces.
type Geometry struct {
	InSteps        int `json:"in_steps" mapstructure:"in_steps"`
	OutSteps       int `json:"out_steps" mapstructure:"out_steps"`
	InputFeatures  int `json:"input_features" mapstructure:"input_features"`
	OutputFeatures int `json:"output_features" mapstructure:"output_features"`
}

// GeometryFor derives the geometry from a windower: input width by every column in, label width by
// the label columns out.
func GeometryFor(w *window.Windower) Geometry {
	return Geometry{
		InSteps:        w.Spec().InputWidth(),
		OutSteps:       w.Spec().LabelWidth(),
		InputFeatures:  w.NumInputFeatures(),
		OutputFeatures: w.NumLabelFeatures(),
	}
}

// Validate requires every dimension to be positive.
func (g Geometry) Validate() error {
	if g.InSteps <= 0 || g.OutSteps <= 0 || g.InputFeatures <= 0 || g.OutputFeatures <= 0 {
		return errors.NewWindowError(errors.ErrInvalidGeometry, errors.CodeInvalidGeometry,
			fmt.Sprintf("geometry %+v has a non-positive dimension", g))
	}
	return nil
}

// Outputs is the width of the flat dense projection.
func (g Geometry) Outputs() int {
	return g.OutSteps * g.OutputFeatures
}

// CheckpointName names the best-model checkpoint file for this geometry.
func (g Geometry) CheckpointName() string {
	return fmt.Sprintf(constants.CheckpointNameFormat, g.InputFeatures, g.OutSteps)
}
