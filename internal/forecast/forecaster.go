package forecast

import (
	"context"
	"path/filepath"

	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Forecaster composes a geometry, an LSTM and the training driver.
type Forecaster struct {
	geometry Geometry
	model    *LSTM
	trainer  *training.Trainer
}

// NewForecaster builds the LSTM for geometry. trainer is required for Fit and Evaluate only.
func NewForecaster(geometry Geometry, cfg LSTMConfig, trainer *training.Trainer) (*Forecaster, error) {
	model, err := NewLSTM(geometry, cfg)
	if err != nil {
		return nil, err
	}
	return &Forecaster{
		geometry: geometry,
		model:    model,
		trainer:  trainer,
	}, nil
}

// Geometry returns the forecaster's tensor shapes.
func (f *Forecaster) Geometry() Geometry { return f.geometry }

// Model returns the underlying network.
func (f *Forecaster) Model() *LSTM { return f.model }

// CheckpointName names this forecaster's best-model checkpoint.
func (f *Forecaster) CheckpointName() string { return f.geometry.CheckpointName() }

// Forward maps inputs [B, InSteps, InputFeatures] to predictions [B, OutSteps, OutputFeatures].
func (f *Forecaster) Forward(inputs models.Tensor) (models.Tensor, error) {
	return f.model.Predict(inputs)
}

// Predict is Forward; it lets a Forecaster be plotted by a windower.
func (f *Forecaster) Predict(inputs models.Tensor) (models.Tensor, error) {
	return f.Forward(inputs)
}

// Fit trains on train with early stopping on val and leaves the best checkpointed weights loaded.
func (f *Forecaster) Fit(ctx context.Context, train, val *window.Dataset) (*training.History, error) {
	if f.trainer == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "forecaster has no trainer")
	}
	return f.trainer.Fit(ctx, f.model, f.CheckpointName(), train, val)
}

// Evaluate computes loss and MAE over one pass of ds.
func (f *Forecaster) Evaluate(ctx context.Context, ds *window.Dataset) (training.Metrics, error) {
	if f.trainer == nil {
		return training.Metrics{}, errors.NewValidationError(errors.CodeInvalidInput, "forecaster has no trainer")
	}
	return f.trainer.Evaluate(ctx, f.model, ds)
}

// LoadBest restores weights from dir's checkpoint for this geometry.
func (f *Forecaster) LoadBest(dir string) error {
	return training.LoadCheckpoint(filepath.Join(dir, f.CheckpointName()), f.model)
}

var _ window.Predictor = (*Forecaster)(nil)
var _ training.Learner = (*LSTM)(nil)
