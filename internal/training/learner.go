package training

import (
	"encoding"

	"github.com/inferloop/tsforecast/pkg/models"
)

// Metrics aggregates loss over a number of windows.
type Metrics struct {
	Loss    float64 `json:"loss"` // mean squared error
	MAE     float64 `json:"mae"`
	Samples int     `json:"samples"`
}

// Learner is a trainable model whose parameter state round-trips through bytes.
// TrainBatch applies one optimizer step; Evaluate leaves parameters untouched.
type Learner interface {
	TrainBatch(batch models.Batch) (Metrics, error)
	Evaluate(batch models.Batch) (Metrics, error)
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}
