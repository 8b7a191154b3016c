package training

import (
	"time"

	"github.com/google/uuid"
)

// EpochMetrics is the outcome of one epoch.
type EpochMetrics struct {
	Epoch    int           `json:"epoch"`
	Train    Metrics       `json:"train"`
	Val      Metrics       `json:"val"`
	Improved bool          `json:"improved"`
	Duration time.Duration `json:"duration"`
}

// History records a training run.
type History struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Epochs         []EpochMetrics `json:"epochs"`
	BestEpoch      int            `json:"best_epoch"`
	BestValLoss    float64        `json:"best_val_loss"`
	StoppedEarly   bool           `json:"stopped_early"`
	CheckpointPath string         `json:"checkpoint_path"`
	MirrorKey      string         `json:"mirror_key,omitempty"`
}

func newHistory() *History {
	return &History{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		BestEpoch: -1,
	}
}

// Best returns the metrics of the best epoch, false when no epoch improved.
func (h *History) Best() (EpochMetrics, bool) {
	for _, e := range h.Epochs {
		if e.Epoch == h.BestEpoch {
			return e, true
		}
	}
	return EpochMetrics{}, false
}
