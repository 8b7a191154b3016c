package training

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Config contains configuration for the training driver
type Config struct {
	MaxEpochs     int     `json:"max_epochs" mapstructure:"max_epochs" yaml:"max_epochs"`             // Upper bound on epochs
	Patience      int     `json:"patience" mapstructure:"patience" yaml:"patience"`                   // Epochs without improvement before stopping
	MinDelta      float64 `json:"min_delta" mapstructure:"min_delta" yaml:"min_delta"`                // Minimum val loss decrease counted as improvement
	CheckpointDir string  `json:"checkpoint_dir" mapstructure:"checkpoint_dir" yaml:"checkpoint_dir"` // Must exist before Fit
}

// DefaultConfig returns the defaults for a long, patient run.
func DefaultConfig() Config {
	return Config{
		MaxEpochs:     constants.DefaultMaxEpochs,
		Patience:      constants.DefaultPatience,
		MinDelta:      constants.DefaultMinDelta,
		CheckpointDir: constants.DefaultCheckpointDir,
	}
}

// CheckpointMirror copies a finished checkpoint to remote storage.
type CheckpointMirror interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Trainer drives epochs of training and validation with early stopping and best-model checkpoints.
type Trainer struct {
	config  Config
	logger  *logrus.Logger
	metrics *metrics.TrainingMetrics
	mirror  CheckpointMirror
}

// NewTrainer creates a trainer. metrics and mirror may be nil.
func NewTrainer(config Config, logger *logrus.Logger, tm *metrics.TrainingMetrics, mirror CheckpointMirror) (*Trainer, error) {
	if config.MaxEpochs <= 0 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "max epochs must be positive")
	}
	if config.Patience <= 0 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "patience must be positive")
	}
	if config.CheckpointDir == "" {
		config.CheckpointDir = constants.DefaultCheckpointDir
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Trainer{
		config:  config,
		logger:  logger,
		metrics: tm,
		mirror:  mirror,
	}, nil
}

// Config returns the trainer configuration.
func (t *Trainer) Config() Config { return t.config }

// CheckpointPath joins the checkpoint directory and name.
func (t *Trainer) CheckpointPath(name string) string {
	return filepath.Join(t.config.CheckpointDir, name)
}

// Fit trains learner until MaxEpochs or until validation loss stops improving for Patience epochs.
// Every improvement of validation loss is checkpointed to CheckpointDir/checkpointName, and the best
// checkpoint is restored into learner before Fit returns.
func (t *Trainer) Fit(ctx context.Context, learner Learner, checkpointName string, train, val *window.Dataset) (*History, error) {
	if learner == nil || train == nil || val == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "learner, train and validation datasets are required")
	}
	if err := CheckDir(t.config.CheckpointDir); err != nil {
		return nil, err
	}

	path := t.CheckpointPath(checkpointName)
	history := newHistory()
	history.CheckpointPath = path

	logger := t.logger.WithFields(logrus.Fields{
		"run_id":     history.RunID,
		"checkpoint": path,
	})
	logger.WithFields(logrus.Fields{
		"max_epochs":    t.config.MaxEpochs,
		"patience":      t.config.Patience,
		"min_delta":     t.config.MinDelta,
		"train_windows": train.NumWindows(),
		"val_windows":   val.NumWindows(),
	}).Info("Starting training")

	// checkpoints follow any decrease; early stopping needs a decrease larger than MinDelta
	best := NewEarlyStopping(0, t.config.Patience)
	stopper := NewEarlyStopping(t.config.MinDelta, t.config.Patience)

	for epoch := 0; epoch < t.config.MaxEpochs; epoch++ {
		select {
		case <-ctx.Done():
			history.FinishedAt = time.Now()
			return history, ctx.Err()
		default:
		}

		start := time.Now()
		trainMetrics, err := t.runPass(ctx, learner.TrainBatch, train)
		if err != nil {
			return history, t.passFailed(err, "training", epoch)
		}
		valMetrics, err := t.runPass(ctx, learner.Evaluate, val)
		if err != nil {
			return history, t.passFailed(err, "validation", epoch)
		}
		duration := time.Since(start)

		improved, _ := best.Observe(epoch, valMetrics.Loss)
		_, stop := stopper.Observe(epoch, valMetrics.Loss)

		if improved {
			if err := SaveCheckpoint(path, learner); err != nil {
				return history, err
			}
			history.BestEpoch = epoch
			history.BestValLoss = valMetrics.Loss
			t.metrics.RecordCheckpointWrite()
			t.metrics.RecordBest(valMetrics.Loss)
		}

		history.Epochs = append(history.Epochs, EpochMetrics{
			Epoch:    epoch,
			Train:    trainMetrics,
			Val:      valMetrics,
			Improved: improved,
			Duration: duration,
		})
		t.metrics.RecordEpoch(trainMetrics.Loss, valMetrics.Loss, duration)
		t.metrics.RecordWindows("train", trainMetrics.Samples)
		t.metrics.RecordWindows("val", valMetrics.Samples)

		logger.WithFields(logrus.Fields{
			"epoch":    epoch + 1,
			"loss":     trainMetrics.Loss,
			"mae":      trainMetrics.MAE,
			"val_loss": valMetrics.Loss,
			"val_mae":  valMetrics.MAE,
			"improved": improved,
			"wait":     stopper.Wait(),
			"duration": duration,
		}).Info("Epoch completed")

		if stop {
			history.StoppedEarly = true
			t.metrics.RecordEarlyStop()
			logger.WithFields(logrus.Fields{
				"epoch":      epoch + 1,
				"best_epoch": history.BestEpoch + 1,
			}).Info("Early stopping triggered")
			break
		}
	}
	history.FinishedAt = time.Now()

	if history.BestEpoch < 0 {
		return history, errors.NewCheckpointError(errors.ErrCheckpointNotFound, errors.CodeCheckpointNotFound,
			"validation loss never produced a checkpoint to restore")
	}
	if err := LoadCheckpoint(path, learner); err != nil {
		return history, err
	}
	logger.WithFields(logrus.Fields{
		"best_epoch":    history.BestEpoch + 1,
		"best_val_loss": history.BestValLoss,
	}).Info("Restored best checkpoint")

	if t.mirror != nil {
		key, err := t.mirror.Upload(ctx, path)
		if err != nil {
			logger.WithError(err).Warn("Failed to mirror checkpoint")
		} else {
			history.MirrorKey = key
		}
	}

	return history, nil
}

// Evaluate runs one pass of ds through learner without updating it.
func (t *Trainer) Evaluate(ctx context.Context, learner Learner, ds *window.Dataset) (Metrics, error) {
	if learner == nil || ds == nil {
		return Metrics{}, errors.NewValidationError(errors.CodeInvalidInput, "learner and dataset are required")
	}
	m, err := t.runPass(ctx, learner.Evaluate, ds)
	if err != nil {
		return Metrics{}, err
	}
	t.metrics.RecordWindows("test", m.Samples)
	return m, nil
}

// runPass applies fn to every batch of one pass and returns sample-weighted means.
func (t *Trainer) runPass(ctx context.Context, fn func(models.Batch) (Metrics, error), ds *window.Dataset) (Metrics, error) {
	var losses, maes, weights []float64

	it := ds.Iterator()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		m, err := fn(it.Batch())
		if err != nil {
			return Metrics{}, err
		}
		losses = append(losses, m.Loss)
		maes = append(maes, m.MAE)
		weights = append(weights, float64(m.Samples))
	}
	if err := it.Err(); err != nil {
		return Metrics{}, err
	}
	if len(weights) == 0 {
		return Metrics{}, errors.NewTrainingError(errors.ErrEmptyDataset, errors.CodeEmptyDataset, "dataset produced no batches")
	}

	var samples float64
	for _, w := range weights {
		samples += w
	}
	return Metrics{
		Loss:    stat.Mean(losses, weights),
		MAE:     stat.Mean(maes, weights),
		Samples: int(samples),
	}, nil
}

func (t *Trainer) passFailed(err error, pass string, epoch int) error {
	if _, ok := err.(*errors.AppError); ok || err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	return errors.NewTrainingError(errors.ErrTrainingFailed, errors.CodeTrainingFailed,
		fmt.Sprintf("%s pass failed in epoch %d", pass, epoch+1)).WithDetails(err.Error())
}
