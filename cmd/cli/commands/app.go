package commands

import (
	"context"
	stderrors "errors"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/forecast"
	"github.com/inferloop/tsforecast/internal/logging"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/storage"
	"github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/internal/training"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// App carries the global flags and the state every command builds on.
type App struct {
	ConfigFile string
	Verbose    bool

	Config *config.Config
	Logger *logrus.Logger
}

// Load reads the configuration and builds the logger. --verbose forces debug logging.
func (a *App) Load() error {
	cfg, err := config.Load(a.ConfigFile)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if a.Verbose {
		level = logrus.DebugLevel.String()
	}

	a.Config = cfg
	a.Logger = logging.New(level, cfg.Logging.Format)
	return nil
}

// LoadTable reads the full table from the configured source.
func (a *App) LoadTable(ctx context.Context) (*models.Table, error) {
	source, err := storage.NewFactory(a.Logger).CreateSource(a.Config.Source)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	if a.Config.Source.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Source.Timeout)
		defer cancel()
	}

	table, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	a.Logger.WithFields(logrus.Fields{
		"source":  source.Name(),
		"rows":    table.Len(),
		"columns": table.NumColumns(),
	}).Info("Loaded table")

	return table, nil
}

// BuildWindower loads the table, splits it chronologically and windows the three parts.
func (a *App) BuildWindower(ctx context.Context) (*window.Windower, error) {
	table, err := a.LoadTable(ctx)
	if err != nil {
		return nil, err
	}

	wc := a.Config.Window
	train, val, test, err := table.Split(wc.TrainFraction, wc.ValFraction)
	if err != nil {
		return nil, err
	}

	spec, err := window.NewSpec(wc.InputWidth, wc.LabelWidth)
	if err != nil {
		return nil, err
	}

	return window.New(spec, train, val, test, window.Options{
		LabelColumns: wc.LabelColumns,
		BatchSize:    wc.BatchSize,
		Seed:         wc.Seed,
	}, a.Logger)
}

// BuildMetrics returns nil when metrics are disabled.
func (a *App) BuildMetrics() (*metrics.TrainingMetrics, error) {
	if !a.Config.Metrics.Enabled {
		return nil, nil
	}
	return metrics.NewTrainingMetrics(a.Config.Metrics.Namespace)
}

// BuildMirror returns nil when the mirror is disabled.
func (a *App) BuildMirror() (*s3.CheckpointMirror, error) {
	return storage.NewMirror(a.Config.Mirror, a.Logger)
}

// BuildForecaster sizes an LSTM forecaster to w. tm and mirror may be nil.
func (a *App) BuildForecaster(w *window.Windower, tm *metrics.TrainingMetrics, mirror *s3.CheckpointMirror) (*forecast.Forecaster, error) {
	var checkpointMirror training.CheckpointMirror
	if mirror != nil {
		checkpointMirror = mirror
	}

	trainer, err := training.NewTrainer(a.Config.Training, a.Logger, tm, checkpointMirror)
	if err != nil {
		return nil, err
	}

	return forecast.NewForecaster(forecast.GeometryFor(w), a.Config.Model, trainer)
}

// RestoreBest loads the best checkpoint for f, fetching it from the mirror when it is not on disk.
func (a *App) RestoreBest(ctx context.Context, f *forecast.Forecaster, mirror *s3.CheckpointMirror) error {
	dir := a.Config.Training.CheckpointDir

	err := f.LoadBest(dir)
	if err == nil || mirror == nil || !stderrors.Is(err, errors.ErrCheckpointNotFound) {
		return err
	}

	path := filepath.Join(dir, f.CheckpointName())
	a.Logger.WithFields(logrus.Fields{
		"path": path,
		"key":  mirror.Key(path),
	}).Info("Checkpoint not on disk, downloading from mirror")

	if err := training.CheckDir(dir); err != nil {
		return err
	}
	if err := mirror.Download(ctx, path); err != nil {
		return err
	}
	return f.LoadBest(dir)
}

// labelNames returns the label feature names in tensor order.
func labelNames(w *window.Windower) []string {
	if cols := w.LabelColumns(); cols != nil {
		return cols
	}
	return w.Columns()
}

// targetColumn picks the column to plot: the flag, the configured target, the first label column.
func targetColumn(flag string, cfg *config.Config, w *window.Windower) string {
	switch {
	case flag != "":
		return flag
	case cfg.Window.TargetColumn != "":
		return cfg.Window.TargetColumn
	default:
		return labelNames(w)[0]
	}
}
