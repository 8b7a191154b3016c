package interfaces

import (
	"context"

	"github.com/inferloop/tsforecast/pkg/models"
)

// TableSource loads one time-ordered numeric table from a backend.
type TableSource interface {
	// Load reads the full table, oldest row first.
	Load(ctx context.Context) (*models.Table, error)

	// Name identifies the backend in logs and errors.
	Name() string

	Close() error
}

// CheckpointStore copies checkpoint files to remote storage.
type CheckpointStore interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
