package training

import (
	"encoding"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// CheckDir verifies that dir exists and is a directory. It is never created.
func CheckDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.NewCheckpointError(errors.ErrCheckpointDirUnavailable, errors.CodeCheckpointDirUnavailable,
			fmt.Sprintf("checkpoint directory %q is not accessible", dir)).WithDetails(err.Error())
	}
	if !info.IsDir() {
		return errors.NewCheckpointError(errors.ErrCheckpointDirUnavailable, errors.CodeCheckpointDirUnavailable,
			fmt.Sprintf("checkpoint path %q is not a directory", dir))
	}
	return nil
}

// SaveCheckpoint writes the learner state to path through a temporary file and a rename,
// so readers never see a partial checkpoint.
func SaveCheckpoint(path string, state encoding.BinaryMarshaler) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return errors.NewCheckpointError(errors.ErrCheckpointWriteFailed, errors.CodeCheckpointWriteFailed,
			"failed to serialise model state").WithDetails(err.Error())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return writeFailed(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return writeFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return writeFailed(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return writeFailed(path, err)
	}
	return nil
}

// LoadCheckpoint restores learner state from path.
func LoadCheckpoint(path string, state encoding.BinaryUnmarshaler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.NewCheckpointError(errors.ErrCheckpointNotFound, errors.CodeCheckpointNotFound,
				fmt.Sprintf("no checkpoint at %q", path))
		}
		return errors.NewCheckpointError(errors.ErrCheckpointCorrupt, errors.CodeCheckpointCorrupt,
			fmt.Sprintf("failed to read checkpoint %q", path)).WithDetails(err.Error())
	}
	return state.UnmarshalBinary(data)
}

func writeFailed(path string, err error) error {
	return errors.NewCheckpointError(errors.ErrCheckpointWriteFailed, errors.CodeCheckpointWriteFailed,
		fmt.Sprintf("failed to write checkpoint %q", path)).WithDetails(err.Error())
}
