package working_dir

import (
	"os"
	"path/filepath"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

// WorkingDir is a scratch area for a run. All paths handed to external
// binaries are absolute so that their own working dir doesn't matter.
type WorkingDir struct {
	root string
}

func NewWorkingDir(root string) (WorkingDir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return WorkingDir{}, cerr.Field("root", root).
			Wrap(err).Error("Failed to convert working dir root to absolute format")
	}

	if err := os.MkdirAll(absRoot, os.ModePerm); err != nil {
		return WorkingDir{}, cerr.Field("root", absRoot).
			Wrap(err).Error("Failed to create working dir")
	}

	return WorkingDir{root: absRoot}, nil
}

func (w WorkingDir) Root() string {
	return w.root
}

func (w WorkingDir) TempDir() string {
	return filepath.Join(w.root, "tmp")
}

// MakeTempDir creates a fresh temp dir under the working dir and returns
// its path together with a cleanup function.
func (w WorkingDir) MakeTempDir(pattern string) (string, func(), error) {
	if err := os.MkdirAll(w.TempDir(), os.ModePerm); err != nil {
		return "", nil, cerr.Field("temp_dir", w.TempDir()).
			Wrap(err).Error("Failed to create temp dir root")
	}

	tempDir, err := os.MkdirTemp(w.TempDir(), pattern)
	if err != nil {
		return "", nil, cerr.Field("temp_dir", w.TempDir()).
			Wrap(err).Error("Failed to create temp dir")
	}

	tempDir, err = filepath.Abs(tempDir)
	if err != nil {
		return "", nil, cerr.Field("temp_dir", tempDir).
			Wrap(err).Error("Failed to turn temp dir into absolute format")
	}

	return tempDir, func() { _ = os.RemoveAll(tempDir) }, nil
}
