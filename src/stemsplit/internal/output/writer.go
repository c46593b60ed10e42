package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
)

// ErrWrite marks output filesystem failures.
var ErrWrite = errors.New("failed to write run output")

// RunWriter persists a run's stems under the base output dir. Each run gets
// a unique directory; stems are staged in a hidden partial dir and renamed
// into place only once every stem is written, so a crashed run never leaves
// a directory that passes for a complete one.
type RunWriter struct {
	baseDir string
}

func NewRunWriter(baseDir string) RunWriter {
	return RunWriter{baseDir: baseDir}
}

// RunDirName builds a directory name unique across concurrent and repeated
// runs. The timestamp keeps runs sortable, the uuid suffix guarantees
// uniqueness where the timestamp alone can't.
func RunDirName(slug string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", slug, now.Format("20060102_150405"), uuid.NewString()[:8])
}

func (w RunWriter) Write(slug string, stems separate.StemFilePaths) (string, separate.StemFilePaths, error) {
	if len(stems) == 0 {
		return "", nil, cerr.Wrap(ErrWrite).Error("No stems to write")
	}

	dirName := RunDirName(slug, time.Now())
	finalDir := filepath.Join(w.baseDir, dirName)
	stagingDir := filepath.Join(w.baseDir, "."+dirName+".partial")

	errctx := cerr.Field("final_dir", finalDir).Field("staging_dir", stagingDir)

	if err := os.MkdirAll(stagingDir, os.ModePerm); err != nil {
		return "", nil, errors.Mark(
			errctx.Wrap(err).Error("Failed to create staging directory"),
			ErrWrite)
	}

	written := separate.StemFilePaths{}

	for label, sourcePath := range stems {
		destPath := filepath.Join(stagingDir, label+filepath.Ext(sourcePath))
		if err := copyFile(sourcePath, destPath); err != nil {
			_ = os.RemoveAll(stagingDir)
			return "", nil, errors.Mark(
				errctx.Field("stem_label", label).
					Wrap(err).Error("Failed to write stem file"),
				ErrWrite)
		}

		written[label] = filepath.Join(finalDir, label+filepath.Ext(sourcePath))
	}

	if err := os.Rename(stagingDir, finalDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", nil, errors.Mark(
			errctx.Wrap(err).Error("Failed to finalize run directory"),
			ErrWrite)
	}

	log.WithFields(log.Fields{
		"dir":        finalDir,
		"stem_count": len(written),
	}).Info("Wrote run output")

	return finalDir, written, nil
}

func copyFile(sourcePath string, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return cerr.Field("source_path", sourcePath).Wrap(err).Error("Failed to open stem source file")
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return cerr.Field("dest_path", destPath).Wrap(err).Error("Failed to create stem dest file")
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return cerr.Field("dest_path", destPath).Wrap(err).Error("Failed to copy stem contents")
	}

	return destFile.Close()
}
