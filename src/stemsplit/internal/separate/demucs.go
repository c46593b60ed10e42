package separate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/executor"
	"github.com/stemtools/stemsplit/src/shared/lib/working_dir"
)

var _ FileSeparator = DemucsSeparator{}

const lockRetryDelay = 500 * time.Millisecond

// DemucsSeparator shells out to demucs. Separations are serialized per host
// with a lock file because the model is memory-hungry.
type DemucsSeparator struct {
	workingDir    working_dir.WorkingDir
	demucsBinPath string
	model         string
	mp3           bool
	executor      executor.Executor
}

func NewDemucsSeparator(workingDirStr string, demucsBinPath string, model string, mp3 bool, commandExecutor executor.Executor) (DemucsSeparator, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return DemucsSeparator{}, cerr.Wrap(err).Error("Failed to convert working dir to absolute format")
	}

	return DemucsSeparator{
		workingDir:    workingDir,
		demucsBinPath: demucsBinPath,
		model:         model,
		mp3:           mp3,
		executor:      commandExecutor,
	}, nil
}

func (d DemucsSeparator) Separate(ctx context.Context, inputFilePath string, stemsOutputDir string) (StemFilePaths, error) {
	absInputFilePath, err := filepath.Abs(inputFilePath)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Cannot convert source path to absolute format")
	}

	errctx := cerr.Field("input_filepath", absInputFilePath)

	absStemsOutputDir, err := filepath.Abs(stemsOutputDir)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Cannot convert destination path to absolute format")
	}

	// separation is a lengthy process, if we want to halt now is the time
	if ctx.Err() != nil {
		return nil, errctx.Wrap(ctx.Err()).Error("Context cancelled before separation could happen")
	}

	unlock, err := d.acquireLock(ctx)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Failed to acquire the separation lock")
	}
	defer unlock()

	if err := d.runDemucs(absInputFilePath, absStemsOutputDir); err != nil {
		return nil, errors.Mark(
			errctx.Field("output_dir", absStemsOutputDir).
				Wrap(err).Error("Failed to execute demucs"),
			ErrSeparation)
	}

	stems, err := collectStemFilePaths(absStemsOutputDir)
	if err != nil {
		return nil, errors.Mark(
			errctx.Field("output_dir", absStemsOutputDir).
				Wrap(err).Error("Demucs produced no usable stems"),
			ErrSeparation)
	}

	if err := verifyDeclaredLabels(d.model, stems); err != nil {
		return nil, errors.Mark(
			errctx.Field("output_dir", absStemsOutputDir).
				Wrap(err).Error("Demucs produced a different stem set than the model declares"),
			ErrSeparation)
	}

	return stems, nil
}

// verifyDeclaredLabels checks the collected stems against the model's
// declared label set. Unknown models accept whatever the backend produced.
func verifyDeclaredLabels(model string, stems StemFilePaths) error {
	declared := StemLabels(model)
	if declared == nil {
		return nil
	}

	declaredSet := make(map[string]bool, len(declared))
	for _, label := range declared {
		declaredSet[label] = true
	}

	var missing []string
	for _, label := range declared {
		if _, ok := stems[label]; !ok {
			missing = append(missing, label)
		}
	}

	var unexpected []string
	for label := range stems {
		if !declaredSet[label] {
			unexpected = append(unexpected, label)
		}
	}
	sort.Strings(unexpected)

	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}

	return cerr.Field("model", model).
		Field("missing_labels", missing).
		Field("unexpected_labels", unexpected).
		Error("Stem files do not match the declared label set")
}

func (d DemucsSeparator) acquireLock(ctx context.Context) (func(), error) {
	lock := flock.New(filepath.Join(d.workingDir.Root(), "separate.lock"))

	log.WithField("lock_path", lock.Path()).Info("Waiting for the separation lock")

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, cerr.Field("lock_path", lock.Path()).
			Wrap(err).Error("Failed while waiting on lock")
	}

	if !locked {
		return nil, cerr.Field("lock_path", lock.Path()).Error("Could not acquire lock")
	}

	return func() { _ = lock.Unlock() }, nil
}

func (d DemucsSeparator) runDemucs(sourcePath string, destPath string) error {
	logger := log.WithFields(log.Fields{
		"source_path": sourcePath,
		"dest_path":   destPath,
		"model":       d.model,
		"working_dir": d.workingDir.Root(),
	})

	logger.Info("Running demucs command")

	args := []string{"-o", destPath, "-n", d.model, "-d", "cpu", "--filename", "{stem}.{ext}", sourcePath}
	if d.mp3 {
		args = append([]string{"--mp3"}, args...)
	}

	errctx := cerr.Field("demucs_bin_path", d.demucsBinPath).Field("demucs_args", args)

	cmd := d.executor.Command(d.demucsBinPath, args...)
	cmd.SetDir(d.workingDir.Root())

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errctx.Field("demucs_output", string(output)).
			Wrap(err).
			Error(fmt.Sprintf("Error occurred while running demucs: %s", string(output)))
	}

	logger.Debug(string(output))
	logger.Info("Finished demucs command")

	return nil
}

// collectStemFilePaths walks the model output dir and maps stem label to
// file path, descending one level because demucs nests output under
// <model>/<track>/ unless told otherwise.
func collectStemFilePaths(dir string) (StemFilePaths, error) {
	stemDir, err := findStemDir(dir)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(stemDir)
	if err != nil {
		return nil, cerr.Field("stem_dir", stemDir).
			Wrap(err).Error("Error reading output directory")
	}

	outputs := StemFilePaths{}

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		fileName := dirEntry.Name()
		filePath, err := filepath.Abs(filepath.Join(stemDir, fileName))
		if err != nil {
			return nil, cerr.Field("file_name", fileName).
				Wrap(err).Error("Failed to convert file path to absolute format")
		}

		stemLabel := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		outputs[stemLabel] = filePath
	}

	if len(outputs) == 0 {
		return nil, cerr.Field("stem_dir", stemDir).Error("No stem files in output directory")
	}

	return outputs, nil
}

// findStemDir locates the directory the stem files actually landed in.
func findStemDir(dir string) (string, error) {
	current := dir

	for depth := 0; depth < 3; depth++ {
		dirEntries, err := os.ReadDir(current)
		if err != nil {
			return "", cerr.Field("dir", current).Wrap(err).Error("Error reading output directory")
		}

		var onlySubDir string
		for _, dirEntry := range dirEntries {
			if !dirEntry.IsDir() {
				return current, nil
			}
			onlySubDir = filepath.Join(current, dirEntry.Name())
		}

		if onlySubDir == "" {
			return "", cerr.Field("dir", current).Error("No files in output directory")
		}

		current = onlySubDir
	}

	return "", cerr.Field("dir", dir).Error("Could not locate stem files in output directory")
}
