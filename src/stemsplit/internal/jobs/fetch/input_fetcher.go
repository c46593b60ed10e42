package fetch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/working_dir"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

// InputFetcher resolves a run's input to a local file that survives until
// the separation job picks it up. Local inputs are used in place; remote
// ones are downloaded into a per-run staging dir.
type InputFetcher struct {
	resolver   source.Resolver
	store      run.Store
	workingDir working_dir.WorkingDir
}

func NewInputFetcher(resolver source.Resolver, store run.Store, workingDirStr string) (InputFetcher, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return InputFetcher{}, cerr.Field("working_dir_str", workingDirStr).
			Wrap(err).Error("Failed to create working dir")
	}

	return InputFetcher{
		resolver:   resolver,
		store:      store,
		workingDir: workingDir,
	}, nil
}

func (f InputFetcher) Fetch(ctx context.Context, runID string) (string, error) {
	errctx := cerr.Field("run_id", runID)

	rn, err := f.store.GetRun(ctx, runID)
	if err != nil {
		return "", errctx.Wrap(err).Error("Failed to load run")
	}

	resolved, err := f.resolver.Resolve(ctx, rn.Input)
	if err != nil {
		return "", errctx.Field("input", rn.Input).
			Wrap(err).Error("Failed to resolve run input")
	}

	if resolved.Source.Kind == source.LocalPath {
		return resolved.Path, nil
	}

	stagedPath, err := f.stageDownloadedFile(runID, resolved)
	if err != nil {
		resolved.Cleanup()
		return "", errctx.Wrap(err).Error("Failed to stage downloaded input")
	}

	return stagedPath, nil
}

// CleanupStaged removes the run's staging dir. A no-op for local inputs,
// which never get one.
func (f InputFetcher) CleanupStaged(runID string) {
	stagingDir := f.stagingDir(runID)
	if err := os.RemoveAll(stagingDir); err != nil {
		log.WithField("staging_dir", stagingDir).
			WithError(err).Warn("Could not clean up staging dir")
	}
}

func (f InputFetcher) stageDownloadedFile(runID string, resolved source.ResolvedInput) (string, error) {
	stagingDir := f.stagingDir(runID)
	if err := os.MkdirAll(stagingDir, os.ModePerm); err != nil {
		return "", cerr.Field("staging_dir", stagingDir).
			Wrap(err).Error("Failed to create staging dir")
	}

	stagedPath := filepath.Join(stagingDir, filepath.Base(resolved.Path))
	if err := os.Rename(resolved.Path, stagedPath); err != nil {
		return "", cerr.Field("staged_path", stagedPath).
			Wrap(err).Error("Failed to move downloaded file into staging dir")
	}

	resolved.Cleanup()

	log.WithField("staged_path", stagedPath).Info("Staged downloaded input for separation")
	return stagedPath, nil
}

func (f InputFetcher) stagingDir(runID string) string {
	return filepath.Join(f.workingDir.Root(), "staging", runID)
}
