package separate_stems

import (
	"context"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/working_dir"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/filestore"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

// RunSeparator performs the separate and write stages for a staged input.
type RunSeparator struct {
	separator  separate.FileSeparator
	writer     output.RunWriter
	store      run.Store
	uploader   *filestore.Uploader
	workingDir working_dir.WorkingDir
}

func NewRunSeparator(
	separator separate.FileSeparator,
	writer output.RunWriter,
	store run.Store,
	uploader *filestore.Uploader,
	workingDirStr string,
) (RunSeparator, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return RunSeparator{}, cerr.Field("working_dir_str", workingDirStr).
			Wrap(err).Error("Failed to create working dir")
	}

	return RunSeparator{
		separator:  separator,
		writer:     writer,
		store:      store,
		uploader:   uploader,
		workingDir: workingDir,
	}, nil
}

func (r RunSeparator) SeparateRun(ctx context.Context, runID string, stagedFilePath string) (map[string]string, string, error) {
	errctx := cerr.Field("run_id", runID).Field("staged_file_path", stagedFilePath)

	rn, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, "", errctx.Wrap(err).Error("Failed to load run")
	}

	src, err := source.Parse(rn.Input)
	if err != nil {
		return nil, "", errctx.Wrap(err).Error("Failed to parse run input")
	}

	separationDir, cleanUpSeparationDir, err := r.workingDir.MakeTempDir("separate-*")
	if err != nil {
		return nil, "", errctx.Wrap(err).Error("Failed to create separation staging dir")
	}
	defer cleanUpSeparationDir()

	stems, err := r.separator.Separate(ctx, stagedFilePath, separationDir)
	if err != nil {
		return nil, "", errctx.Wrap(err).Error("Failed to separate the input")
	}

	outputDir, stemPaths, err := r.writer.Write(src.Slug(), stems)
	if err != nil {
		return nil, "", errctx.Wrap(err).Error("Failed to write the run output")
	}

	if r.uploader != nil {
		if _, err := r.uploader.UploadStems(ctx, runID, stemPaths); err != nil {
			return nil, "", errctx.Wrap(err).Error("Failed to upload stems")
		}
	}

	return stemPaths, outputDir, nil
}
