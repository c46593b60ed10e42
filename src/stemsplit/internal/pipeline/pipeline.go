package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/working_dir"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/filestore"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

// Result is what a completed run hands to the report.
type Result struct {
	Run           run.Run
	OutputDir     string
	StemPaths     map[string]string
	RemoteURLs    map[string]string
	InputDuration time.Duration
	InputMeta     source.Metadata
}

// Pipeline runs the linear resolve → separate → write flow for one input,
// recording progress in the run store as it goes.
type Pipeline struct {
	resolver   source.Resolver
	separator  separate.FileSeparator
	writer     output.RunWriter
	store      run.Store
	uploader   *filestore.Uploader
	workingDir working_dir.WorkingDir
}

func New(
	resolver source.Resolver,
	separator separate.FileSeparator,
	writer output.RunWriter,
	store run.Store,
	uploader *filestore.Uploader,
	workingDirStr string,
) (Pipeline, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return Pipeline{}, cerr.Field("working_dir_str", workingDirStr).
			Wrap(err).Error("Failed to create working dir")
	}

	return Pipeline{
		resolver:   resolver,
		separator:  separator,
		writer:     writer,
		store:      store,
		uploader:   uploader,
		workingDir: workingDir,
	}, nil
}

// Execute runs the whole pipeline for an already registered run.
func (p Pipeline) Execute(ctx context.Context, runID string) (Result, error) {
	errctx := cerr.Field("run_id", runID)

	rn, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, errctx.Wrap(err).Error("Failed to load run")
	}

	if err := p.markProcessing(ctx, runID); err != nil {
		return Result{}, errctx.Wrap(err).Error("Failed to mark run as processing")
	}

	result, err := p.execute(ctx, rn)
	if err != nil {
		p.markError(ctx, runID, err)
		return Result{}, errctx.Wrap(err).Error("Run failed")
	}

	return result, nil
}

func (p Pipeline) execute(ctx context.Context, rn run.Run) (Result, error) {
	logger := log.WithFields(log.Fields{
		"run_id": rn.ID,
		"input":  rn.Input,
	})
	logger.Info("Starting run")

	resolved, err := p.resolver.Resolve(ctx, rn.Input)
	if err != nil {
		return Result{}, cerr.Wrap(err).Error("Failed to resolve input")
	}
	defer resolved.Cleanup()

	separationDir, cleanUpSeparationDir, err := p.workingDir.MakeTempDir("separate-*")
	if err != nil {
		return Result{}, cerr.Wrap(err).Error("Failed to create separation staging dir")
	}
	defer cleanUpSeparationDir()

	stems, err := p.separator.Separate(ctx, resolved.Path, separationDir)
	if err != nil {
		return Result{}, cerr.Wrap(err).Error("Failed to separate input into stems")
	}

	outputDir, stemPaths, err := p.writer.Write(resolved.Source.Slug(), stems)
	if err != nil {
		return Result{}, cerr.Wrap(err).Error("Failed to write run output")
	}

	var remoteURLs map[string]string
	if p.uploader != nil {
		remoteURLs, err = p.uploader.UploadStems(ctx, rn.ID, stemPaths)
		if err != nil {
			return Result{}, cerr.Wrap(err).Error("Failed to upload stems")
		}
	}

	if err := p.markComplete(ctx, rn.ID, outputDir, stemPaths); err != nil {
		return Result{}, cerr.Wrap(err).Error("Failed to mark run as complete")
	}

	logger.WithField("output_dir", outputDir).Info("Run complete")

	result := Result{
		Run:        rn,
		OutputDir:  outputDir,
		StemPaths:  stemPaths,
		RemoteURLs: remoteURLs,
		InputMeta:  source.ProbeMetadata(resolved.Path),
	}

	if strings.EqualFold(filepath.Ext(resolved.Path), ".mp3") {
		if duration, err := source.MP3Duration(resolved.Path); err == nil {
			result.InputDuration = duration
		}
	}

	return result, nil
}

func (p Pipeline) markProcessing(ctx context.Context, runID string) error {
	return p.store.UpdateRun(ctx, runID, func(rn run.Run) (run.Run, error) {
		if rn.Status != run.StatusRequested {
			return run.Run{}, cerr.Field("status", rn.Status).
				Error("Run is not in requested status, abort processing to be safe")
		}

		rn.Status = run.StatusProcessing
		return rn, nil
	})
}

func (p Pipeline) markComplete(ctx context.Context, runID string, outputDir string, stemPaths map[string]string) error {
	return p.store.UpdateRun(ctx, runID, func(rn run.Run) (run.Run, error) {
		rn.Status = run.StatusComplete
		rn.OutputDir = outputDir
		rn.StemPaths = stemPaths
		rn.ErrorMessage = ""
		return rn, nil
	})
}

func (p Pipeline) markError(ctx context.Context, runID string, runErr error) {
	err := p.store.UpdateRun(ctx, runID, func(rn run.Run) (run.Run, error) {
		rn.Status = run.StatusError
		rn.ErrorMessage = runErr.Error()
		return rn, nil
	})
	if err != nil {
		cerr.Log(cerr.Field("run_id", runID).Wrap(err).Error("Failed to record run error"))
	}
}
