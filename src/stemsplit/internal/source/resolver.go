package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/working_dir"
)

// ResolvedInput is a local, verified audio file ready for separation.
// Cleanup removes any staging file created for a downloaded input and is
// safe to call for local inputs too.
type ResolvedInput struct {
	Path    string
	Source  AudioSource
	Cleanup func()
}

type Resolver struct {
	downloader Downloader
	workingDir working_dir.WorkingDir
}

func NewResolver(downloader Downloader, workingDirStr string) (Resolver, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return Resolver{}, cerr.Field("working_dir_str", workingDirStr).
			Wrap(err).Error("Failed to create working dir")
	}

	return Resolver{
		downloader: downloader,
		workingDir: workingDir,
	}, nil
}

// Resolve turns the raw user input into a verified local audio file,
// downloading it first when the input is a URL.
func (r Resolver) Resolve(ctx context.Context, input string) (ResolvedInput, error) {
	src, err := Parse(input)
	if err != nil {
		return ResolvedInput{}, cerr.Wrap(err).Error("Failed to parse input")
	}

	errctx := cerr.Field("input", input).Field("source_kind", src.Kind)

	switch src.Kind {
	case LocalPath:
		return r.resolveLocal(src, errctx)
	case RemoteURL:
		return r.resolveRemote(ctx, src, errctx)
	default:
		return ResolvedInput{}, errctx.Error("Unexpected source kind")
	}
}

func (r Resolver) resolveLocal(src AudioSource, errctx cerr.ErrorContext) (ResolvedInput, error) {
	absPath, err := filepath.Abs(src.Raw)
	if err != nil {
		return ResolvedInput{}, errctx.Wrap(err).Error("Failed to convert input path to absolute format")
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ResolvedInput{}, errctx.Wrap(errors.Mark(err, ErrNotFound)).
				Error("Local input file does not exist")
		}
		return ResolvedInput{}, errctx.Wrap(err).Error("Failed to stat input file")
	}

	if info.IsDir() {
		return ResolvedInput{}, errctx.Wrap(ErrUnsupportedFormat).Error("Input path is a directory")
	}

	if err := VerifyFormat(absPath); err != nil {
		return ResolvedInput{}, errctx.Wrap(err).Error("Input file failed the format check")
	}

	return ResolvedInput{
		Path:    absPath,
		Source:  src,
		Cleanup: func() {},
	}, nil
}

func (r Resolver) resolveRemote(ctx context.Context, src AudioSource, errctx cerr.ErrorContext) (ResolvedInput, error) {
	tempDir, cleanUpTempDir, err := r.workingDir.MakeTempDir("download-*")
	if err != nil {
		return ResolvedInput{}, errctx.Wrap(err).Error("Failed to create temp dir to download to")
	}

	outFilePath := filepath.Join(tempDir, src.FileName())

	if err := r.downloader.Download(ctx, src.Raw, outFilePath); err != nil {
		cleanUpTempDir()
		return ResolvedInput{}, errctx.Wrap(err).Error("Failed to download input")
	}

	if err := VerifyFormat(outFilePath); err != nil {
		cleanUpTempDir()
		return ResolvedInput{}, errctx.Wrap(err).Error("Downloaded file failed the format check")
	}

	log.WithField("path", outFilePath).Info("Downloaded input to staging file")

	return ResolvedInput{
		Path:    outFilePath,
		Source:  src,
		Cleanup: cleanUpTempDir,
	}, nil
}
