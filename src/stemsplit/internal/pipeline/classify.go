package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

// FailureKind names the stage a run error belongs to, for user-facing
// reporting and exit codes.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureNotFound          FailureKind = "input_not_found"
	FailureDownload          FailureKind = "download"
	FailureUnsupportedFormat FailureKind = "unsupported_format"
	FailureSeparation        FailureKind = "separation"
	FailureWrite             FailureKind = "write"
	FailureInternal          FailureKind = "internal"
)

func ClassifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, source.ErrNotFound):
		return FailureNotFound
	case errors.Is(err, source.ErrDownload):
		return FailureDownload
	case errors.Is(err, source.ErrUnsupportedFormat):
		return FailureUnsupportedFormat
	case errors.Is(err, separate.ErrSeparation):
		return FailureSeparation
	case errors.Is(err, output.ErrWrite):
		return FailureWrite
	default:
		return FailureInternal
	}
}
