package separate_stems

import (
	"context"
	"encoding/json"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/fetch"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "separate_stems"
const ErrorMessage string = "Failed to separate the source audio into stems"

type JobParams struct {
	job_message.RunIdentifier
	StagedFilePath string `json:"staged_file_path"`
}

//counterfeiter:generate . SeparateJobHandler
type SeparateJobHandler interface {
	HandleSeparateJob(message []byte) (JobParams, map[string]string, string, error)
}

func NewJobHandler(runSeparator RunSeparator, fetcher fetch.InputFetcher) JobHandler {
	return JobHandler{
		runSeparator: runSeparator,
		fetcher:      fetcher,
	}
}

type JobHandler struct {
	runSeparator RunSeparator
	fetcher      fetch.InputFetcher
}

func (s JobHandler) HandleSeparateJob(message []byte) (JobParams, map[string]string, string, error) {
	params := JobParams{}
	if err := json.Unmarshal(message, &params); err != nil {
		return JobParams{}, nil, "", cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_params", params)

	if params.RunID == "" {
		return JobParams{}, nil, "", errctx.Error("Missing run ID")
	}

	if params.StagedFilePath == "" {
		return JobParams{}, nil, "", errctx.Error("Missing staged file path")
	}

	// the staged download is no longer needed whichever way this goes
	defer s.fetcher.CleanupStaged(params.RunID)

	stemPaths, outputDir, err := s.runSeparator.SeparateRun(context.Background(), params.RunID, params.StagedFilePath)
	if err != nil {
		return JobParams{}, nil, "", errctx.Wrap(err).Error("Failed to separate the run")
	}

	return params, stemPaths, outputDir, nil
}
