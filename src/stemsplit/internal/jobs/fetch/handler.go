package fetch

import (
	"context"
	"encoding/json"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "fetch_input"
const ErrorMessage string = "Failed to fetch the input audio"

//counterfeiter:generate . FetchJobHandler
type FetchJobHandler interface {
	HandleFetchJob(message []byte) (JobParams, string, error)
}

type JobParams struct {
	job_message.RunIdentifier
}

func NewJobHandler(fetcher InputFetcher) JobHandler {
	return JobHandler{
		fetcher: fetcher,
	}
}

type JobHandler struct {
	fetcher InputFetcher
}

func (h JobHandler) HandleFetchJob(message []byte) (JobParams, string, error) {
	params := JobParams{}
	if err := json.Unmarshal(message, &params); err != nil {
		return JobParams{}, "", cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	if params.RunID == "" {
		return JobParams{}, "", cerr.Field("job_params", params).Error("Missing run ID")
	}

	stagedPath, err := h.fetcher.Fetch(context.Background(), params.RunID)
	if err != nil {
		return JobParams{}, "", cerr.Field("job_params", params).
			Wrap(err).Error("Failed to fetch the run input")
	}

	return params, stagedPath, nil
}
