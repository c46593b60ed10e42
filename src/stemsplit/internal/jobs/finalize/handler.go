package finalize

import (
	"context"
	"encoding/json"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "finalize_run"
const ErrorMessage string = "Failed to record the finished run"

type JobParams struct {
	job_message.RunIdentifier
	OutputDir string            `json:"output_dir"`
	StemPaths map[string]string `json:"stem_paths"`
}

//counterfeiter:generate . FinalizeJobHandler
type FinalizeJobHandler interface {
	HandleFinalizeJob(message []byte) error
}

func NewJobHandler(store run.Store) JobHandler {
	return JobHandler{
		store: store,
	}
}

type JobHandler struct {
	store run.Store
}

func (f JobHandler) HandleFinalizeJob(message []byte) error {
	params, err := unmarshalMessage(message)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_params", params)

	updater := func(rn run.Run) (run.Run, error) {
		rn.Status = run.StatusComplete
		rn.OutputDir = params.OutputDir
		rn.StemPaths = params.StemPaths
		rn.ErrorMessage = ""
		return rn, nil
	}

	if err := f.store.UpdateRun(context.Background(), params.RunID, updater); err != nil {
		return errctx.Wrap(err).Error("Failed to update run")
	}

	return nil
}

func unmarshalMessage(message []byte) (JobParams, error) {
	params := JobParams{}
	if err := json.Unmarshal(message, &params); err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_params", params)

	if params.RunID == "" {
		return JobParams{}, errctx.Error("Missing run ID")
	}

	if params.OutputDir == "" {
		return JobParams{}, errctx.Error("Missing output dir")
	}

	if len(params.StemPaths) == 0 {
		return JobParams{}, errctx.Error("Missing stem paths")
	}

	return params, nil
}
