package start

import (
	"context"
	"encoding/json"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "start_run"
const ErrorMessage string = "Failed to start processing the separation run"

//counterfeiter:generate . StartJobHandler
type StartJobHandler interface {
	HandleStartJob(message []byte) (JobParams, error)
}

type JobParams struct {
	job_message.RunIdentifier
}

func NewJobHandler(store run.Store) JobHandler {
	return JobHandler{
		store: store,
	}
}

type JobHandler struct {
	store run.Store
}

func (d JobHandler) HandleStartJob(message []byte) (JobParams, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("run_id", params.RunID)

	updater := func(rn run.Run) (run.Run, error) {
		if rn.Status != run.StatusRequested {
			return run.Run{}, errctx.Field("status", rn.Status).
				Error("Run is not in requested status, abort processing to be safe")
		}

		rn.Status = run.StatusProcessing
		return rn, nil
	}

	if err := d.store.UpdateRun(context.Background(), params.RunID, updater); err != nil {
		return JobParams{}, errctx.Wrap(err).Error("Failed to set the run status")
	}

	return params, nil
}

func unmarshalMessage(message []byte) (JobParams, error) {
	params := JobParams{}
	if err := json.Unmarshal(message, &params); err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	if params.RunID == "" {
		return JobParams{}, cerr.Field("job_params", params).Error("Missing run ID")
	}

	return params, nil
}
