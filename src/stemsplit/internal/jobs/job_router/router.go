package job_router

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/fetch"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/finalize"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/separate_stems"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/start"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/publish"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

// JobRouter dispatches queue messages to their handlers and publishes the
// next job in the chain: start → fetch → separate → finalize. A handler
// error puts the run into error status before the message is nacked.
type JobRouter struct {
	store           run.Store
	publisher       publish.Publisher
	startHandler    start.StartJobHandler
	fetchHandler    fetch.FetchJobHandler
	separateHandler separate_stems.SeparateJobHandler
	finalizeHandler finalize.FinalizeJobHandler
}

func NewJobRouter(
	store run.Store,
	publisher publish.Publisher,
	startHandler start.StartJobHandler,
	fetchHandler fetch.FetchJobHandler,
	separateHandler separate_stems.SeparateJobHandler,
	finalizeHandler finalize.FinalizeJobHandler,
) JobRouter {
	return JobRouter{
		store:           store,
		publisher:       publisher,
		startHandler:    startHandler,
		fetchHandler:    fetchHandler,
		separateHandler: separateHandler,
		finalizeHandler: finalizeHandler,
	}
}

func (j JobRouter) HandleMessage(message amqp091.Delivery) error {
	switch message.Type {
	case start.JobType:
		return j.handleStartJob(message.Body)
	case fetch.JobType:
		return j.handleFetchJob(message.Body)
	case separate_stems.JobType:
		return j.handleSeparateJob(message.Body)
	case finalize.JobType:
		return j.handleFinalizeJob(message.Body)
	default:
		return cerr.Field("message_type", message.Type).Error("Unrecognized message type")
	}
}

func (j JobRouter) handleStartJob(message []byte) error {
	params, err := j.startHandler.HandleStartJob(message)
	if err != nil {
		j.markRunFailure(message, start.ErrorMessage)
		return cerr.Wrap(err).Error(start.ErrorMessage)
	}

	nextJob := fetch.JobParams{
		RunIdentifier: params.RunIdentifier,
	}

	return j.publishJob(fetch.JobType, nextJob, message)
}

func (j JobRouter) handleFetchJob(message []byte) error {
	params, stagedFilePath, err := j.fetchHandler.HandleFetchJob(message)
	if err != nil {
		j.markRunFailure(message, fetch.ErrorMessage)
		return cerr.Wrap(err).Error(fetch.ErrorMessage)
	}

	nextJob := separate_stems.JobParams{
		RunIdentifier:  params.RunIdentifier,
		StagedFilePath: stagedFilePath,
	}

	return j.publishJob(separate_stems.JobType, nextJob, message)
}

func (j JobRouter) handleSeparateJob(message []byte) error {
	params, stemPaths, outputDir, err := j.separateHandler.HandleSeparateJob(message)
	if err != nil {
		j.markRunFailure(message, separate_stems.ErrorMessage)
		return cerr.Wrap(err).Error(separate_stems.ErrorMessage)
	}

	nextJob := finalize.JobParams{
		RunIdentifier: params.RunIdentifier,
		OutputDir:     outputDir,
		StemPaths:     stemPaths,
	}

	return j.publishJob(finalize.JobType, nextJob, message)
}

func (j JobRouter) handleFinalizeJob(message []byte) error {
	if err := j.finalizeHandler.HandleFinalizeJob(message); err != nil {
		j.markRunFailure(message, finalize.ErrorMessage)
		return cerr.Wrap(err).Error(finalize.ErrorMessage)
	}

	return nil
}

func (j JobRouter) publishJob(jobType string, params any, originalMessage []byte) error {
	body, err := json.Marshal(params)
	if err != nil {
		j.markRunFailure(originalMessage, "Failed to enqueue the next processing step")
		return cerr.Field("job_type", jobType).
			Wrap(err).Error("Failed to marshal the next job params")
	}

	err = j.publisher.Publish(amqp091.Publishing{
		Type: jobType,
		Body: body,
	})
	if err != nil {
		j.markRunFailure(originalMessage, "Failed to enqueue the next processing step")
		return cerr.Field("job_type", jobType).
			Wrap(err).Error("Failed to publish the next job")
	}

	return nil
}

// markRunFailure best-effort flips the run into error status so a user
// polling the registry sees what happened.
func (j JobRouter) markRunFailure(message []byte, errorMessage string) {
	identifier := job_message.RunIdentifier{}
	if err := json.Unmarshal(message, &identifier); err != nil || identifier.RunID == "" {
		cerr.Log(cerr.Wrap(err).Error("Cannot attribute job failure to a run"))
		return
	}

	err := j.store.UpdateRun(context.Background(), identifier.RunID, func(rn run.Run) (run.Run, error) {
		rn.Status = run.StatusError
		rn.ErrorMessage = errorMessage
		return rn, nil
	})
	if err != nil {
		cerr.Log(cerr.Field("run_id", identifier.RunID).
			Wrap(err).Error("Failed to record run failure"))
	}
}
