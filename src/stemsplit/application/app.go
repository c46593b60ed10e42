package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stemtools/stemsplit/src/shared/config"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/executor"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/filestore"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/fetch"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/finalize"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_router"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/separate_stems"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/start"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/lib/storagepath"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/pipeline"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/publish"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/registry"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/worker"
	"google.golang.org/api/option"
)

// App owns the long-lived pieces every command needs: config and the run
// registry. Everything else is assembled per use.
type App struct {
	cfg   config.Config
	store *registry.Registry
}

func NewApp(cfg config.Config) (App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return App{}, cerr.Wrap(err).Error("Failed to create app directories")
	}

	store, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return App{}, cerr.Wrap(err).Error("Failed to open the run registry")
	}

	return App{
		cfg:   cfg,
		store: store,
	}, nil
}

func (a App) Close() error {
	return a.store.Close()
}

func (a App) Store() run.Store {
	return a.store
}

// RunPipeline registers a run for the input and executes it synchronously.
func (a App) RunPipeline(ctx context.Context, input string) (pipeline.Result, error) {
	rn, err := a.registerRun(ctx, input)
	if err != nil {
		return pipeline.Result{}, err
	}

	p, err := a.newPipeline(ctx)
	if err != nil {
		return pipeline.Result{}, cerr.Wrap(err).Error("Failed to assemble the pipeline")
	}

	return p.Execute(ctx, rn.ID)
}

// Enqueue registers a run and publishes its start job to the queue.
func (a App) Enqueue(ctx context.Context, input string) (run.Run, error) {
	if a.cfg.Queue.URL == "" {
		return run.Run{}, cerr.Error("No RabbitMQ URL configured")
	}

	rn, err := a.registerRun(ctx, input)
	if err != nil {
		return run.Run{}, err
	}

	publisher, err := publish.NewQueuePublisher(a.cfg.Queue.URL, a.cfg.Queue.Name)
	if err != nil {
		return run.Run{}, cerr.Wrap(err).Error("Failed to create the queue publisher")
	}

	params := start.JobParams{}
	params.RunID = rn.ID

	body, err := json.Marshal(params)
	if err != nil {
		return run.Run{}, cerr.Wrap(err).Error("Failed to marshal the start job")
	}

	err = publisher.Publish(amqp091.Publishing{
		Type: start.JobType,
		Body: body,
	})
	if err != nil {
		return run.Run{}, cerr.Field("run_id", rn.ID).
			Wrap(err).Error("Failed to publish the start job")
	}

	return rn, nil
}

// StartWorker connects to the queue and consumes jobs until the channel dies.
func (a App) StartWorker(ctx context.Context) error {
	if a.cfg.Queue.URL == "" {
		return cerr.Error("No RabbitMQ URL configured")
	}

	consumerConn, err := amqp091.Dial(a.cfg.Queue.URL)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to dial RabbitMQ")
	}

	publisher, err := publish.NewQueuePublisher(a.cfg.Queue.URL, a.cfg.Queue.Name)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to create the queue publisher")
	}

	jobRouter, err := a.newJobRouter(ctx, publisher)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to assemble the job router")
	}

	queueWorker, err := worker.NewQueueWorkerFromConnection(consumerConn, a.cfg.Queue.Name, jobRouter)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to create the queue worker")
	}

	if err := queueWorker.Start(); err != nil {
		return cerr.Wrap(err).Error("Failed to start worker")
	}

	return nil
}

func (a App) registerRun(ctx context.Context, input string) (run.Run, error) {
	src, err := source.Parse(input)
	if err != nil {
		return run.Run{}, cerr.Wrap(err).Error("Failed to parse input")
	}

	rn := run.New(input, string(src.Kind))
	if err := a.store.CreateRun(ctx, rn); err != nil {
		return run.Run{}, cerr.Wrap(err).Error("Failed to register run")
	}

	return rn, nil
}

func (a App) newPipeline(ctx context.Context) (pipeline.Pipeline, error) {
	resolver, err := a.newResolver()
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	separator, err := a.newSeparator()
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	uploader, err := a.newUploader(ctx)
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	return pipeline.New(
		resolver,
		separator,
		output.NewRunWriter(a.cfg.OutputDir),
		a.store,
		uploader,
		a.cfg.WorkingDir,
	)
}

func (a App) newJobRouter(ctx context.Context, publisher publish.Publisher) (job_router.JobRouter, error) {
	resolver, err := a.newResolver()
	if err != nil {
		return job_router.JobRouter{}, err
	}

	fetcher, err := fetch.NewInputFetcher(resolver, a.store, a.cfg.WorkingDir)
	if err != nil {
		return job_router.JobRouter{}, cerr.Wrap(err).Error("Failed to create the input fetcher")
	}

	separator, err := a.newSeparator()
	if err != nil {
		return job_router.JobRouter{}, err
	}

	uploader, err := a.newUploader(ctx)
	if err != nil {
		return job_router.JobRouter{}, err
	}

	runSeparator, err := separate_stems.NewRunSeparator(
		separator,
		output.NewRunWriter(a.cfg.OutputDir),
		a.store,
		uploader,
		a.cfg.WorkingDir,
	)
	if err != nil {
		return job_router.JobRouter{}, cerr.Wrap(err).Error("Failed to create the run separator")
	}

	return job_router.NewJobRouter(
		a.store,
		publisher,
		start.NewJobHandler(a.store),
		fetch.NewJobHandler(fetcher),
		separate_stems.NewJobHandler(runSeparator, fetcher),
		finalize.NewJobHandler(a.store),
	), nil
}

func (a App) newResolver() (source.Resolver, error) {
	downloader := source.NewHTTPDownloader(
		time.Duration(a.cfg.Download.TimeoutSeconds)*time.Second,
		a.cfg.Download.Retries,
	)

	resolver, err := source.NewResolver(downloader, a.cfg.WorkingDir)
	if err != nil {
		return source.Resolver{}, cerr.Wrap(err).Error("Failed to create the input resolver")
	}

	return resolver, nil
}

func (a App) newSeparator() (separate.DemucsSeparator, error) {
	demucsBinPath, err := a.cfg.DemucsPath()
	if err != nil {
		return separate.DemucsSeparator{}, cerr.Wrap(err).Error("Failed to locate the demucs binary")
	}

	separator, err := separate.NewDemucsSeparator(
		a.cfg.WorkingDir,
		demucsBinPath,
		a.cfg.Demucs.Model,
		a.cfg.Demucs.MP3,
		executor.BinaryFileExecutor{},
	)
	if err != nil {
		return separate.DemucsSeparator{}, cerr.Wrap(err).Error("Failed to create the demucs separator")
	}

	return separator, nil
}

func (a App) newUploader(ctx context.Context) (*filestore.Uploader, error) {
	if !a.cfg.Upload.Enabled {
		return nil, nil
	}

	if a.cfg.Upload.Bucket == "" {
		return nil, cerr.Error("Upload is enabled but no bucket is configured")
	}

	var opts []option.ClientOption
	if a.cfg.Upload.SecretKey != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.Upload.SecretKey)))
	}

	fileStore, err := filestore.NewGoogleFileStore(ctx, a.cfg.Upload.StorageHost, opts...)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to create the cloud file store")
	}

	uploader := filestore.NewUploader(fileStore, storagepath.Generator{
		Host:   a.cfg.Upload.StorageHost,
		Bucket: a.cfg.Upload.Bucket,
	})

	return &uploader, nil
}
