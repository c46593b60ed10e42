package worker_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/dummy"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/fetch"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/finalize"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_router"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/separate_stems"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/start"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/worker"
)

var _ = Describe("QueueWorker", func() {
	var (
		tempDir    string
		workingDir string
		outputDir  string

		sourceURL         string
		originalTrackData []byte

		rabbitMQ        *dummy.RabbitMQ
		runStore        *dummy.RunStore
		dummyDownloader *dummy.Downloader
		demucsExecutor  *dummy.DemucsExecutor

		registeredRun run.Run
		queueWorker   worker.QueueWorker
		startRun      func()
	)

	BeforeEach(func() {
		By("Assigning data to variables", func() {
			sourceURL = "https://audio.example.com/tracks/jam.mp3"
			originalTrackData = []byte("ID3\x04cool-jamz")
		})

		By("Creating scratch directories", func() {
			var err error
			tempDir, err = os.MkdirTemp("", "worker-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, tempDir)

			workingDir = filepath.Join(tempDir, "work")
			outputDir = filepath.Join(tempDir, "stem_outputs")
		})

		By("Instantiating all dummies", func() {
			rabbitMQ = dummy.NewRabbitMQ()
			runStore = dummy.NewRunStore()
			dummyDownloader = dummy.NewDummyDownloader()
			demucsExecutor = dummy.NewDummyDemucsExecutor()
		})

		By("Setting up the run store and downloader", func() {
			registeredRun = run.New(sourceURL, string(source.RemoteURL))
			err := runStore.CreateRun(context.Background(), registeredRun)
			Expect(err).NotTo(HaveOccurred())

			dummyDownloader.AddURL(sourceURL, originalTrackData)
		})

		var startHandler start.JobHandler
		By("Creating the start job handler", func() {
			startHandler = start.NewJobHandler(runStore)
		})

		var fetcher fetch.InputFetcher
		var fetchHandler fetch.JobHandler
		By("Creating the fetch job handler", func() {
			resolver, err := source.NewResolver(dummyDownloader, workingDir)
			Expect(err).NotTo(HaveOccurred())

			fetcher, err = fetch.NewInputFetcher(resolver, runStore, workingDir)
			Expect(err).NotTo(HaveOccurred())

			fetchHandler = fetch.NewJobHandler(fetcher)
		})

		var separateHandler separate_stems.JobHandler
		By("Creating the separate job handler", func() {
			separator, err := separate.NewDemucsSeparator(workingDir, "/whatever/demucs", "htdemucs_6s", true, demucsExecutor)
			Expect(err).NotTo(HaveOccurred())

			writer := output.NewRunWriter(outputDir)

			runSeparator, err := separate_stems.NewRunSeparator(separator, writer, runStore, nil, workingDir)
			Expect(err).NotTo(HaveOccurred())

			separateHandler = separate_stems.NewJobHandler(runSeparator, fetcher)
		})

		var finalizeHandler finalize.JobHandler
		By("Creating the finalize job handler", func() {
			finalizeHandler = finalize.NewJobHandler(runStore)
		})

		By("Instantiating the worker", func() {
			router := job_router.NewJobRouter(
				runStore,
				rabbitMQ,
				startHandler,
				fetchHandler,
				separateHandler,
				finalizeHandler,
			)
			queueWorker = worker.NewQueueWorker(rabbitMQ, "test-queue", router)
			DeferCleanup(func() { queueWorker.Stop() })
		})

		By("Setting up the run routine", func() {
			startRun = func() {
				go func() {
					defer GinkgoRecover()
					err := queueWorker.Start()
					Expect(err).NotTo(HaveOccurred())
				}()

				startJobParams := start.JobParams{
					RunIdentifier: job_message.RunIdentifier{
						RunID: registeredRun.ID,
					},
				}

				jsonBytes, err := json.Marshal(startJobParams)
				Expect(err).NotTo(HaveOccurred())

				message := amqp091.Publishing{
					Type: start.JobType,
					Body: jsonBytes,
				}
				err = rabbitMQ.Publish(message)
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})

	Describe("All jobs run successfully", func() {
		It("gets 4 acks", func() {
			startRun()

			Eventually(rabbitMQ.Acks, "5s").Should(Equal(4))
		})

		It("gets no nacks", func() {
			startRun()

			Eventually(rabbitMQ.Acks, "5s").Should(Equal(4))
			Consistently(rabbitMQ.Nacks).Should(Equal(0))
		})

		It("completes the run with every stem on disk", func() {
			startRun()

			Eventually(func() bool {
				storedRun, err := runStore.GetRun(context.Background(), registeredRun.ID)
				if err != nil {
					return false
				}

				if storedRun.Status != run.StatusComplete {
					return false
				}

				if len(storedRun.StemPaths) != 6 {
					return false
				}

				for label, stemPath := range storedRun.StemPaths {
					contents, err := os.ReadFile(stemPath)
					if err != nil {
						return false
					}

					expectedContent := string(originalTrackData) + "-" + label
					if string(contents) != expectedContent {
						return false
					}
				}

				return true
			}, "5s").Should(BeTrue())
		})

		It("cleans up the staged download", func() {
			startRun()

			Eventually(rabbitMQ.Acks, "5s").Should(Equal(4))
			Expect(filepath.Join(workingDir, "staging", registeredRun.ID)).NotTo(BeADirectory())
		})
	})

	Describe("Separation fails", func() {
		BeforeEach(func() {
			demucsExecutor.Unavailable = true
		})

		It("acks the jobs before the failure", func() {
			startRun()

			Eventually(rabbitMQ.Acks, "5s").Should(Equal(2))
		})

		It("nacks the separate job", func() {
			startRun()

			Eventually(rabbitMQ.Nacks, "5s").Should(Equal(1))
		})

		It("reports the error status", func() {
			startRun()

			Eventually(func() bool {
				storedRun, err := runStore.GetRun(context.Background(), registeredRun.ID)
				if err != nil {
					return false
				}

				return storedRun.Status == run.StatusError &&
					storedRun.ErrorMessage == separate_stems.ErrorMessage
			}, "5s").Should(BeTrue())
		})
	})

	Describe("Download fails", func() {
		BeforeEach(func() {
			dummyDownloader.Unavailable = true
		})

		It("nacks the fetch job and reports the error status", func() {
			startRun()

			Eventually(rabbitMQ.Nacks, "5s").Should(Equal(1))

			storedRun, err := runStore.GetRun(context.Background(), registeredRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.Status).To(Equal(run.StatusError))
			Expect(storedRun.ErrorMessage).To(Equal(fetch.ErrorMessage))
		})
	})
})
