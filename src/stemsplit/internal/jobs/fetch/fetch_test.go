package fetch_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/dummy"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/fetch"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

var _ = Describe("Fetch", func() {
	var (
		tempDir    string
		workingDir string

		dummyRunStore   *dummy.RunStore
		dummyDownloader *dummy.Downloader

		fetcher fetch.InputFetcher
		handler fetch.JobHandler
	)

	registerRun := func(input string, kind source.Kind) run.Run {
		newRun := run.New(input, string(kind))
		err := dummyRunStore.CreateRun(context.Background(), newRun)
		Expect(err).NotTo(HaveOccurred())
		return newRun
	}

	marshalMessage := func(runID string) []byte {
		job := fetch.JobParams{
			RunIdentifier: job_message.RunIdentifier{RunID: runID},
		}

		message, err := json.Marshal(job)
		Expect(err).NotTo(HaveOccurred())
		return message
	}

	BeforeEach(func() {
		By("Creating scratch directories", func() {
			var err error
			tempDir, err = os.MkdirTemp("", "fetch-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, tempDir)

			workingDir = filepath.Join(tempDir, "work")
		})

		By("Instantiating all dummies", func() {
			dummyRunStore = dummy.NewRunStore()
			dummyDownloader = dummy.NewDummyDownloader()
		})

		By("Instantiating the handler", func() {
			resolver, err := source.NewResolver(dummyDownloader, workingDir)
			Expect(err).NotTo(HaveOccurred())

			fetcher, err = fetch.NewInputFetcher(resolver, dummyRunStore, workingDir)
			Expect(err).NotTo(HaveOccurred())

			handler = fetch.NewJobHandler(fetcher)
		})
	})

	Describe("Local input", func() {
		var inputPath string

		BeforeEach(func() {
			inputPath = filepath.Join(tempDir, "jam.mp3")
			err := os.WriteFile(inputPath, []byte("ID3\x04cool-jamz"), os.ModePerm)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the input path itself", func() {
			registeredRun := registerRun(inputPath, source.LocalPath)

			params, stagedPath, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(params.RunID).To(Equal(registeredRun.ID))
			Expect(stagedPath).To(Equal(inputPath))
		})

		It("leaves the input alone on staged cleanup", func() {
			registeredRun := registerRun(inputPath, source.LocalPath)

			_, _, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).NotTo(HaveOccurred())

			fetcher.CleanupStaged(registeredRun.ID)
			Expect(inputPath).To(BeAnExistingFile())
		})
	})

	Describe("Remote input", func() {
		const sourceURL = "https://audio.example.com/tracks/jam.mp3"

		BeforeEach(func() {
			dummyDownloader.AddURL(sourceURL, []byte("ID3\x04cool-jamz"))
		})

		It("stages the downloaded file under the run's staging dir", func() {
			registeredRun := registerRun(sourceURL, source.RemoteURL)

			_, stagedPath, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).NotTo(HaveOccurred())

			Expect(stagedPath).To(Equal(filepath.Join(workingDir, "staging", registeredRun.ID, "jam.mp3")))
			contents, readErr := os.ReadFile(stagedPath)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(contents).To(Equal([]byte("ID3\x04cool-jamz")))
		})

		It("leaves no download temp dirs behind", func() {
			registeredRun := registerRun(sourceURL, source.RemoteURL)

			_, _, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).NotTo(HaveOccurred())

			dirEntries, readErr := os.ReadDir(filepath.Join(workingDir, "tmp"))
			Expect(readErr).NotTo(HaveOccurred())
			Expect(dirEntries).To(BeEmpty())
		})

		It("removes the staged file on cleanup", func() {
			registeredRun := registerRun(sourceURL, source.RemoteURL)

			_, stagedPath, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).NotTo(HaveOccurred())

			fetcher.CleanupStaged(registeredRun.ID)
			Expect(stagedPath).NotTo(BeAnExistingFile())
		})

		It("fails when the download fails", func() {
			dummyDownloader.Unavailable = true
			registeredRun := registerRun(sourceURL, source.RemoteURL)

			_, _, err := handler.HandleFetchJob(marshalMessage(registeredRun.ID))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Poorly formed message", func() {
		It("returns error for a missing run ID", func() {
			_, _, err := handler.HandleFetchJob(marshalMessage(""))
			Expect(err).To(HaveOccurred())
		})

		It("returns error for an unknown run ID", func() {
			_, _, err := handler.HandleFetchJob(marshalMessage("no-such-run"))
			Expect(err).To(HaveOccurred())
		})
	})
})
