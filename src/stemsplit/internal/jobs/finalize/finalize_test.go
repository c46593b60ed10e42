package finalize_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/dummy"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/finalize"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/jobs/job_message"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

var _ = Describe("Finalize", func() {
	var (
		dummyRunStore *dummy.RunStore

		handler finalize.JobHandler

		registeredRun run.Run
		stemPaths     map[string]string
	)

	BeforeEach(func() {
		By("Setting up the dummy run store data", func() {
			dummyRunStore = dummy.NewRunStore()

			registeredRun = run.New("/music/jam.mp3", "local_path")
			registeredRun.Status = run.StatusProcessing
			err := dummyRunStore.CreateRun(context.Background(), registeredRun)
			Expect(err).NotTo(HaveOccurred())
		})

		By("Initializing the stem paths", func() {
			stemPaths = map[string]string{
				"vocals": "/outputs/jam_20240504/vocals.mp3",
				"drums":  "/outputs/jam_20240504/drums.mp3",
			}
		})

		By("Instantiating the handler", func() {
			handler = finalize.NewJobHandler(dummyRunStore)
		})
	})

	marshalMessage := func(params finalize.JobParams) []byte {
		message, err := json.Marshal(params)
		Expect(err).NotTo(HaveOccurred())
		return message
	}

	Describe("Well formed message", func() {
		var message []byte

		BeforeEach(func() {
			message = marshalMessage(finalize.JobParams{
				RunIdentifier: job_message.RunIdentifier{RunID: registeredRun.ID},
				OutputDir:     "/outputs/jam_20240504",
				StemPaths:     stemPaths,
			})
		})

		It("marks the run complete with its output", func() {
			err := handler.HandleFinalizeJob(message)
			Expect(err).NotTo(HaveOccurred())

			storedRun, getErr := dummyRunStore.GetRun(context.Background(), registeredRun.ID)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(storedRun.Status).To(Equal(run.StatusComplete))
			Expect(storedRun.OutputDir).To(Equal("/outputs/jam_20240504"))
			Expect(storedRun.StemPaths).To(Equal(stemPaths))
			Expect(storedRun.ErrorMessage).To(BeEmpty())
		})

		Describe("Can't reach the run store", func() {
			BeforeEach(func() {
				dummyRunStore.Unavailable = true
			})

			It("returns an error", func() {
				err := handler.HandleFinalizeJob(message)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Poorly formed message", func() {
		It("returns error without an output dir", func() {
			message := marshalMessage(finalize.JobParams{
				RunIdentifier: job_message.RunIdentifier{RunID: registeredRun.ID},
				StemPaths:     stemPaths,
			})

			Expect(handler.HandleFinalizeJob(message)).NotTo(Succeed())
		})

		It("returns error without stem paths", func() {
			message := marshalMessage(finalize.JobParams{
				RunIdentifier: job_message.RunIdentifier{RunID: registeredRun.ID},
				OutputDir:     "/outputs/jam_20240504",
			})

			Expect(handler.HandleFinalizeJob(message)).NotTo(Succeed())
		})

		It("returns error without a run ID", func() {
			message := marshalMessage(finalize.JobParams{
				OutputDir: "/outputs/jam_20240504",
				StemPaths: stemPaths,
			})

			Expect(handler.HandleFinalizeJob(message)).NotTo(Succeed())
		})
	})
})
