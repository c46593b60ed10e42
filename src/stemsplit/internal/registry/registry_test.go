package registry_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/registry"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

var _ = Describe("Registry", func() {
	var (
		dbPath string
		store  *registry.Registry
	)

	BeforeEach(func() {
		tempDir, err := os.MkdirTemp("", "registry-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tempDir)

		dbPath = filepath.Join(tempDir, "runs.db")

		store, err = registry.Open(dbPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.Close() })
	})

	Describe("Create and get", func() {
		It("round trips a run", func() {
			newRun := run.New("/music/jam.mp3", "local_path")

			err := store.CreateRun(context.Background(), newRun)
			Expect(err).NotTo(HaveOccurred())

			storedRun, err := store.GetRun(context.Background(), newRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.ID).To(Equal(newRun.ID))
			Expect(storedRun.Input).To(Equal("/music/jam.mp3"))
			Expect(storedRun.SourceKind).To(Equal("local_path"))
			Expect(storedRun.Status).To(Equal(run.StatusRequested))
			Expect(storedRun.StemPaths).To(BeEmpty())
			Expect(storedRun.CreatedAt).To(BeTemporally("~", newRun.CreatedAt, time.Millisecond))
		})

		It("reports an unknown run ID", func() {
			_, err := store.GetRun(context.Background(), "no-such-run")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Update", func() {
		var existingRun run.Run

		BeforeEach(func() {
			existingRun = run.New("/music/jam.mp3", "local_path")
			err := store.CreateRun(context.Background(), existingRun)
			Expect(err).NotTo(HaveOccurred())
		})

		It("persists the updater's changes", func() {
			err := store.UpdateRun(context.Background(), existingRun.ID, func(r run.Run) (run.Run, error) {
				r.Status = run.StatusComplete
				r.OutputDir = "/outputs/jam_20240504"
				r.StemPaths = map[string]string{"vocals": "/outputs/jam_20240504/vocals.mp3"}
				return r, nil
			})
			Expect(err).NotTo(HaveOccurred())

			storedRun, err := store.GetRun(context.Background(), existingRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.Status).To(Equal(run.StatusComplete))
			Expect(storedRun.OutputDir).To(Equal("/outputs/jam_20240504"))
			Expect(storedRun.StemPaths).To(HaveKeyWithValue("vocals", "/outputs/jam_20240504/vocals.mp3"))
			Expect(storedRun.UpdatedAt.After(storedRun.CreatedAt)).To(BeTrue())
		})

		It("propagates the updater's error and leaves the run unchanged", func() {
			updateErr := store.UpdateRun(context.Background(), existingRun.ID, func(r run.Run) (run.Run, error) {
				return run.Run{}, context.DeadlineExceeded
			})
			Expect(updateErr).To(HaveOccurred())

			storedRun, err := store.GetRun(context.Background(), existingRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.Status).To(Equal(run.StatusRequested))
		})

		It("reports an unknown run ID", func() {
			err := store.UpdateRun(context.Background(), "no-such-run", func(r run.Run) (run.Run, error) {
				return r, nil
			})
			Expect(err).To(HaveOccurred())
		})

		It("keeps every concurrent updater's changes", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()

					label := fmt.Sprintf("stem_%d", i)
					err := store.UpdateRun(context.Background(), existingRun.ID, func(r run.Run) (run.Run, error) {
						if r.StemPaths == nil {
							r.StemPaths = map[string]string{}
						}
						r.StemPaths[label] = "/outputs/jam/" + label + ".mp3"
						return r, nil
					})
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			storedRun, err := store.GetRun(context.Background(), existingRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.StemPaths).To(HaveLen(8))
		})
	})

	Describe("ListRecent", func() {
		BeforeEach(func() {
			base := time.Now().UTC().Add(-time.Hour)
			for i := 0; i < 5; i++ {
				rn := run.New("/music/jam.mp3", "local_path")
				rn.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				rn.UpdatedAt = rn.CreatedAt
				err := store.CreateRun(context.Background(), rn)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns the newest runs first", func() {
			runs, err := store.ListRecent(context.Background(), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(5))

			for i := 1; i < len(runs); i++ {
				Expect(runs[i-1].CreatedAt.After(runs[i].CreatedAt)).To(BeTrue())
			}
		})

		It("honors the limit", func() {
			runs, err := store.ListRecent(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(2))
		})
	})

	Describe("Reopening the database", func() {
		It("sees previously written runs", func() {
			existingRun := run.New("/music/jam.mp3", "local_path")
			err := store.CreateRun(context.Background(), existingRun)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Close()).To(Succeed())

			reopened, err := registry.Open(dbPath)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = reopened.Close() })

			storedRun, err := reopened.GetRun(context.Background(), existingRun.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(storedRun.Input).To(Equal("/music/jam.mp3"))
		})
	})
})
