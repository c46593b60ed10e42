package output_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/output"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/separate"
)

var _ = Describe("RunDirName", func() {
	now := time.Date(2024, 5, 4, 13, 14, 15, 0, time.UTC)

	It("embeds the slug and timestamp", func() {
		name := output.RunDirName("jam", now)
		Expect(name).To(HavePrefix("jam_20240504_131415_"))
	})

	It("differs between calls at the same instant", func() {
		Expect(output.RunDirName("jam", now)).NotTo(Equal(output.RunDirName("jam", now)))
	})
})

var _ = Describe("RunWriter", func() {
	var (
		tempDir string
		baseDir string
		stems   separate.StemFilePaths
		writer  output.RunWriter
	)

	BeforeEach(func() {
		By("Creating scratch directories", func() {
			var err error
			tempDir, err = os.MkdirTemp("", "output-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, tempDir)

			baseDir = filepath.Join(tempDir, "stem_outputs")
		})

		By("Writing the stem source files", func() {
			stems = separate.StemFilePaths{}
			for _, label := range []string{"vocals", "drums", "bass", "other"} {
				stemPath := filepath.Join(tempDir, label+".mp3")
				err := os.WriteFile(stemPath, []byte("jamz-"+label), os.ModePerm)
				Expect(err).NotTo(HaveOccurred())
				stems[label] = stemPath
			}
		})

		writer = output.NewRunWriter(baseDir)
	})

	Describe("Happy path", func() {
		var (
			finalDir string
			written  separate.StemFilePaths
			err      error
		)

		JustBeforeEach(func() {
			finalDir, written, err = writer.Write("jam", stems)
		})

		It("doesn't return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("creates the run directory under the base dir", func() {
			Expect(finalDir).To(BeADirectory())
			Expect(filepath.Dir(finalDir)).To(Equal(baseDir))
			Expect(filepath.Base(finalDir)).To(HavePrefix("jam_"))
		})

		It("copies every stem into the run directory", func() {
			Expect(written).To(HaveLen(4))
			for label, stemPath := range written {
				Expect(filepath.Dir(stemPath)).To(Equal(finalDir))
				Expect(filepath.Base(stemPath)).To(Equal(label + ".mp3"))

				contents, readErr := os.ReadFile(stemPath)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(string(contents)).To(Equal("jamz-" + label))
			}
		})

		It("leaves no staging directories behind", func() {
			dirEntries, readErr := os.ReadDir(baseDir)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(dirEntries).To(HaveLen(1))
			Expect(dirEntries[0].Name()).To(Equal(filepath.Base(finalDir)))
		})
	})

	Describe("Repeated runs for the same input", func() {
		It("gives each run its own directory", func() {
			firstDir, _, err := writer.Write("jam", stems)
			Expect(err).NotTo(HaveOccurred())

			secondDir, _, err := writer.Write("jam", stems)
			Expect(err).NotTo(HaveOccurred())

			Expect(firstDir).NotTo(Equal(secondDir))
			Expect(firstDir).To(BeADirectory())
			Expect(secondDir).To(BeADirectory())
		})
	})

	Describe("A stem source file is missing", func() {
		BeforeEach(func() {
			stems["vocals"] = filepath.Join(tempDir, "gone.mp3")
		})

		It("reports a write failure", func() {
			_, _, err := writer.Write("jam", stems)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, output.ErrWrite)).To(BeTrue())
		})

		It("leaves no partial run directory", func() {
			_, _, _ = writer.Write("jam", stems)

			dirEntries, err := os.ReadDir(baseDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(dirEntries).To(BeEmpty())
		})
	})

	Describe("No stems", func() {
		It("reports a write failure", func() {
			_, _, err := writer.Write("jam", separate.StemFilePaths{})
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, output.ErrWrite)).To(BeTrue())
		})
	})
})
