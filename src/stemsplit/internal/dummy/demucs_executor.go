package dummy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/shared/lib/executor"
)

var _ executor.Executor = &DemucsExecutor{}

func NewDummyDemucsExecutor() *DemucsExecutor {
	return &DemucsExecutor{
		Unavailable: false,
		Nested:      true,
		StemLabels:  []string{"vocals", "drums", "bass", "guitar", "piano", "other"},
	}
}

// DemucsExecutor stands in for the demucs binary. For every stem label it
// writes a file whose content is the source content suffixed with the label,
// so tests can assert that the right bytes flowed to the right stem.
// Nested replicates demucs dropping output under <model>/<track>/.
type DemucsExecutor struct {
	Unavailable bool
	Nested      bool
	StemLabels  []string
}

func (e *DemucsExecutor) Command(name string, arg ...string) executor.Command {
	return &demucsCommand{
		executor: e,
		name:     name,
		args:     arg,
	}
}

type demucsCommand struct {
	executor *DemucsExecutor
	name     string
	args     []string
	dir      string
}

func (c *demucsCommand) SetDir(dir string) {
	c.dir = dir
}

func (c *demucsCommand) CombinedOutput() ([]byte, error) {
	if c.executor.Unavailable {
		return []byte("CUDA out of memory"), NetworkFailure
	}

	if len(c.args) == 0 {
		return nil, cerr.Error("No args passed to demucs")
	}

	destPath := ""
	model := ""
	for i, arg := range c.args {
		if arg == "-o" && i+1 < len(c.args) {
			destPath = c.args[i+1]
		}
		if arg == "-n" && i+1 < len(c.args) {
			model = c.args[i+1]
		}
	}

	if destPath == "" {
		return nil, cerr.Error("No output dir passed to demucs")
	}

	sourcePath := c.args[len(c.args)-1]
	sourceContents, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, cerr.Field("source_path", sourcePath).
			Wrap(err).Error("Failed to read the source file")
	}

	stemDir := destPath
	if c.executor.Nested {
		trackName := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
		stemDir = filepath.Join(destPath, model, trackName)
	}

	if err := os.MkdirAll(stemDir, os.ModePerm); err != nil {
		return nil, cerr.Field("stem_dir", stemDir).
			Wrap(err).Error("Failed to create the stem output dir")
	}

	for _, label := range c.executor.StemLabels {
		stemContents := append([]byte{}, sourceContents...)
		stemContents = append(stemContents, []byte("-"+label)...)

		stemPath := filepath.Join(stemDir, label+".mp3")
		if err := os.WriteFile(stemPath, stemContents, os.ModePerm); err != nil {
			return nil, cerr.Field("stem_path", stemPath).
				Wrap(err).Error("Failed to write the stem file")
		}
	}

	return []byte("separated"), nil
}
