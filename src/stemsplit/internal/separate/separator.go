package separate

import (
	"context"

	"github.com/cockroachdb/errors"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

// ErrSeparation marks any failure of the separation backend itself.
var ErrSeparation = errors.New("separation backend failed")

// StemFilePaths maps a stem label to the file the backend produced for it.
type StemFilePaths = map[string]string

//counterfeiter:generate . FileSeparator
type FileSeparator interface {
	Separate(ctx context.Context, inputFilePath string, stemsOutputDir string) (StemFilePaths, error)
}

// stemLabelsByModel declares which labels each known demucs model emits.
// Unknown models fall back to accepting whatever labeled files show up.
var stemLabelsByModel = map[string][]string{
	"htdemucs":    {"vocals", "drums", "bass", "other"},
	"htdemucs_ft": {"vocals", "drums", "bass", "other"},
	"hdemucs_mmi": {"vocals", "drums", "bass", "other"},
	"htdemucs_6s": {"vocals", "drums", "bass", "guitar", "piano", "other"},
}

// StemLabels returns the declared label set for a model, or nil when the
// model is not a known one.
func StemLabels(model string) []string {
	return stemLabelsByModel[model]
}
