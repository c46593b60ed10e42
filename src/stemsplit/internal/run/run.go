package run

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested  Status = "requested"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Run is one end-to-end execution of the pipeline for a single input.
type Run struct {
	ID           string
	Input        string
	SourceKind   string
	Status       Status
	OutputDir    string
	StemPaths    map[string]string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func New(input string, sourceKind string) Run {
	now := time.Now().UTC()
	return Run{
		ID:         uuid.New().String(),
		Input:      input,
		SourceKind: sourceKind,
		Status:     StatusRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type Updater func(Run) (Run, error)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Store
type Store interface {
	CreateRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	UpdateRun(ctx context.Context, id string, updater Updater) error
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}
