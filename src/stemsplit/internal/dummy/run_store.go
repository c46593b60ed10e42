package dummy

import (
	"context"
	"sort"
	"sync"

	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

var _ run.Store = &RunStore{}

func NewRunStore() *RunStore {
	return &RunStore{
		Unavailable: false,
		State:       map[string]run.Run{},
		mutex:       sync.RWMutex{},
	}
}

type RunStore struct {
	Unavailable bool
	State       map[string]run.Run
	mutex       sync.RWMutex
}

func (r *RunStore) CreateRun(_ context.Context, newRun run.Run) error {
	if r.Unavailable {
		return NetworkFailure
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.State[newRun.ID] = newRun
	return nil
}

func (r *RunStore) GetRun(_ context.Context, id string) (run.Run, error) {
	if r.Unavailable {
		return run.Run{}, NetworkFailure
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	storedRun, ok := r.State[id]
	if !ok {
		return run.Run{}, NotFound
	}

	return storedRun, nil
}

func (r *RunStore) UpdateRun(_ context.Context, id string, updater run.Updater) error {
	if r.Unavailable {
		return NetworkFailure
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	storedRun, ok := r.State[id]
	if !ok {
		return NotFound
	}

	updatedRun, err := updater(storedRun)
	if err != nil {
		return err
	}

	r.State[id] = updatedRun
	return nil
}

func (r *RunStore) ListRecent(_ context.Context, limit int) ([]run.Run, error) {
	if r.Unavailable {
		return nil, NetworkFailure
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	allRuns := []run.Run{}
	for _, storedRun := range r.State {
		allRuns = append(allRuns, storedRun)
	}

	sort.Slice(allRuns, func(i int, j int) bool {
		return allRuns[i].CreatedAt.After(allRuns[j].CreatedAt)
	})

	if limit > 0 && len(allRuns) > limit {
		allRuns = allRuns[:limit]
	}

	return allRuns, nil
}
