package api

import (
	"context"
	"fmt"

	"montage/internal/queue"
)

// RunStore is the subset of queue.Store used by RunService.
type RunStore interface {
	ListRuns(ctx context.Context, statuses ...queue.Status) ([]queue.Run, error)
	GetRun(ctx context.Context, id string) (*queue.Run, error)
	ListSegments(ctx context.Context, runID string) ([]queue.Segment, error)
	ListTasks(ctx context.Context, runID string) ([]queue.Task, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// RunService returns API-shaped run data straight from the store.
type RunService struct {
	store RunStore
}

// NewRunService wraps the provided store.
func NewRunService(store RunStore) *RunService {
	return &RunService{store: store}
}

// List returns runs filtered by optional statuses.
func (s *RunService) List(ctx context.Context, statuses ...queue.Status) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRuns(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs), nil
}

// Describe returns a run with its segments and tasks, or nil when unknown.
func (s *RunService) Describe(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	segments, err := s.store.ListSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	dto := FromRunDetail(run, segments, tasks)
	return &dto, nil
}

// Stats returns run counts keyed by status name.
func (s *RunService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return map[string]int{}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return StatsByName(stats), nil
}
