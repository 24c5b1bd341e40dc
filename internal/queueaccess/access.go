package queueaccess

import (
	"context"
	"fmt"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/workflow"
)

// Access provides run operations regardless of daemon or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Run, error)
	Describe(ctx context.Context, id string) (*api.Run, error)
	Create(ctx context.Context, req api.CreateRunRequest) (*api.CreateRunResponse, error)
	Approve(ctx context.Context, id string) (*api.Task, error)
	Retry(ctx context.Context, id string) (*api.Task, error)
	Remote() bool
}

// NewClientAccess returns an Access backed by the daemon's HTTP API.
func NewClientAccess(client *api.Client) Access {
	return &clientAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. Approvals and
// retries only enqueue tasks; a daemon picks them up when it runs.
func NewStoreAccess(cfg *config.Config, store *queue.Store) Access {
	return &storeAccess{
		service: api.NewRunService(store),
		manager: workflow.NewManager(cfg, store, logging.NewNop()),
	}
}

type clientAccess struct {
	client *api.Client
}

func (a *clientAccess) Remote() bool { return true }

func (a *clientAccess) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *clientAccess) List(ctx context.Context, statuses []string) ([]api.Run, error) {
	return a.client.ListRuns(ctx, statuses)
}

func (a *clientAccess) Describe(ctx context.Context, id string) (*api.Run, error) {
	run, err := a.client.DescribeRun(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func (a *clientAccess) Create(ctx context.Context, req api.CreateRunRequest) (*api.CreateRunResponse, error) {
	return a.client.CreateRun(ctx, req)
}

func (a *clientAccess) Approve(ctx context.Context, id string) (*api.Task, error) {
	return a.client.Approve(ctx, id)
}

func (a *clientAccess) Retry(ctx context.Context, id string) (*api.Task, error) {
	return a.client.Retry(ctx, id)
}

type storeAccess struct {
	service *api.RunService
	manager *workflow.Manager
}

func (a *storeAccess) Remote() bool { return false }

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Run, error) {
	filters := make([]queue.Status, 0, len(statuses))
	for _, s := range statuses {
		parsed, ok := queue.ParseStatus(s)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "list", "parse status", fmt.Sprintf("unknown status %q", s), nil)
		}
		filters = append(filters, parsed)
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.Run, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Create(ctx context.Context, req api.CreateRunRequest) (*api.CreateRunResponse, error) {
	run, task, err := a.manager.Submit(ctx, queue.NewRun{
		Title:       req.Title,
		Description: req.Description,
		Style:       req.Style,
		BGMRef:      req.BGMRef,
		VideoRefs:   req.VideoRefs,
	})
	if err != nil {
		return nil, err
	}
	return &api.CreateRunResponse{Run: api.FromRun(run), Task: api.FromTask(task)}, nil
}

func (a *storeAccess) Approve(ctx context.Context, id string) (*api.Task, error) {
	task, err := a.manager.Approve(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := api.FromTask(task)
	return &dto, nil
}

func (a *storeAccess) Retry(ctx context.Context, id string) (*api.Task, error) {
	task, err := a.manager.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := api.FromTask(task)
	return &dto, nil
}
