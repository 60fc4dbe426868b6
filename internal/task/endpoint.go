package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridconnect/gridconnect/internal/models"
)

// ErrNoNestedDumps is returned when a nested dump is requested from a kind whose
// results are never nested.
var ErrNoNestedDumps = errors.New("job type has no nested results")

// TaskService is the part of the platform API that runs tasks. collection is the
// plural object segment from Kind.Collection.
type TaskService interface {
	CreateTask(ctx context.Context, collection, objectID string, params models.TaskParameters) (string, error)
	GetTaskStatus(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error)
	CancelTask(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error)
	ListDumpChunks(ctx context.Context, collection, objectID, taskID, nestedID string) ([]models.ChunkSlot, error)
	FetchDumpChunk(ctx context.Context, collection, objectID, taskID, nestedID, chunkID string) ([]byte, error)
}

// Endpoint is the set of remote operations for tasks of one object.
type Endpoint interface {
	Kind() Kind
	ObjectID() string
	CreateTask(ctx context.Context, params models.TaskParameters) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) (*models.TaskStatus, error)
	DumpChunks(ctx context.Context, taskID string) ([]models.ChunkSlot, error)
	NestedDumpChunks(ctx context.Context, taskID, nestedID string) ([]models.ChunkSlot, error)
	// DumpChunk fetches one dump chunk; an empty nestedID addresses the task's own dump.
	DumpChunk(ctx context.Context, taskID, nestedID, chunkID string) ([]byte, error)
}

type jobEndpoint struct {
	kind     Kind
	objectID string
	service  TaskService
}

// NewEndpoint returns the endpoint for tasks of the given object.
func NewEndpoint(service TaskService, kind Kind, objectID string) Endpoint {
	return &jobEndpoint{kind: kind, objectID: objectID, service: service}
}

func (e *jobEndpoint) Kind() Kind       { return e.kind }
func (e *jobEndpoint) ObjectID() string { return e.objectID }

func (e *jobEndpoint) CreateTask(ctx context.Context, params models.TaskParameters) (string, error) {
	return e.service.CreateTask(ctx, e.kind.Collection(), e.objectID, params)
}

func (e *jobEndpoint) TaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	status, err := e.service.GetTaskStatus(ctx, e.kind.Collection(), e.objectID, taskID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, fmt.Errorf("empty status for task %s", taskID)
	}
	return status, nil
}

func (e *jobEndpoint) CancelTask(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	return e.service.CancelTask(ctx, e.kind.Collection(), e.objectID, taskID)
}

func (e *jobEndpoint) DumpChunks(ctx context.Context, taskID string) ([]models.ChunkSlot, error) {
	return e.service.ListDumpChunks(ctx, e.kind.Collection(), e.objectID, taskID, "")
}

func (e *jobEndpoint) NestedDumpChunks(ctx context.Context, taskID, nestedID string) ([]models.ChunkSlot, error) {
	if !e.kind.HasNestedResults() {
		return nil, fmt.Errorf("%s %s: %w", e.kind, e.objectID, ErrNoNestedDumps)
	}
	return e.service.ListDumpChunks(ctx, e.kind.Collection(), e.objectID, taskID, nestedID)
}

func (e *jobEndpoint) DumpChunk(ctx context.Context, taskID, nestedID, chunkID string) ([]byte, error) {
	if nestedID != "" && !e.kind.HasNestedResults() {
		return nil, fmt.Errorf("%s %s: %w", e.kind, e.objectID, ErrNoNestedDumps)
	}
	return e.service.FetchDumpChunk(ctx, e.kind.Collection(), e.objectID, taskID, nestedID, chunkID)
}
