package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/gridconnect/gridconnect/internal/models"
)

// taskPath addresses the tasks of one import, export, action or process.
// collection is the plural URL segment ("imports", "exports", "actions", "processes").
func (c *Client) taskPath(collection, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/tasks", c.modelPath(), collection, url.PathEscape(objectID))
}

func (c *Client) dumpPath(collection, objectID, taskID, nestedID string) string {
	base := fmt.Sprintf("%s/%s", c.taskPath(collection, objectID), url.PathEscape(taskID))
	if nestedID == "" {
		return base + "/dump/chunks"
	}
	return fmt.Sprintf("%s/dumps/%s/chunks", base, url.PathEscape(nestedID))
}

// CreateTask starts a task for the given object and returns its task id.
func (c *Client) CreateTask(ctx context.Context, collection, objectID string, params models.TaskParameters) (string, error) {
	resp, err := c.doRequest(ctx, "POST", c.taskPath(collection, objectID), params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "create task", nethttp.StatusOK, nethttp.StatusCreated, nethttp.StatusAccepted); err != nil {
		return "", err
	}

	var out models.TaskResponse
	if err := decodeJSON(resp, &out, "task response"); err != nil {
		return "", err
	}
	if out.Task == nil || out.Task.TaskID == "" {
		return "", fmt.Errorf("create task: response has no task id")
	}
	return out.Task.TaskID, nil
}

// GetTaskStatus returns the current snapshot of a task.
func (c *Client) GetTaskStatus(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error) {
	return c.taskRequest(ctx, "GET", collection, objectID, taskID, "get task status")
}

// CancelTask asks the server to cancel a task. The returned snapshot is usually CANCELLING.
func (c *Client) CancelTask(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error) {
	status, err := c.taskRequest(ctx, "DELETE", collection, objectID, taskID, "cancel task")
	if err != nil {
		return nil, err
	}
	if status == nil {
		status = &models.TaskStatus{TaskID: taskID, TaskState: models.TaskCancelling}
	}
	return status, nil
}

func (c *Client) taskRequest(ctx context.Context, method, collection, objectID, taskID, operation string) (*models.TaskStatus, error) {
	path := fmt.Sprintf("%s/%s", c.taskPath(collection, objectID), url.PathEscape(taskID))
	resp, err := c.doRequest(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, operation, nethttp.StatusOK, nethttp.StatusAccepted, nethttp.StatusNoContent); err != nil {
		return nil, err
	}

	var out models.TaskResponse
	if err := decodeJSON(resp, &out, "task response"); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// ListDumpChunks lists the failure dump chunks of a task. An empty nestedID addresses the
// task's own dump; otherwise the dump of that nested import of a process.
func (c *Client) ListDumpChunks(ctx context.Context, collection, objectID, taskID, nestedID string) ([]models.ChunkSlot, error) {
	resp, err := c.doRequest(ctx, "GET", c.dumpPath(collection, objectID, taskID, nestedID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "list dump chunks", nethttp.StatusOK); err != nil {
		return nil, err
	}

	var out models.ChunkListResponse
	if err := decodeJSON(resp, &out, "dump chunk list"); err != nil {
		return nil, err
	}
	return models.NumberSlots(out.Chunks), nil
}

// FetchDumpChunk returns the bytes of one failure dump chunk.
func (c *Client) FetchDumpChunk(ctx context.Context, collection, objectID, taskID, nestedID, chunkID string) ([]byte, error) {
	path := fmt.Sprintf("%s/%s", c.dumpPath(collection, objectID, taskID, nestedID), url.PathEscape(chunkID))
	return c.fetchBytes(ctx, path, "fetch dump chunk "+chunkID)
}
