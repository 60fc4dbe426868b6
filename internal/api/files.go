package api

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"

	"github.com/gridconnect/gridconnect/internal/models"
)

func (c *Client) filePath(fileID string) string {
	return fmt.Sprintf("%s/files/%s", c.modelPath(), url.PathEscape(fileID))
}

// RegisterFile declares the format metadata and chunk count of a server file before an upload.
// The returned descriptor is the server's normalized view; it is nil if the server sent none.
func (c *Client) RegisterFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error) {
	if file == nil || file.ID == "" {
		return nil, fmt.Errorf("file ID is required")
	}

	resp, err := c.doRequest(ctx, "POST", c.filePath(file.ID), file)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "register file", nethttp.StatusOK, nethttp.StatusCreated); err != nil {
		return nil, err
	}

	var out models.ServerFileResponse
	if err := decodeJSON(resp, &out, "file response"); err != nil {
		return nil, err
	}
	return out.File, nil
}

// ListFileChunks returns the chunk slots of a server file in server order.
func (c *Client) ListFileChunks(ctx context.Context, fileID string) ([]models.ChunkSlot, error) {
	resp, err := c.doRequest(ctx, "GET", c.filePath(fileID)+"/chunks", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "list file chunks", nethttp.StatusOK); err != nil {
		return nil, err
	}

	var out models.ChunkListResponse
	if err := decodeJSON(resp, &out, "chunk list"); err != nil {
		return nil, err
	}
	return models.NumberSlots(out.Chunks), nil
}

// UploadChunk stores data as the content of one chunk slot.
func (c *Client) UploadChunk(ctx context.Context, fileID, chunkID string, data []byte) error {
	path := fmt.Sprintf("%s/chunks/%s", c.filePath(fileID), url.PathEscape(chunkID))
	resp, err := c.doBytes(ctx, "PUT", path, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "upload chunk "+chunkID, nethttp.StatusOK, nethttp.StatusCreated, nethttp.StatusNoContent); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchChunk returns the bytes of one chunk of a server file.
func (c *Client) FetchChunk(ctx context.Context, fileID, chunkID string) ([]byte, error) {
	path := fmt.Sprintf("%s/chunks/%s", c.filePath(fileID), url.PathEscape(chunkID))
	return c.fetchBytes(ctx, path, "fetch chunk "+chunkID)
}

// CompleteFile finalizes a streamed upload so the server counts its chunks.
func (c *Client) CompleteFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error) {
	resp, err := c.doRequest(ctx, "POST", c.filePath(file.ID)+"/complete", file)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "complete file", nethttp.StatusOK, nethttp.StatusCreated, nethttp.StatusNoContent); err != nil {
		return nil, err
	}

	var out models.ServerFileResponse
	if err := decodeJSON(resp, &out, "file response"); err != nil {
		return nil, err
	}
	return out.File, nil
}

func (c *Client) fetchBytes(ctx context.Context, path, operation string) ([]byte, error) {
	resp, err := c.doBytes(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, operation, nethttp.StatusOK); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}
	return data, nil
}
