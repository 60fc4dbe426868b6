// Package transfer moves tabular files to and from the platform through its
// chunk-slot protocol: row-aligned uploads, streaming uploads and ordered downloads.
package transfer

import (
	"context"
	"errors"

	"github.com/gridconnect/gridconnect/internal/models"
)

var (
	// ErrNoChunk is returned when a listed chunk comes back without content.
	ErrNoChunk = errors.New("chunk has no content")
	// ErrNoServerFile is returned when registration yields no file descriptor.
	ErrNoServerFile = errors.New("server returned no file")
	// ErrAlreadyExists is returned when a download target exists and overwrite is off.
	ErrAlreadyExists = errors.New("already exists")
	// ErrClosed is returned by writes or reads after Close.
	ErrClosed = errors.New("transfer stream is closed")
)

// IsAlreadyExists reports whether err is an overwrite-guard failure.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// FileService is the part of the platform API that stores chunked files.
// Implementations must not retain data slices after UploadChunk returns.
type FileService interface {
	RegisterFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error)
	ListFileChunks(ctx context.Context, fileID string) ([]models.ChunkSlot, error)
	UploadChunk(ctx context.Context, fileID, chunkID string, data []byte) error
	FetchChunk(ctx context.Context, fileID, chunkID string) ([]byte, error)
	CompleteFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error)
}

// ChunkSource is anything that can be downloaded chunk by chunk: a server file or
// a task's failure dump.
type ChunkSource interface {
	// Name is used in log and error messages.
	Name() string
	ListChunks(ctx context.Context) ([]models.ChunkSlot, error)
	FetchChunk(ctx context.Context, slot models.ChunkSlot) ([]byte, error)
}

// Progress receives transferred byte counts. *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(num int) error
}

// ServerFileSource reads a server file through a FileService.
type ServerFileSource struct {
	service FileService
	fileID  string
	name    string
}

// NewServerFileSource returns a source for the server file with the given id.
func NewServerFileSource(service FileService, fileID, name string) *ServerFileSource {
	if name == "" {
		name = fileID
	}
	return &ServerFileSource{service: service, fileID: fileID, name: name}
}

func (s *ServerFileSource) Name() string { return s.name }

func (s *ServerFileSource) ListChunks(ctx context.Context) ([]models.ChunkSlot, error) {
	return s.service.ListFileChunks(ctx, s.fileID)
}

func (s *ServerFileSource) FetchChunk(ctx context.Context, slot models.ChunkSlot) ([]byte, error) {
	return s.service.FetchChunk(ctx, s.fileID, slot.ID)
}
