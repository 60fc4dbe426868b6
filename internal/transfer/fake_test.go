package transfer

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/gridconnect/gridconnect/internal/models"
)

// fakeService is an in-memory FileService.
type fakeService struct {
	mu sync.Mutex

	slots      []models.ChunkSlot // returned by ListFileChunks
	chunks     map[string][]byte
	registered []models.ServerFile
	completed  *models.ServerFile
	uploads    []string
	fetches    int

	noFile     bool
	failUpload string
}

func newFakeService() *fakeService {
	return &fakeService{chunks: map[string][]byte{}}
}

// withFile preloads a downloadable file made of the given chunk contents.
func (f *fakeService) withFile(parts ...string) *fakeService {
	f.slots = nil
	for i, p := range parts {
		id := "c" + strconv.Itoa(i)
		f.slots = append(f.slots, models.ChunkSlot{ID: id})
		f.chunks[id] = []byte(p)
	}
	f.slots = models.NumberSlots(f.slots)
	return f
}

func (f *fakeService) RegisterFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, *file)
	if f.noFile {
		return nil, nil
	}
	out := *file
	if out.HeaderRow < 0 {
		out.HeaderRow = 1
	}
	return &out, nil
}

func (f *fakeService) ListFileChunks(ctx context.Context, fileID string) ([]models.ChunkSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots, nil
}

func (f *fakeService) UploadChunk(ctx context.Context, fileID, chunkID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chunkID == f.failUpload {
		return errors.New("connection reset by peer")
	}
	f.chunks[chunkID] = bytes.Clone(data)
	f.uploads = append(f.uploads, chunkID)
	return nil
}

func (f *fakeService) FetchChunk(ctx context.Context, fileID, chunkID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.chunks[chunkID], nil
}

func (f *fakeService) CompleteFile(ctx context.Context, file *models.ServerFile) (*models.ServerFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *file
	f.completed = &out
	return &out, nil
}

// ordered returns the uploaded chunks in slot order.
func (f *fakeService) ordered(slots []models.ChunkSlot) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, 0, len(slots))
	for _, s := range slots {
		out = append(out, f.chunks[s.ID])
	}
	return out
}
