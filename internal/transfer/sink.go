package transfer

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/gridconnect/gridconnect/internal/chunk"
	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/models"
)

// UploadSink is an io.WriteCloser that streams into a server file whose size is not
// known up front. Every chunkSize bytes written become the next ordinal chunk; no row
// alignment is done. Close finalizes the file; Abort leaves it incomplete.
type UploadSink struct {
	ctx       context.Context
	service   FileService
	file      *models.ServerFile
	chunkSize int
	logger    *logging.Logger

	mu     sync.Mutex
	buf    []byte
	next   int
	closed bool
	err    error
}

// OpenUploadSink registers file with an auto-detected chunk count and returns a sink
// that writes into it.
func OpenUploadSink(ctx context.Context, service FileService, file *models.ServerFile, chunkSize int, logger *logging.Logger) (*UploadSink, error) {
	if file == nil || file.ID == "" {
		return nil, fmt.Errorf("%w: server file id is required", chunk.ErrConfiguration)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: invalid chunk size %d", chunk.ErrConfiguration, chunkSize)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	reg := *file
	reg.ChunkCount = models.ChunkCountAuto
	confirmed, err := service.RegisterFile(ctx, &reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", file.Name, err)
	}
	if confirmed == nil {
		return nil, fmt.Errorf("create datasource %s: %w", file.Name, ErrNoServerFile)
	}
	if confirmed.ID == "" {
		confirmed.ID = file.ID
	}

	return &UploadSink{
		ctx:       ctx,
		service:   service,
		file:      confirmed,
		chunkSize: chunkSize,
		logger:    logger,
		buf:       make([]byte, 0, chunkSize),
	}, nil
}

// Write buffers p and flushes every full chunk. A failed flush is sticky.
func (s *UploadSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}

	written := 0
	for len(p) > 0 {
		n := s.chunkSize - len(s.buf)
		if n > len(p) {
			n = len(p)
		}
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		written += n

		if len(s.buf) == s.chunkSize {
			if err := s.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// flush uploads the buffer as the next ordinal chunk. Caller holds mu.
func (s *UploadSink) flush() error {
	id := strconv.Itoa(s.next)
	if err := s.service.UploadChunk(s.ctx, s.file.ID, id, s.buf); err != nil {
		s.err = fmt.Errorf("failed to upload chunk %s of %s: %w", id, s.file.Name, err)
		return s.err
	}
	s.logger.Debug().Str("file", s.file.Name).Str("chunk", id).Int("bytes", len(s.buf)).Msg("Chunk flushed")
	s.next++
	s.buf = s.buf[:0]
	return nil
}

// Close flushes the remainder and marks the server file complete, filling unset format
// metadata with the platform defaults.
func (s *UploadSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true

	if s.err != nil {
		return s.err
	}
	if len(s.buf) > 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}

	final := *s.file
	final.ChunkCount = models.ChunkCountAuto
	final.ApplyDefaults()
	confirmed, err := s.service.CompleteFile(s.ctx, &final)
	if err != nil {
		return fmt.Errorf("failed to complete %s: %w", s.file.Name, err)
	}
	if confirmed != nil {
		s.file = confirmed
	} else {
		s.file = &final
	}

	s.logger.Info().Str("file", s.file.Name).Int("chunks", s.next).Msg("Streamed upload complete")
	return nil
}

// Abort discards buffered bytes without finalizing. The server file stays incomplete.
func (s *UploadSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.buf = nil
	s.logger.Warnf("Upload to %s aborted after %d chunks; server file left incomplete", s.file.Name, s.next)
}

// File returns the server's latest view of the file.
func (s *UploadSink) File() *models.ServerFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

// Chunks returns the number of chunks flushed so far.
func (s *UploadSink) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
