package transfer

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gridconnect/gridconnect/internal/chunk"
	"github.com/gridconnect/gridconnect/internal/constants"
	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/util/buffers"
)

// Uploader writes local files into server files, one row-aligned chunk per slot.
type Uploader struct {
	service     FileService
	logger      *logging.Logger
	concurrency int
	progress    Progress
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	// Concurrency bounds the chunks in flight. Reads from the source stay sequential.
	Concurrency int
	// Progress, if set, receives the size of every uploaded chunk.
	Progress Progress
}

// NewUploader creates an uploader backed by service.
func NewUploader(service FileService, logger *logging.Logger, opts UploaderOptions) *Uploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = constants.DefaultConcurrency
	}
	if concurrency > constants.MaxConcurrency {
		concurrency = constants.MaxConcurrency
	}
	return &Uploader{
		service:     service,
		logger:      logger,
		concurrency: concurrency,
		progress:    opts.Progress,
	}
}

// Upload sends the file at path to the server file described by file.
//
// The descriptor is registered with ceil(size/chunkSize) chunks and replaced by the
// server's confirmed version. Every chunk but the last is cut after its last complete
// record, and the next read resumes right after that record. A chunk without any
// separator is sent whole. Any failed chunk aborts the upload; nothing is retried here.
func (u *Uploader) Upload(ctx context.Context, path string, file *models.ServerFile, chunkSize int) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("%w: server file id is required", chunk.ErrConfiguration)
	}
	if chunkSize <= 0 {
		return fmt.Errorf("%w: invalid chunk size %d", chunk.ErrConfiguration, chunkSize)
	}
	sep, err := chunk.NewSeparator(file.Separator, file.Encoding)
	if err != nil {
		return fmt.Errorf("upload to %s: %w", file.Name, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file %s: %w", path, err)
	}
	size := info.Size()

	count := int((size + int64(chunkSize) - 1) / int64(chunkSize))
	if count < 1 {
		count = 1
	}

	reg := *file
	reg.ChunkCount = count
	confirmed, err := u.service.RegisterFile(ctx, &reg)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", file.Name, err)
	}
	if confirmed == nil {
		return fmt.Errorf("create datasource %s: %w", file.Name, ErrNoServerFile)
	}
	if confirmed.ID == "" {
		confirmed.ID = file.ID
	}
	*file = *confirmed

	slots, err := u.service.ListFileChunks(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("failed to list chunks of %s: %w", file.Name, err)
	}
	if len(slots) == 0 {
		slots = models.OrdinalSlots(count)
	} else if len(slots) != count {
		u.logger.Warnf("Server allocated %d chunks for %s, expected %d", len(slots), file.Name, count)
	}

	u.logger.Info().
		Str("file", file.Name).
		Int64("size", size).
		Int("chunks", len(slots)).
		Int("concurrency", u.concurrency).
		Msg("Uploading")

	return u.uploadSlots(ctx, src, size, file, slots, sep, chunkSize)
}

// uploadSlots reads aligned chunks sequentially and hands buffer i to slot i.
func (u *Uploader) uploadSlots(ctx context.Context, src *os.File, size int64, file *models.ServerFile,
	slots []models.ChunkSlot, sep chunk.Separator, chunkSize int) error {

	pool := buffers.NewPool(chunkSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	cur := chunk.NewCursor(size)
	var readErr error

	for i, slot := range slots {
		// Cancellation stops the next chunk from starting; chunks in flight finish.
		if err := gctx.Err(); err != nil {
			break
		}

		buf := pool.Get()
		var data []byte
		var err error
		if i == len(slots)-1 {
			tail := *buf
			if cur.Remaining > int64(len(tail)) {
				tail = make([]byte, cur.Remaining)
			}
			data, cur, err = cur.Tail(src, tail)
		} else {
			data, cur, err = cur.Next(src, *buf, sep)
		}
		if err != nil {
			pool.Put(buf)
			readErr = fmt.Errorf("failed to read %s: %w", src.Name(), err)
			break
		}

		slot := slot
		g.Go(func() error {
			defer pool.Put(buf)
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := u.service.UploadChunk(context.WithoutCancel(gctx), file.ID, slot.ID, data); err != nil {
				return fmt.Errorf("failed to upload chunk %d of %s: %w", slot.Ordinal, file.Name, err)
			}
			u.logger.Debug().Str("file", file.Name).Int("chunk", slot.Ordinal).Int("bytes", len(data)).Msg("Chunk uploaded")
			if u.progress != nil {
				_ = u.progress.Add(len(data))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cur.Done() {
		return fmt.Errorf("upload of %s ended with %d bytes unread", file.Name, cur.Remaining)
	}

	u.logger.Info().Str("file", file.Name).Msg("Upload complete")
	return nil
}
