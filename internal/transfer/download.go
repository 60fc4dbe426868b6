package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gridconnect/gridconnect/internal/constants"
	"github.com/gridconnect/gridconnect/internal/diskspace"
	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/models"
)

// Downloader reads chunk sources in slot order.
type Downloader struct {
	logger   *logging.Logger
	progress Progress
}

// NewDownloader creates a downloader. progress may be nil.
func NewDownloader(logger *logging.Logger, progress Progress) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{logger: logger, progress: progress}
}

// Open lists the chunks of src and returns a reader that fetches them one at a time,
// in slot order, as it is drained. The reader cannot be rewound; open it again to
// download again.
func (d *Downloader) Open(ctx context.Context, src ChunkSource) (io.ReadCloser, error) {
	slots, err := src.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of %s: %w", src.Name(), err)
	}
	d.logger.Debug().Str("source", src.Name()).Int("chunks", len(slots)).Msg("Opened chunk source")
	return &chunkReader{ctx: ctx, src: src, slots: slots, progress: d.progress}, nil
}

// chunkReader pulls chunks lazily; at most one fetch is outstanding.
type chunkReader struct {
	ctx      context.Context
	src      ChunkSource
	slots    []models.ChunkSlot
	next     int
	cur      []byte
	closed   bool
	progress Progress
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	for len(r.cur) == 0 {
		if r.next >= len(r.slots) {
			return 0, io.EOF
		}
		slot := r.slots[r.next]
		data, err := r.src.FetchChunk(r.ctx, slot)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch chunk %d of %s: %w", slot.Ordinal, r.src.Name(), err)
		}
		if len(data) == 0 {
			return 0, fmt.Errorf("chunk %d (%s) of %s: %w", slot.Ordinal, slot.ID, r.src.Name(), ErrNoChunk)
		}
		r.cur = data
		r.next++
		if r.progress != nil {
			_ = r.progress.Add(len(data))
		}
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.cur = nil
	return nil
}

// PartialPath returns the temporary sibling a download of target is written to.
func PartialPath(target string) string {
	return filepath.Join(filepath.Dir(target), constants.PartialFilePrefix+filepath.Base(target))
}

// Download materializes src at target. Bytes go to a hidden .partial.<name> sibling that
// is renamed over target only after the last chunk is written, so target never holds a
// partial file. On failure the partial file is left for inspection.
//
// An existing target is refused with ErrAlreadyExists unless overwrite is set, also
// when it appears while the download runs.
func (d *Downloader) Download(ctx context.Context, src ChunkSource, target string, overwrite bool) (int64, error) {
	if target == "" {
		return 0, fmt.Errorf("download target path is empty")
	}
	if _, err := os.Stat(target); err == nil {
		if !overwrite {
			return 0, fmt.Errorf("%s: %w (use --overwrite to replace it)", target, ErrAlreadyExists)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to check target %s: %w", target, err)
	}

	rc, err := d.Open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	partial := PartialPath(target)
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create partial file %s: %w", partial, err)
	}

	// A full disk surfaces as a diskspace.InsufficientSpaceError.
	written, err := io.Copy(diskspace.NewWriter(f, partial), rc)
	if err != nil {
		f.Close()
		return written, fmt.Errorf("download of %s failed, partial file left at %s: %w", src.Name(), partial, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return written, fmt.Errorf("failed to sync %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("failed to close %s: %w", partial, err)
	}

	if err := d.commit(partial, target, overwrite); err != nil {
		return written, err
	}

	d.logger.Info().Str("source", src.Name()).Str("target", target).Int64("bytes", written).Msg("Download complete")
	return written, nil
}

// commit moves the finished partial file to target. Without overwrite the target is
// created only if it still does not exist; the check at the start of Download may be
// minutes old by now.
func (d *Downloader) commit(partial, target string, overwrite bool) error {
	if !overwrite {
		return d.commitNew(partial, target)
	}

	err := os.Rename(partial, target)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", partial, target, err)
	}

	d.logger.Warnf("Atomic rename of %s not possible across devices; copying to %s instead", partial, target)
	return d.copyOver(partial, target, false)
}

// commitNew hard-links partial to target, which fails if target exists, then drops
// the partial name.
func (d *Downloader) commitNew(partial, target string) error {
	err := os.Link(partial, target)
	switch {
	case err == nil:
		if err := os.Remove(partial); err != nil {
			return fmt.Errorf("failed to delete partial file %s: %w", partial, err)
		}
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%s: %w (created during the download; partial file left at %s)", target, ErrAlreadyExists, partial)
	case isCrossDevice(err):
		d.logger.Warnf("Atomic rename of %s not possible across devices; copying to %s instead", partial, target)
		return d.copyOver(partial, target, true)
	}

	// No hard links on this file system: check again and rename.
	d.logger.Debugf("Hard link of %s failed (%v); falling back to rename", partial, err)
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%s: %w (created during the download; partial file left at %s)", target, ErrAlreadyExists, partial)
	}
	if err := os.Rename(partial, target); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", partial, target, err)
	}
	return nil
}

// copyOver copies partial to target and deletes partial. exclusive refuses an
// existing target.
func (d *Downloader) copyOver(partial, target string, exclusive bool) error {
	if err := copyFile(partial, target, exclusive); err != nil {
		if exclusive && errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w (created during the download; partial file left at %s)", target, ErrAlreadyExists, partial)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", partial, target, err)
	}
	if err := os.Remove(partial); err != nil {
		return fmt.Errorf("failed to delete partial file %s: %w", partial, err)
	}
	return nil
}

func copyFile(src, dst string, exclusive bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if exclusive {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
