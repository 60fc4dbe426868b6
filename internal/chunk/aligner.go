package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// FindSplitOffset scans buf backward for the last occurrence of sep that starts on a
// multiple of width and returns the offset immediately after it. It returns -1 when
// no such occurrence exists.
func FindSplitOffset(buf, sep []byte, width int) int {
	if len(sep) == 0 {
		return -1
	}
	if width < 1 {
		width = 1
	}

	end := len(buf)
	for end >= len(sep) {
		idx := bytes.LastIndex(buf[:end], sep)
		if idx < 0 {
			return -1
		}
		if idx%width == 0 {
			return idx + len(sep)
		}
		// Misaligned match, e.g. the high byte of one UTF-16 unit followed by the
		// low byte of the next. Keep looking before it.
		end = idx + len(sep) - 1
	}
	return -1
}

// Cursor is the read position within a source of known length. It is passed
// between reads instead of relying on a shared seek offset.
type Cursor struct {
	Offset    int64
	Remaining int64
}

// NewCursor positions a cursor at the start of a source of the given length.
func NewCursor(length int64) Cursor {
	return Cursor{Remaining: length}
}

// Done reports whether every byte has been consumed.
func (c Cursor) Done() bool {
	return c.Remaining <= 0
}

// Next reads up to len(buf) bytes at the cursor and truncates them after the last
// separator. The returned cursor resumes right after the truncated chunk, so the
// partial row is read again by the following call. When buf holds no separator the
// whole read is returned.
func (c Cursor) Next(r io.ReaderAt, buf []byte, sep Separator) ([]byte, Cursor, error) {
	want := int64(len(buf))
	if want > c.Remaining {
		want = c.Remaining
	}

	data, err := readFull(r, buf[:want], c.Offset)
	if err != nil {
		return nil, c, err
	}

	if split := sep.SplitOffset(data); split > 0 {
		data = data[:split]
	}
	return data, c.advance(len(data)), nil
}

// Tail reads every remaining byte into buf, which must be at least Remaining long.
func (c Cursor) Tail(r io.ReaderAt, buf []byte) ([]byte, Cursor, error) {
	if int64(len(buf)) < c.Remaining {
		return nil, c, fmt.Errorf("tail buffer too small: %d < %d", len(buf), c.Remaining)
	}
	data, err := readFull(r, buf[:c.Remaining], c.Offset)
	if err != nil {
		return nil, c, err
	}
	return data, c.advance(len(data)), nil
}

func (c Cursor) advance(n int) Cursor {
	return Cursor{Offset: c.Offset + int64(n), Remaining: c.Remaining - int64(n)}
}

func readFull(r io.ReaderAt, buf []byte, off int64) ([]byte, error) {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %d bytes at offset %d: %w", len(buf), off, err)
}
