package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridconnect/gridconnect/internal/models"
)

type countingProgress struct{ total int }

func (p *countingProgress) Add(n int) error {
	p.total += n
	return nil
}

func TestDownloadMaterializesInSlotOrder(t *testing.T) {
	svc := newFakeService().withFile("h1,h2\n", "1,2\n", "3,4\n")
	src := NewServerFileSource(svc, "f", "export.csv")
	progress := &countingProgress{}
	d := NewDownloader(nil, progress)

	dir := t.TempDir()
	first := filepath.Join(dir, "one.csv")
	second := filepath.Join(dir, "two.csv")

	n, err := d.Download(context.Background(), src, first, false)
	require.NoError(t, err)
	assert.EqualValues(t, 14, n)
	_, err = d.Download(context.Background(), src, second, false)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "h1,h2\n1,2\n3,4\n", string(a))
	assert.Equal(t, a, b, "two downloads must be byte-identical")
	assert.Equal(t, 28, progress.total)

	_, err = os.Stat(PartialPath(first))
	assert.ErrorIs(t, err, os.ErrNotExist, "partial file must be renamed away")
}

func TestDownloadOverwriteGuard(t *testing.T) {
	svc := newFakeService().withFile("new content\n")
	src := NewServerFileSource(svc, "f", "")
	d := NewDownloader(nil, nil)

	target := filepath.Join(t.TempDir(), "existing.csv")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))

	_, err := d.Download(context.Background(), src, target, false)
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.True(t, IsAlreadyExists(err))
	assert.Contains(t, err.Error(), target)
	got, _ := os.ReadFile(target)
	assert.Equal(t, "old", string(got), "target must be untouched")
	assert.Zero(t, svc.fetches, "no chunk may be fetched")

	_, err = d.Download(context.Background(), src, target, true)
	require.NoError(t, err)
	got, _ = os.ReadFile(target)
	assert.Equal(t, "new content\n", string(got))
}

// appearingTarget creates target when the first chunk is fetched.
type appearingTarget struct {
	ChunkSource
	target string
	once   sync.Once
}

func (a *appearingTarget) FetchChunk(ctx context.Context, slot models.ChunkSlot) ([]byte, error) {
	a.once.Do(func() { _ = os.WriteFile(a.target, []byte("written meanwhile"), 0o600) })
	return a.ChunkSource.FetchChunk(ctx, slot)
}

func TestDownloadTargetCreatedDuringDownload(t *testing.T) {
	svc := newFakeService().withFile("a\n", "b\n")
	target := filepath.Join(t.TempDir(), "late.csv")
	src := &appearingTarget{ChunkSource: NewServerFileSource(svc, "f", ""), target: target}

	_, err := NewDownloader(nil, nil).Download(context.Background(), src, target, false)
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, _ := os.ReadFile(target)
	assert.Equal(t, "written meanwhile", string(got), "target must not be replaced")
	partial, readErr := os.ReadFile(PartialPath(target))
	require.NoError(t, readErr, "partial file is left for inspection")
	assert.Equal(t, "a\nb\n", string(partial))
}

func TestDownloadWithoutOverwriteRemovesPartial(t *testing.T) {
	svc := newFakeService().withFile("a\n")
	target := filepath.Join(t.TempDir(), "fresh.csv")

	_, err := NewDownloader(nil, nil).Download(context.Background(), NewServerFileSource(svc, "f", ""), target, false)
	require.NoError(t, err)

	got, _ := os.ReadFile(target)
	assert.Equal(t, "a\n", string(got))
	_, err = os.Stat(PartialPath(target))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownloadEmptyChunkIsProtocolError(t *testing.T) {
	svc := newFakeService().withFile("a\n", "", "c\n")
	d := NewDownloader(nil, nil)
	target := filepath.Join(t.TempDir(), "broken.csv")

	_, err := d.Download(context.Background(), NewServerFileSource(svc, "f", "broken"), target, false)
	require.ErrorIs(t, err, ErrNoChunk)

	_, statErr := os.Stat(target)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "no target after a failed download")
	partial, readErr := os.ReadFile(PartialPath(target))
	require.NoError(t, readErr, "partial file is left for inspection")
	assert.Equal(t, "a\n", string(partial))
}

func TestOpenFetchesLazily(t *testing.T) {
	svc := newFakeService().withFile("abc", "def")
	rc, err := NewDownloader(nil, nil).Open(context.Background(), NewServerFileSource(svc, "f", ""))
	require.NoError(t, err)
	defer rc.Close()

	assert.Zero(t, svc.fetches)

	buf := make([]byte, 2)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.fetches, "one chunk outstanding at a time")

	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(rest))
	assert.Equal(t, 2, svc.fetches)
}

func TestOpenReaderIsNotRestartable(t *testing.T) {
	svc := newFakeService().withFile("abc")
	d := NewDownloader(nil, nil)
	rc, err := d.Open(context.Background(), NewServerFileSource(svc, "f", ""))
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	n, err := rc.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, rc.Close())
	_, err = rc.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServerFileSourceName(t *testing.T) {
	src := NewServerFileSource(newFakeService(), "113000000007", "")
	assert.Equal(t, "113000000007", src.Name())

	slots, err := src.ListChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.ChunkSlot(nil), slots)
}
