package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridconnect/gridconnect/internal/chunk"
	"github.com/gridconnect/gridconnect/internal/models"
)

func writeSource(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// tabularContent builds rows of uneven length, all shorter than 60 bytes.
func tabularContent(rows int) []byte {
	var b bytes.Buffer
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "row-%d,%s\n", i, strings.Repeat("x", (i*7)%40))
	}
	return b.Bytes()
}

func TestUploadKeepsRowsWhole(t *testing.T) {
	content := tabularContent(200)
	const chunkSize = 64

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			svc := newFakeService()
			path := writeSource(t, content)
			file := &models.ServerFile{ID: "113000000001", Name: "sales.csv", Separator: "\n"}

			up := NewUploader(svc, nil, UploaderOptions{Concurrency: concurrency})
			require.NoError(t, up.Upload(context.Background(), path, file, chunkSize))

			count := (len(content) + chunkSize - 1) / chunkSize
			require.Len(t, svc.registered, 1)
			assert.Equal(t, count, svc.registered[0].ChunkCount)

			parts := svc.ordered(models.OrdinalSlots(count))
			require.Len(t, parts, count)
			for i, p := range parts[:len(parts)-1] {
				assert.LessOrEqual(t, len(p), chunkSize, "chunk %d too large", i)
				assert.True(t, bytes.HasSuffix(p, []byte("\n")), "chunk %d splits a row: %q", i, p)
			}
			assert.Equal(t, content, bytes.Join(parts, nil))
		})
	}
}

func TestUploadUsesServerSlotOrder(t *testing.T) {
	content := []byte("a,1\nb,2\nc,3\n")
	svc := newFakeService()
	svc.slots = models.NumberSlots([]models.ChunkSlot{{ID: "s-a"}, {ID: "s-b"}, {ID: "s-c"}})

	file := &models.ServerFile{ID: "f", Name: "small.csv", Separator: "\n"}
	up := NewUploader(svc, nil, UploaderOptions{})
	require.NoError(t, up.Upload(context.Background(), writeSource(t, content), file, 5))

	assert.Equal(t, []string{"s-a", "s-b", "s-c"}, svc.uploads)
	assert.Equal(t, "a,1\n", string(svc.chunks["s-a"]))
	assert.Equal(t, "b,2\n", string(svc.chunks["s-b"]))
	assert.Equal(t, "c,3\n", string(svc.chunks["s-c"]))
}

func TestUploadForwardsChunkWithoutSeparator(t *testing.T) {
	content := []byte("abcdefghij\n")
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "wide.csv", Separator: "\n"}

	up := NewUploader(svc, nil, UploaderOptions{})
	require.NoError(t, up.Upload(context.Background(), writeSource(t, content), file, 4))

	parts := svc.ordered(models.OrdinalSlots(3))
	assert.Equal(t, "abcd", string(parts[0]))
	assert.Equal(t, "efgh", string(parts[1]))
	assert.Equal(t, "ij\n", string(parts[2]))
}

func TestUploadEmptyFileRegistersOneChunk(t *testing.T) {
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "empty.csv", Separator: "\n"}

	up := NewUploader(svc, nil, UploaderOptions{})
	require.NoError(t, up.Upload(context.Background(), writeSource(t, nil), file, 16))

	require.Len(t, svc.registered, 1)
	assert.Equal(t, 1, svc.registered[0].ChunkCount)
	assert.Equal(t, []string{"0"}, svc.uploads)
}

func TestUploadAppliesServerDescriptor(t *testing.T) {
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "h.csv", Separator: "\n", HeaderRow: -1}

	up := NewUploader(svc, nil, UploaderOptions{})
	require.NoError(t, up.Upload(context.Background(), writeSource(t, []byte("h\n1\n")), file, 16))

	assert.Equal(t, 1, file.HeaderRow)
	assert.Equal(t, 1, file.ChunkCount)
}

func TestUploadRejectsAmbiguousSeparator(t *testing.T) {
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "x.csv", Separator: ",;"}

	up := NewUploader(svc, nil, UploaderOptions{})
	err := up.Upload(context.Background(), writeSource(t, []byte("a;b\n")), file, 16)

	require.ErrorIs(t, err, chunk.ErrConfiguration)
	assert.Empty(t, svc.registered, "no network call may happen")
}

func TestUploadRejectsEmptySeparator(t *testing.T) {
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "x.csv"}

	err := NewUploader(svc, nil, UploaderOptions{}).Upload(context.Background(), writeSource(t, []byte("a\n")), file, 16)
	require.ErrorIs(t, err, chunk.ErrConfiguration)
	assert.Empty(t, svc.registered)
}

func TestUploadMissingSourceNamesPath(t *testing.T) {
	svc := newFakeService()
	missing := filepath.Join(t.TempDir(), "nope.csv")
	file := &models.ServerFile{ID: "f", Name: "x.csv", Separator: "\n"}

	err := NewUploader(svc, nil, UploaderOptions{}).Upload(context.Background(), missing, file, 16)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), missing)
	assert.Empty(t, svc.registered)
}

func TestUploadNoServerFile(t *testing.T) {
	svc := newFakeService()
	svc.noFile = true
	file := &models.ServerFile{ID: "f", Name: "sales.csv", Separator: "\n"}

	err := NewUploader(svc, nil, UploaderOptions{}).Upload(context.Background(), writeSource(t, []byte("a\n")), file, 16)
	require.ErrorIs(t, err, ErrNoServerFile)
	assert.Contains(t, err.Error(), "create datasource sales.csv")
}

func TestUploadChunkFailureAborts(t *testing.T) {
	svc := newFakeService()
	svc.failUpload = "1"
	file := &models.ServerFile{ID: "f", Name: "x.csv", Separator: "\n"}

	err := NewUploader(svc, nil, UploaderOptions{}).Upload(context.Background(), writeSource(t, tabularContent(50)), file, 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.NotContains(t, svc.uploads, "2", "no chunk may start after a failure")
}

func TestUploadUTF16KeepsCodeUnitsWhole(t *testing.T) {
	// "a\nb\n" in UTF-16LE
	content := []byte{'a', 0, '\n', 0, 'b', 0, '\n', 0}
	svc := newFakeService()
	file := &models.ServerFile{ID: "f", Name: "u16.txt", Separator: "\n", Encoding: "UTF-16LE"}

	require.NoError(t, NewUploader(svc, nil, UploaderOptions{}).Upload(context.Background(), writeSource(t, content), file, 5))

	parts := svc.ordered(models.OrdinalSlots(2))
	assert.Equal(t, []byte{'a', 0, '\n', 0}, parts[0])
	assert.Equal(t, content, bytes.Join(parts, nil))
}
