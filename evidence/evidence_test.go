package evidence

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedUploader(store Store) *Uploader {
	n := 0
	return NewUploader(store).
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }).
		WithIDGenerator(func() string {
			n++
			return strings.Repeat(string(rune('a'+n-1)), 4)
		})
}

func TestUploaderWritesToDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/uploads/")
	require.NoError(t, err)

	refs, err := fixedUploader(store).Upload(context.Background(), []File{
		{OriginalName: "receipt.PDF", Body: strings.NewReader("pdf-bytes")},
		{OriginalName: "../../etc/passwd", Body: strings.NewReader("photo")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/1700000000000-aaaa.pdf", "/uploads/1700000000000-bbbb"}, refs)

	data, err := os.ReadFile(filepath.Join(dir, "1700000000000-aaaa.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))
}

func TestUploaderLimits(t *testing.T) {
	up := fixedUploader(&memoryStore{})

	_, err := up.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	files := make([]File, MaxFiles+1)
	for i := range files {
		files[i] = File{OriginalName: "a.png", Body: strings.NewReader("x")}
	}
	_, err = up.Upload(context.Background(), files)
	assert.ErrorIs(t, err, ErrTooManyFiles)

	refs, err := up.Upload(context.Background(), files[:MaxFiles])
	require.NoError(t, err)
	assert.Len(t, refs, MaxFiles)
}

func TestUploaderStopsOnStoreError(t *testing.T) {
	store := &memoryStore{failAfter: 1}
	refs, err := fixedUploader(store).Upload(context.Background(), []File{
		{OriginalName: "one.jpg", Body: strings.NewReader("1")},
		{OriginalName: "two.jpg", Body: strings.NewReader("2")},
	})
	require.Error(t, err)
	assert.Len(t, refs, 1)
}

func TestDiskStoreRejectsPathNames(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.txt", "", strings.NewReader("x"))
	assert.Error(t, err)
}

type memoryStore struct {
	objects   map[string]string
	failAfter int
}

func (m *memoryStore) Put(_ context.Context, name, _ string, body io.Reader) (string, error) {
	if m.objects == nil {
		m.objects = map[string]string{}
	}
	if m.failAfter > 0 && len(m.objects) >= m.failAfter {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[name] = string(data)
	return "mem://" + name, nil
}
