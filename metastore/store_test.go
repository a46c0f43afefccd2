package metastore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(owner string) *ImageRecord {
	id := uuid.NewString()
	return &ImageRecord{
		ID:             id,
		OwnerID:        owner,
		Title:          "Untitled",
		Description:    "No description",
		Tags:           []string{},
		Width:          800,
		Height:         600,
		StoredFilename: id + ".jpg",
		MimeType:       "image/jpeg",
		FileSize:       1234,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	record := newTestRecord("user-1")
	require.NoError(t, store.Save(record))

	got, err := store.Get(record.StoredFilename)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.OwnerID, got.OwnerID)
	assert.Equal(t, record.Width, got.Width)
	assert.Equal(t, record.Height, got.Height)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_GetMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("nope.jpg")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_RejectsRecordWithoutDimensions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	record := newTestRecord("")
	record.Width = 0

	err = store.Save(record)
	assert.Error(t, err)

	_, err = store.Get(record.StoredFilename)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_RejectsPathTraversalKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../escape.jpg", "/etc/passwd", "a/b.jpg"} {
		record := newTestRecord("")
		record.StoredFilename = key
		assert.Error(t, store.Save(record), "key should be rejected: %q", key)

		_, err := store.Get(key)
		assert.Error(t, err, "get should reject key: %q", key)
	}
}

func TestStore_ListSkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(newTestRecord("user-1")))
	require.NoError(t, store.Save(newTestRecord("user-2")))

	// 损坏的条目不应中断 List
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg.json"), []byte("{not json"), 0644))

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	record := newTestRecord("")
	require.NoError(t, store.Save(record))
	require.NoError(t, store.Delete(record.StoredFilename))

	_, err = store.Get(record.StoredFilename)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, store.Delete(record.StoredFilename), ErrRecordNotFound)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Save(newTestRecord("user-1")))
		}()
	}
	wg.Wait()

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, n)

	seen := make(map[string]bool, n)
	for _, r := range records {
		assert.False(t, seen[r.ID], "duplicate record id %s", r.ID)
		seen[r.ID] = true
	}
}
