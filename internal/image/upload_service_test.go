package image

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soramiyu/picture-api/internal/auth"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

type uploadFixture struct {
	service  *UploadService
	store    *metastore.Store
	provider *storage.LocalStorage
	dataDir  string
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()

	dataDir := t.TempDir()
	store, err := metastore.NewStore(t.TempDir())
	require.NoError(t, err)
	provider, err := storage.NewLocalStorage(dataDir)
	require.NoError(t, err)

	return &uploadFixture{
		service:  NewUploadService(store, provider, NewProcessor(80), 20),
		store:    store,
		provider: provider,
		dataDir:  dataDir,
	}
}

// makeFileHeaders 通过真实的 multipart 编解码构造 FileHeader
func makeFileHeaders(t *testing.T, files map[string][]byte) []*multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&body, writer.Boundary())
	form, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File["files"]
}

func TestUploadBatch_SingleSuccess(t *testing.T) {
	f := newUploadFixture(t)

	headers := makeFileHeaders(t, map[string][]byte{"photo.jpg": makeJPEG(t, 800, 600)})
	results := f.service.UploadBatch(context.Background(), auth.Anonymous(), headers, Attributes{})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	record := results[0].Record
	assert.Equal(t, 800, record.Width)
	assert.Equal(t, 600, record.Height)
	assert.Equal(t, "Untitled", record.Title)
	assert.Equal(t, "No description", record.Description)
	assert.Empty(t, record.OwnerID)
	assert.NotEmpty(t, record.ID)

	// 产物与元数据都要落盘
	exists, err := f.provider.Exists(context.Background(), record.StoredFilename)
	require.NoError(t, err)
	assert.True(t, exists)

	persisted, err := f.store.Get(record.StoredFilename)
	require.NoError(t, err)
	assert.Equal(t, record.ID, persisted.ID)

	// 返回的尺寸与持久化产物完全一致
	reader, err := f.provider.GetWithContext(context.Background(), record.StoredFilename)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	reader.Close()

	processed, err := NewProcessor(80).Process(data, "")
	require.NoError(t, err)
	assert.Equal(t, record.Width, processed.Width)
	assert.Equal(t, record.Height, processed.Height)
}

func TestUploadBatch_AttachesOwnerAndAttributes(t *testing.T) {
	f := newUploadFixture(t)

	headers := makeFileHeaders(t, map[string][]byte{"cat.png": makePNG(t, 100, 50)})
	attrs := Attributes{
		Title:       "Cat",
		Description: "A cat",
		Tags:        []string{"cat", "pet"},
		Category:    "animals",
	}
	results := f.service.UploadBatch(context.Background(), auth.Authenticated("user-7"), headers, attrs)

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	record := results[0].Record
	assert.Equal(t, "user-7", record.OwnerID)
	assert.Equal(t, "Cat", record.Title)
	assert.Equal(t, []string{"cat", "pet"}, record.Tags)
	assert.Equal(t, "animals", record.Category)
}

func TestUploadBatch_SiblingsSurviveItemFailure(t *testing.T) {
	f := newUploadFixture(t)

	headers := makeFileHeaders(t, map[string][]byte{
		"good.jpg": makeJPEG(t, 40, 40),
		"fake.jpg": []byte("this is a text file with a jpg name"),
	})
	results := f.service.UploadBatch(context.Background(), auth.Anonymous(), headers, Attributes{})

	require.Len(t, results, 2)

	var succeeded, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.ErrorIs(t, r.Err, ErrUnsupportedFormat)
			assert.Nil(t, r.Record)
		} else {
			succeeded++
			require.NotNil(t, r.Record)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	// 失败的文件不能留下任何持久化痕迹
	records, err := f.store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)

	entries, err := os.ReadDir(f.dataDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadBatch_RejectsOversizedFile(t *testing.T) {
	dataDir := t.TempDir()
	store, err := metastore.NewStore(t.TempDir())
	require.NoError(t, err)
	provider, err := storage.NewLocalStorage(dataDir)
	require.NoError(t, err)

	// 1MB 上限
	service := NewUploadService(store, provider, NewProcessor(80), 1)

	big := make([]byte, 2<<20)
	copy(big, makeJPEG(t, 10, 10))
	headers := makeFileHeaders(t, map[string][]byte{"big.jpg": big})

	results := service.UploadBatch(context.Background(), auth.Anonymous(), headers, Attributes{})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrFileTooLarge)
}
