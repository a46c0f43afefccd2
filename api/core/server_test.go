package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soramiyu/picture-api/cache"
	"github.com/soramiyu/picture-api/config"
	"github.com/soramiyu/picture-api/internal/auth"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

const testTokenSecret = "server-test-secret"

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
	store  *metastore.Store
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		ServerHost:            "127.0.0.1",
		ServerPort:            8080,
		BaseURL:               "http://img.example.com",
		UploadDir:             t.TempDir(),
		MetadataDir:           t.TempDir(),
		TempDir:               t.TempDir(),
		UploadMaxFiles:        10,
		UploadMaxSizeMB:       20,
		UploadMaxBatchTotalMB: 100,
		JPEGQuality:           80,
		DisplayWidth:          900,
		DefaultPageLimit:      15,
		MaxPageLimit:          100,
		AuthTokenSecret:       testTokenSecret,
		CacheType:             "memory",
		CacheMaxSizeMB:        16,
		CacheImageTTL:         time.Minute,
		RateLimitApiRPS:       1000,
		RateLimitApiBurst:     1000,
		RateLimitImageRPS:     1000,
		RateLimitImageBurst:   1000,
		RateLimitExpireTime:   time.Minute,
	}
	if mutate != nil {
		mutate(cfg)
	}

	store, err := metastore.NewStore(cfg.MetadataDir)
	require.NoError(t, err)

	storageFactory, err := storage.NewFactory(cfg)
	require.NoError(t, err)

	imageCache, err := cache.NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { imageCache.Close() })

	verifier, err := auth.NewVerifier(cfg.AuthTokenSecret, cfg.AuthTokenIssuer)
	require.NoError(t, err)

	provider := storageFactory.GetDefault()
	processor := imagesvc.NewProcessor(cfg.JPEGQuality)

	deps := &ServerDependencies{
		Config:         cfg,
		Store:          store,
		StorageFactory: storageFactory,
		Cache:          imageCache,
		CallerResolver: verifier,
		UploadService:  imagesvc.NewUploadService(store, provider, processor, cfg.UploadMaxSizeMB),
		QueryService:   imagesvc.NewQueryService(store, provider, cfg.PublicBaseURL(), cfg.DisplayWidth),
	}

	router, cleanup := SetupRouter(deps)
	t.Cleanup(cleanup)

	return &testServer{router: router, cfg: cfg, store: store}
}

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x % 256), A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for filename, data := range files {
		part, err := writer.CreateFormFile("files", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testTokenSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)
	return recorder
}

func seedImage(t *testing.T, ts *testServer, id, ownerID string, createdAt time.Time) {
	t.Helper()
	storedFilename := id + ".jpg"
	require.NoError(t, os.WriteFile(filepath.Join(ts.cfg.UploadDir, storedFilename), makeJPEG(t, 40, 30), 0644))
	require.NoError(t, ts.store.Save(&metastore.ImageRecord{
		ID:             id,
		OwnerID:        ownerID,
		Title:          "Untitled",
		Description:    "No description",
		Width:          40,
		Height:         30,
		StoredFilename: storedFilename,
		MimeType:       "image/jpeg",
		FileSize:       100,
		CreatedAt:      createdAt,
	}))
}

func TestUploadThenFetchRoundtrip(t *testing.T) {
	ts := newTestServer(t, nil)

	body, contentType := multipartBody(t, nil, map[string][]byte{
		"photo.jpg": makeJPEG(t, 800, 600),
	})
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(t, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var uploaded []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &uploaded))
	require.Len(t, uploaded, 1)

	item := uploaded[0]
	assert.EqualValues(t, 800, item["width"])
	assert.EqualValues(t, 600, item["height"])
	assert.InDelta(t, 675.0, item["displayHeight"], 0.001)
	assert.Equal(t, "Untitled", item["title"])
	assert.Equal(t, "No description", item["description"])

	src := item["src"].(map[string]interface{})
	large := src["large"].(string)
	assert.Contains(t, large, "http://img.example.com/uploads/")

	storedFilename := item["storedFilename"].(string)
	fetch := httptest.NewRequest("GET", "/uploads/"+storedFilename, nil)
	fetchResp := ts.do(t, fetch)
	require.Equal(t, http.StatusOK, fetchResp.Code)
	assert.Equal(t, "image/jpeg", fetchResp.Header().Get("Content-Type"))
	assert.NotEmpty(t, fetchResp.Body.Bytes())

	// 第二次命中缓存，内容一致
	again := ts.do(t, httptest.NewRequest("GET", "/uploads/"+storedFilename, nil))
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, fetchResp.Body.Bytes(), again.Body.Bytes())
}

func TestUploadRejectsNonImagePayload(t *testing.T) {
	ts := newTestServer(t, nil)

	body, contentType := multipartBody(t, nil, map[string][]byte{
		"notes.jpg": []byte("this is not an image at all"),
	})
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "No valid image files uploaded")
}

func TestUploadMixedBatchReportsItemErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	body, contentType := multipartBody(t, nil, map[string][]byte{
		"good.jpg": makeJPEG(t, 100, 80),
		"bad.jpg":  []byte("garbage"),
	})
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(t, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &items))
	require.Len(t, items, 2)

	var successes, failures int
	for _, item := range items {
		if _, ok := item["error"]; ok {
			failures++
			assert.Equal(t, "bad.jpg", item["filename"])
		} else {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)

	records, err := ts.store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUploadWithoutFiles(t *testing.T) {
	ts := newTestServer(t, nil)

	body, contentType := multipartBody(t, map[string]string{"title": "empty"}, nil)
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "No files uploaded")
}

func TestUploadAuthRequired(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.AuthUploadRequired = true
	})

	body, contentType := multipartBody(t, nil, map[string][]byte{
		"photo.jpg": makeJPEG(t, 50, 50),
	})
	req := httptest.NewRequest("POST", "/upload", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", contentType)

	resp := ts.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	authed := httptest.NewRequest("POST", "/upload", bytes.NewReader(body.Bytes()))
	authed.Header.Set("Content-Type", contentType)
	authed.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))

	resp = ts.do(t, authed)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "alice", items[0]["ownerId"])
}

func TestListImagesPagination(t *testing.T) {
	ts := newTestServer(t, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		seedImage(t, ts, fmt.Sprintf("img-%02d", i), "", base.Add(time.Duration(i)*time.Minute))
	}

	resp := ts.do(t, httptest.NewRequest("GET", "/images?limit=15&page=2", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		CurrentPage int                      `json:"currentPage"`
		TotalPages  int                      `json:"totalPages"`
		TotalItems  int                      `json:"totalItems"`
		Data        []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))

	assert.Equal(t, 2, result.CurrentPage)
	assert.Equal(t, 2, result.TotalPages)
	assert.Equal(t, 20, result.TotalItems)
	assert.Len(t, result.Data, 5)
}

func TestListImagesScopeMine(t *testing.T) {
	ts := newTestServer(t, nil)

	now := time.Now().UTC()
	seedImage(t, ts, "mine-1", "alice", now)
	seedImage(t, ts, "mine-2", "alice", now.Add(time.Minute))
	seedImage(t, ts, "other", "bob", now.Add(2*time.Minute))
	seedImage(t, ts, "anon", "", now.Add(3*time.Minute))

	req := httptest.NewRequest("GET", "/images?scope=mine", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	resp := ts.do(t, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		TotalItems int `json:"totalItems"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, 2, result.TotalItems)

	// 匿名请求 scope=mine 得到空集
	anonResp := ts.do(t, httptest.NewRequest("GET", "/images?scope=mine", nil))
	require.Equal(t, http.StatusOK, anonResp.Code)
	require.NoError(t, json.Unmarshal(anonResp.Body.Bytes(), &result))
	assert.Equal(t, 0, result.TotalItems)
}

func TestListUserImages(t *testing.T) {
	ts := newTestServer(t, nil)

	now := time.Now().UTC()
	seedImage(t, ts, "a1", "alice", now)
	seedImage(t, ts, "b1", "bob", now.Add(time.Minute))

	resp := ts.do(t, httptest.NewRequest("GET", "/user/alice", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		TotalItems int                      `json:"totalItems"`
		Data       []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, 1, result.TotalItems)
	assert.Equal(t, "alice", result.Data[0]["ownerId"])
}

func TestGetUploadNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, httptest.NewRequest("GET", "/uploads/does-not-exist.jpg", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "File not found")
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	checks := health["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["metadata"])
	assert.Equal(t, "ok", checks["storage"])
	assert.Equal(t, "ok", checks["cache"])
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, httptest.NewRequest("GET", "/version", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "version")
}
