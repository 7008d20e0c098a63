package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/rag"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func testConfig(dir string) *config.Config {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db", "sources.db"),
			VectorIndexPath: filepath.Join(dir, "vector", "index"),
		},
		Embedding:  config.EmbeddingConfig{Provider: "mock", Dimensions: 8},
		Completion: config.CompletionConfig{Provider: "mock"},
		Server:     config.ServerConfig{MaxUploadBytes: 1 << 20},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func newTestServer(t *testing.T, watch WatchService, configPath string) (*Server, *config.Config) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	engine, err := rag.Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return NewServer(engine, cfg, zap.NewNop(), watch, configPath), cfg
}

func do(t *testing.T, srv *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	return w
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, srv, method, path, "application/json", []byte(body))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleRoot(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	w := do(t, srv, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if out["status"] != "Chatbot backend is running!" {
		t.Errorf("body: %v", out)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestHandleChat(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	for _, path := range []string{"/chat", "/api/v1/chat"} {
		w := doJSON(t, srv, http.MethodPost, path, `{"message":"Hello?"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status: got %d body %s", path, w.Code, w.Body.String())
		}
		var out struct {
			Response string `json:"response"`
			Source   string `json:"source"`
		}
		decode(t, w, &out)
		if out.Response == "" || out.Source != "none" {
			t.Errorf("%s: unexpected response %+v", path, out)
		}
	}
}

func TestHandleChat_missingMessage(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	w := doJSON(t, srv, http.MethodPost, "/chat", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if out["error"] != "No message provided" || out["kind"] != "invalid_input" {
		t.Errorf("body: %v", out)
	}

	w = doJSON(t, srv, http.MethodPost, "/chat", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body status: got %d", w.Code)
	}
}

func TestHandleChat_fetchFailureIsBadGateway(t *testing.T) {
	page := httptest.NewServer(http.NotFoundHandler())
	defer page.Close()
	srv, _ := newTestServer(t, nil, "")

	w := doJSON(t, srv, http.MethodPost, "/api/v1/chat", `{"message":"hi","url":"`+page.URL+`/x"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out map[string]string
	decode(t, w, &out)
	if out["kind"] != "dependency_failure" {
		t.Errorf("kind: %v", out)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return mw.FormDataContentType(), buf.Bytes()
}

func TestHandleUpload(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")

	ct, body := multipartBody(t, "file", "notes.txt", []byte("Uploaded notes. More text."))
	w := do(t, srv, http.MethodPost, "/api/v1/documents", ct, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Chunks  int  `json:"chunks"`
		Skipped bool `json:"skipped"`
	}
	decode(t, w, &out)
	if out.Chunks != 1 || out.Skipped {
		t.Errorf("unexpected result: %+v", out)
	}

	// Same content again is accepted but not re-indexed.
	w = do(t, srv, http.MethodPost, "/api/v1/documents", ct, body)
	if w.Code != http.StatusOK {
		t.Errorf("duplicate upload status: got %d", w.Code)
	}
}

func TestHandleUpload_errors(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")

	ct, body := multipartBody(t, "file", "image.png", []byte{0x89, 'P', 'N', 'G'})
	w := do(t, srv, http.MethodPost, "/api/v1/documents", ct, body)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("unsupported type status: got %d", w.Code)
	}

	ct, body = multipartBody(t, "other", "notes.txt", []byte("x"))
	w = do(t, srv, http.MethodPost, "/api/v1/documents", ct, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file status: got %d", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")

	w := doJSON(t, srv, http.MethodPost, "/api/v1/documents/text", `{"title":"t","text":"The sky is blue."}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest text status: got %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/search", `{"query":"The sky is blue.","top_k":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Query   string `json:"query"`
		Results []struct {
			Text     string  `json:"text"`
			Distance float32 `json:"distance"`
		} `json:"results"`
	}
	decode(t, w, &out)
	if len(out.Results) != 1 || out.Results[0].Text != "The sky is blue." {
		t.Errorf("results: %+v", out.Results)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/search", `{"query":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status: got %d", w.Code)
	}
}

func TestHandleIngestURL_invalid(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	w := doJSON(t, srv, http.MethodPost, "/api/v1/ingest/url", `{"url":"file:///etc/passwd"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, &mockWatchService{dirs: []string{"/tmp/docs"}}, "")
	doJSON(t, srv, http.MethodPost, "/api/v1/documents/text", `{"text":"One. Two."}`)

	w := do(t, srv, http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Status struct {
			Sources   int64  `json:"sources"`
			IndexSize int    `json:"vector_index_size"`
			IndexType string `json:"vector_index_type"`
			DiskUsage int64  `json:"disk_usage_bytes"`
		} `json:"status"`
		WatchDirectories []string `json:"watch_directories"`
	}
	decode(t, w, &out)
	if out.Status.Sources != 1 || out.Status.IndexSize == 0 || out.Status.IndexType != "memory" {
		t.Errorf("status: %+v", out.Status)
	}
	if out.Status.DiskUsage <= 0 {
		t.Errorf("disk usage should be positive, got %d", out.Status.DiskUsage)
	}
	if len(out.WatchDirectories) != 1 {
		t.Errorf("watch directories: %v", out.WatchDirectories)
	}
}

func TestHandleCORS(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	r.Header.Set("Origin", "http://localhost:8000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8000" {
		t.Errorf("allowed origin: got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow credentials: got %q", got)
	}

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	r.Header.Set("Origin", "http://evil.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin should get no CORS header, got %q", got)
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	srv, _ := newTestServer(t, &mockWatchService{dirs: []string{"/tmp/docs"}}, "")
	w := do(t, srv, http.MethodGet, "/api/v1/watch/directories", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	w := do(t, srv, http.MethodGet, "/api/v1/watch/directories", "", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	mock := &mockWatchService{}
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	srv, _ := newTestServer(t, mock, configPath)
	dir := t.TempDir()

	w := doJSON(t, srv, http.MethodPost, "/api/v1/watch/directories", `{"path":"`+dir+`","sync":false}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	if len(mock.dirs) != 1 || mock.dirs[0] != dir {
		t.Errorf("mock dirs: %v", mock.dirs)
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Directories) != 1 || saved.Watch.Directories[0] != dir {
		t.Errorf("persisted directories: %v", saved.Watch.Directories)
	}
}

func TestHandleWatchDirectoriesAdd_InvalidPath(t *testing.T) {
	srv, _ := newTestServer(t, &mockWatchService{}, "")

	w := doJSON(t, srv, http.MethodPost, "/api/v1/watch/directories", `{"path":"/nonexistent/dir/xyz"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing dir status: got %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/api/v1/watch/directories", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty path status: got %d", w.Code)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	srv, _ := newTestServer(t, mock, "")

	w := do(t, srv, http.MethodDelete, "/api/v1/watch/directories?path=/tmp/docs", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.dirs) != 0 {
		t.Errorf("mock dirs after remove: %v", mock.dirs)
	}

	w = do(t, srv, http.MethodDelete, "/api/v1/watch/directories", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing path status: got %d", w.Code)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := map[rag.ErrorKind]int{
		rag.KindInvalidInput:      http.StatusBadRequest,
		rag.KindDependencyFailure: http.StatusBadGateway,
		rag.KindUnsupportedFormat: http.StatusUnsupportedMediaType,
		rag.KindCorruptIndex:      http.StatusInternalServerError,
		rag.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusForKind(kind); got != want {
			t.Errorf("statusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
	if !strings.HasPrefix(string(rag.KindInvalidInput), "invalid") {
		t.Error("kind names are part of the error body")
	}
}

func TestHandleSources(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")

	w := do(t, srv, http.MethodGet, "/api/v1/sources", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var empty struct {
		Sources []json.RawMessage `json:"sources"`
	}
	decode(t, w, &empty)
	if empty.Sources == nil || len(empty.Sources) != 0 {
		t.Errorf("empty ledger should list [], got %v", empty.Sources)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/documents/text", `{"title":"greeting","text":"Hello there. General Kenobi."}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status: got %d", w.Code)
	}
	var ingested struct {
		Source struct {
			ID string `json:"id"`
		} `json:"source"`
	}
	decode(t, w, &ingested)

	w = do(t, srv, http.MethodGet, "/api/v1/sources?limit=10", "", nil)
	var list struct {
		Sources []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"sources"`
		Limit int `json:"limit"`
	}
	decode(t, w, &list)
	if len(list.Sources) != 1 || list.Sources[0].ID != ingested.Source.ID || list.Limit != 10 {
		t.Errorf("list: %+v", list)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/sources/"+ingested.Source.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var detail struct {
		Chunks []struct {
			Content string `json:"content"`
		} `json:"chunks"`
	}
	decode(t, w, &detail)
	if len(detail.Chunks) != 1 || detail.Chunks[0].Content != "Hello there. General Kenobi." {
		t.Errorf("detail chunks: %+v", detail.Chunks)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/sources/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing source status: got %d", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/api/v1/sources?offset=-1", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative offset status: got %d", w.Code)
	}
}
