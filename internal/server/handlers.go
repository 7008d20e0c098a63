package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/rag"
	"github.com/hyperjump/tanya/internal/storage"
	"go.uber.org/zap"
)

const healthMessage = "Chatbot backend is running!"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": healthMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "No message provided")
		return
	}
	s.logger.Debug("chat request",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("url", req.URL),
		zap.Bool("crawl", req.Crawl),
	)
	resp, err := s.engine.Ask(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, r, "chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, r, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Server.MaxUploadBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, rag.KindInvalidInput, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "No file provided")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "could not read file")
		return
	}
	s.logger.Debug("upload request", zap.String("file", header.Filename), zap.Int("bytes", len(content)))
	res, err := s.engine.IngestFile(r.Context(), filepath.Base(header.Filename), content)
	if err != nil {
		s.respondFailure(w, r, "upload", err)
		return
	}
	s.respondIngest(w, res)
}

type ingestTextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid request body")
		return
	}
	res, err := s.engine.IngestText(r.Context(), req.Title, req.Text)
	if err != nil {
		s.respondFailure(w, r, "ingest text", err)
		return
	}
	s.respondIngest(w, res)
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req models.IngestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid request body")
		return
	}
	s.logger.Debug("ingest url request", zap.String("url", req.URL), zap.Bool("crawl", req.Crawl))
	res, err := s.engine.IngestURL(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, r, "ingest url", err)
		return
	}
	s.respondIngest(w, res)
}

// respondIngest answers 201 for new content and 200 when it was already ingested.
func (s *Server) respondIngest(w http.ResponseWriter, res *models.IngestResult) {
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, err.Error())
		return
	}
	sources, err := s.engine.Sources(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, r, "list sources", err)
		return
	}
	if sources == nil {
		sources = []*models.Source{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	detail, err := s.engine.Source(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, "get source", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

// queryInt reads a non-negative integer query parameter, returning def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		s.respondFailure(w, r, "status", err)
		return
	}
	resp := map[string]interface{}{
		"status": st,
		"config": map[string]interface{}{
			"embedding_provider": s.config.Embedding.Provider,
			"embedding_model":    s.config.Embedding.Model,
			"completion_model":   s.config.Completion.Model,
			"cors_origins":       s.config.Server.CORSOrigins,
		},
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, rag.KindInternal, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, rag.KindInternal, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, rag.KindInvalidInput, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, rag.KindInternal, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, rag.KindInternal, err.Error())
		return
	}
	s.saveWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, rag.KindInternal, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, rag.KindInvalidInput, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, rag.KindInternal, err.Error())
		return
	}
	s.saveWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// saveWatchDirectories writes the current watch roots to the config file, if one is known.
func (s *Server) saveWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind rag.ErrorKind) int {
	switch kind {
	case rag.KindInvalidInput:
		return http.StatusBadRequest
	case rag.KindDependencyFailure:
		return http.StatusBadGateway
	case rag.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := rag.Classify(err)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, kind, err.Error())
		return
	}
	status := statusForKind(kind)
	fields := []zap.Field{
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", fields...)
	} else {
		s.logger.Warn(op+" failed", fields...)
	}
	s.respondError(w, status, kind, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind rag.ErrorKind, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}
