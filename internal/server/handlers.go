package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit), zap.Bool("keyword", query.Keyword))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if errors.Is(err, models.ErrInvalidQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// cleanDocPath normalizes a vault path, rejecting paths that leave the vault.
func cleanDocPath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", false
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docPath, ok := cleanDocPath(input.Path)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "path must be a relative path inside the vault")
		return
	}
	s.logger.Debug("process document request", zap.String("path", docPath), zap.Bool("inline_content", input.Content != nil))

	var err error
	if input.Content != nil {
		err = s.pipeline.ProcessDocument(r.Context(), docPath, *input.Content, time.Now())
	} else {
		err = s.pipeline.ProcessFile(r.Context(), docPath)
	}
	if err != nil {
		s.logger.Error("processing failed", zap.String("path", docPath), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":     fileid.DocumentID(docPath),
		"path":   docPath,
		"status": "indexed",
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.pipeline.Stores().Metadata.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get document failed", zap.String("doc_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meta == nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("doc_id", id))
	if err := s.pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Sync(r.Context())
	if res == nil {
		s.logger.Error("sync failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Removed == nil {
		res.Removed = []string{}
	}
	if err != nil {
		s.logger.Warn("sync incomplete", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.pipeline.RebuildAll(r.Context()); err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, _ := s.pipeline.ProcessedCount(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "rebuilt",
		"documents":   count,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleConsistency(w http.ResponseWriter, r *http.Request) {
	fix := false
	if v := r.URL.Query().Get("fix"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "fix must be a boolean")
			return
		}
		fix = b
	}
	report, err := s.pipeline.CheckAndRepairConsistency(r.Context(), fix)
	if err != nil {
		s.logger.Error("consistency check failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.pipeline.CleanupDeleted(r.Context())
	if deleted == nil {
		deleted = []string{}
	}
	resp := map[string]interface{}{"deleted": deleted}
	if err != nil {
		s.logger.Warn("cleanup incomplete", zap.Error(err))
		resp["error"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	keys, err := s.pipeline.PropertyKeys(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.pipeline.Status(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
