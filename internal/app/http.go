package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"siteadmin/api/internal/collection"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err == nil {
				checks[name] = map[string]any{"status": "ok"}
				continue
			}
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Public content feed
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "public" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		payload, err := s.service.PublicItems(r.Context(), parts[2])
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	if len(parts) < 2 || parts[0] != "api" || parts[1] != "collections" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		payload, err := s.service.ListCollections(r.Context())
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	key := parts[2]
	switch {
	case len(parts) == 4 && parts[3] == "items":
		s.handleItems(w, r, key)
	case len(parts) == 5 && parts[3] == "items":
		s.handleItem(w, r, key, parts[4])
	case len(parts) == 6 && parts[3] == "items" && parts[5] == "asset":
		s.handleItemAsset(w, r, key, parts[4])
	case len(parts) == 4 && parts[3] == "reorder":
		s.handleReorder(w, r, key)
	case len(parts) == 4 && parts[3] == "uploads":
		s.handleUploads(w, r, key)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method == http.MethodGet {
		payload, err := s.service.LoadItems(r.Context(), key)
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Fields map[string]any       `json:"fields"`
			Asset  *collection.AssetRef `json:"asset"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddItem(r.Context(), key, body.Fields, body.Asset)
		s.respond(w, r, http.StatusCreated, payload, err)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleItem(w http.ResponseWriter, r *http.Request, key, id string) {
	if r.Method == http.MethodPut {
		var body struct {
			Fields     map[string]any       `json:"fields"`
			Asset      *collection.AssetRef `json:"asset"`
			ClearAsset bool                 `json:"clearAsset"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateItem(r.Context(), key, id, collection.Change{
			Fields:     body.Fields,
			Asset:      body.Asset,
			ClearAsset: body.ClearAsset,
		})
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	if r.Method == http.MethodDelete {
		payload, err := s.service.RemoveItem(r.Context(), key, id)
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleItemAsset(w http.ResponseWriter, r *http.Request, key, id string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	upload, closeFile, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
		return
	}
	defer closeFile()
	payload, err := s.service.ReplaceAsset(r.Context(), key, id, upload)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleReorder(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Source      *int `json:"source"`
		Destination *int `json:"destination"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Source == nil || body.Destination == nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "source and destination are required", nil)
		return
	}
	payload, err := s.service.ReorderItems(r.Context(), key, *body.Source, *body.Destination)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleUploads(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method == http.MethodPost {
		upload, closeFile, err := s.readUpload(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
			return
		}
		defer closeFile()
		payload, err := s.service.StageUpload(r.Context(), key, upload)
		s.respond(w, r, http.StatusCreated, payload, err)
		return
	}

	if r.Method == http.MethodDelete {
		var body collection.AssetRef
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.DiscardUpload(r.Context(), key, body)
		s.respond(w, r, http.StatusOK, payload, err)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// readUpload pulls the "file" part out of a multipart form.
func (s *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request) (collection.Upload, func(), error) {
	limit := s.service.MaxUploadBytes()
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return collection.Upload{}, nil, fmt.Errorf("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return collection.Upload{}, nil, fmt.Errorf("file is required")
	}
	upload := collection.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return upload, func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, nil
}

func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload map[string]any, err error) {
	if err != nil {
		code, errCode, message, details := mapError(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("request failed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("code", errCode),
				zap.Error(err),
			)
		}
		writeError(w, code, errCode, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
