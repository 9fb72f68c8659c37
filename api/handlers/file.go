package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"fileIngestor/api/dto"
	"fileIngestor/api/middleware"
	"fileIngestor/api/service"
	"fileIngestor/api/validation"
	"fileIngestor/repository"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

type FileService interface {
	Upload(ctx context.Context, traceID, filename string, content []byte) (*dto.UploadResponse, error)
	List(ctx context.Context, skip, limit int) ([]dto.FileSummary, error)
	GetStatus(ctx context.Context, id string) (*dto.FileStatusResponse, error)
	GetResult(ctx context.Context, id string) (*dto.FileResultResponse, error)
}

type FileHandler struct {
	service     FileService
	logger      *zap.Logger
	maxFileSize int64
}

func NewFileHandler(service FileService, logger *zap.Logger, maxFileSize int64) *FileHandler {
	return &FileHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

func (h *FileHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /files", h.Upload)
	mux.HandleFunc("GET /files", h.List)
	mux.HandleFunc("GET /files/{id}", h.Status)
	mux.HandleFunc("GET /files/{id}/result", h.Result)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, "File too large", err, traceID, http.StatusRequestEntityTooLarge)
			return
		}
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateUpload(header, h.maxFileSize); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, validation.ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.handleError(w, "Invalid file", err, traceID, status)
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		h.handleError(w, "Failed to read file", err, traceID, http.StatusInternalServerError)
		return
	}
	if int64(len(content)) > h.maxFileSize {
		h.handleError(w, "Invalid file", validation.ErrFileTooLarge, traceID, http.StatusRequestEntityTooLarge)
		return
	}

	filename := validation.SanitizeFilename(header.Filename)

	resp, err := h.service.Upload(r.Context(), traceID, filename, content)
	if err != nil {
		h.handleError(w, "Failed to upload file", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.ID),
		zap.String("filename", filename),
		zap.Int("size", len(content)),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		h.handleError(w, "Invalid skip parameter", err, traceID, http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultPageSize)
	if err != nil {
		h.handleError(w, "Invalid limit parameter", err, traceID, http.StatusBadRequest)
		return
	}

	files, err := h.service.List(r.Context(), skip, limit)
	if err != nil {
		h.handleError(w, "Failed to list files", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, files)
}

func (h *FileHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	id := r.PathValue("id")
	if id == "" {
		h.handleError(w, "File ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			h.handleError(w, "File not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get file status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *FileHandler) Result(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	id := r.PathValue("id")
	if id == "" {
		h.handleError(w, "File ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetResult(r.Context(), id)
	if err != nil {
		var notProcessed *service.NotProcessedError
		switch {
		case errors.Is(err, repository.ErrFileNotFound):
			h.handleError(w, "File not found", err, traceID, http.StatusNotFound)
		case errors.As(err, &notProcessed):
			msg := fmt.Sprintf("File not processed yet (status: %s)", notProcessed.Status)
			h.handleError(w, msg, err, traceID, http.StatusBadRequest)
		default:
			h.handleError(w, "Failed to get file result", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *FileHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func (h *FileHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.String("trace_id", traceID), zap.Error(err))
	} else {
		h.logger.Warn(message, zap.String("trace_id", traceID), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *FileHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
