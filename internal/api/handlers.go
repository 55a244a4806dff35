package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logs"
)

// StatusSource provides the supervisor snapshot
type StatusSource interface {
	Status() domain.Status
}

// Handlers contains all HTTP handlers
type Handlers struct {
	source     StatusSource
	logManager *logs.Manager
	configFile string
	shutdownFn func()
	logger     *zap.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(source StatusSource, logMgr *logs.Manager, configFile string, shutdownFn func(), logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		source:     source,
		logManager: logMgr,
		configFile: configFile,
		shutdownFn: shutdownFn,
		logger:     logger,
	}
}

// GetStatus handles GET /api/v1/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToStatusResponse(h.source.Status(), h.configFile))
}

// GetLogs handles GET /api/v1/logs
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parseLogParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidRequest,
		})
		return
	}

	entries, total, err := h.logManager.Query(filter, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := LogsResponse{
		Logs:          make([]LogEntryResponse, len(entries)),
		FilteredCount: len(entries),
		TotalCount:    total,
	}

	for i, e := range entries {
		resp.Logs[i] = ToLogEntryResponse(e)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Shutdown handles POST /api/v1/shutdown
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})

	// Trigger shutdown asynchronously
	go func() {
		time.Sleep(100 * time.Millisecond) // Let response complete
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

// parseLogParams extracts log filter parameters from request
func parseLogParams(r *http.Request) (domain.LogFilter, int, error) {
	q := r.URL.Query()
	filter := domain.LogFilter{
		RunID:   q.Get("run"),
		Pattern: q.Get("pattern"),
		IsRegex: q.Get("regex") == "true",
	}

	if streams := q.Get("stream"); streams != "" {
		for _, s := range strings.Split(streams, ",") {
			stream := domain.Stream(strings.TrimSpace(s))
			switch stream {
			case domain.StreamStdout, domain.StreamStderr, domain.StreamSystem:
				filter.Streams = append(filter.Streams, stream)
			default:
				return filter, 0, errors.New("stream must be stdout, stderr or system")
			}
		}
	}

	// Lines limit (default 100, max 10000 to prevent DoS)
	limit := constants.DefaultLogLimit
	if linesStr := q.Get("lines"); linesStr != "" {
		l, err := strconv.Atoi(linesStr)
		if err != nil || l <= 0 {
			return filter, 0, errors.New("lines must be a positive integer")
		}
		limit = min(l, constants.MaxLogLines)
	}

	return filter, limit, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorCode(err)
	message := "an internal error occurred"

	switch {
	case errors.Is(err, domain.ErrInvalidPattern):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrWorkerNotRunning):
		status = http.StatusConflict
		message = err.Error()
	default:
		// Keep internal paths out of responses
		h.logger.Error("api internal error", zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
