package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/pipeline"
)

// QueryHandler exposes the natural-language query pipeline over HTTP.
type QueryHandler struct {
	engine *pipeline.Engine
	logger *zap.Logger
}

// NewQueryHandler creates a QueryHandler over the pipeline engine.
func NewQueryHandler(engine *pipeline.Engine, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/query", h.Query)
}

// Query handles POST /query requests. The pipeline produces a complete
// response envelope for both success and failure; the handler only maps the
// error code onto an HTTP status.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		code := apperrors.ReqMalformed
		_ = WriteJSON(w, code.HTTPStatus, pipeline.Response{
			ErrorCode: code.Code,
			Message:   code.Message,
			Category:  string(code.Category),
		})
		return
	}

	resp := h.engine.Run(r.Context(), req)

	status := http.StatusOK
	if !resp.Success {
		if def, ok := apperrors.Lookup(resp.ErrorCode); ok {
			status = def.HTTPStatus
		} else {
			status = http.StatusInternalServerError
		}
	}
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}
