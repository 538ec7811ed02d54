package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/requestdata"
	"github.com/archmap/archmap-backend/internal/services"
)

type QueryHandler struct {
	log     *logger.Logger
	queries services.QueryService
}

func NewQueryHandler(log *logger.Logger, queries services.QueryService) *QueryHandler {
	return &QueryHandler{
		log:     log.With("handler", "QueryHandler"),
		queries: queries,
	}
}

func (h *QueryHandler) Execute(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req services.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.WorkspaceID == uuid.Nil {
		req.WorkspaceID = rd.WorkspaceID
	}
	if req.WorkspaceID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "workspace_required", nil)
		return
	}

	result, err := h.queries.Execute(c.Request.Context(), req)
	if err != nil {
		h.log.Debug("Query failed", "error", err, "type", req.Type)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
