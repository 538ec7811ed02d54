package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/requestdata"
	"github.com/archmap/archmap-backend/internal/services"
)

type ChangeRequestHandler struct {
	log            *logger.Logger
	changeRequests services.ChangeRequestService
	approvals      services.ApprovalService
}

func NewChangeRequestHandler(log *logger.Logger, changeRequests services.ChangeRequestService, approvals services.ApprovalService) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		log:            log.With("handler", "ChangeRequestHandler"),
		changeRequests: changeRequests,
		approvals:      approvals,
	}
}

type createChangeRequestBody struct {
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	RequestType string          `json:"request_type" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
}

func (h *ChangeRequestHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.ActorID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body createChangeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	wsID := body.WorkspaceID
	if wsID == uuid.Nil {
		wsID = rd.WorkspaceID
	}
	if wsID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "workspace_required", nil)
		return
	}

	req, err := h.changeRequests.Create(c.Request.Context(), nil, wsID, body.RequestType, body.Payload, rd.ActorID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"change_request": req})
}

func (h *ChangeRequestHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	wsID := rd.WorkspaceID
	if raw := c.Query("workspace_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_workspace_id", err)
			return
		}
		wsID = parsed
	}
	if wsID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "workspace_required", nil)
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = parsed
	}

	rows, err := h.changeRequests.List(c.Request.Context(), nil, wsID, c.Query("status"), limit)
	if err != nil {
		h.log.Error("List change requests failed", "error", err, "workspace_id", wsID)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"change_requests": rows})
}

type applyBody struct {
	Status string `json:"status" binding:"required"`
}

func (h *ChangeRequestHandler) Apply(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.ActorID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var body applyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	req, err := h.approvals.Apply(c.Request.Context(), id, body.Status, rd.ActorID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"change_request": req})
}

type applyBulkBody struct {
	IDs    []uuid.UUID `json:"ids" binding:"required"`
	Status string      `json:"status" binding:"required"`
}

func (h *ChangeRequestHandler) ApplyBulk(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.ActorID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body applyBulkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.approvals.ApplyBulk(c.Request.Context(), body.IDs, body.Status, rd.ActorID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
