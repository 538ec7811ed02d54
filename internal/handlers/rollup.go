package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/requestdata"
	"github.com/archmap/archmap-backend/internal/services"
)

type RollupHandler struct {
	log         *logger.Logger
	rollups     services.RollupService
	generations services.GenerationService
}

func NewRollupHandler(log *logger.Logger, rollups services.RollupService, generations services.GenerationService) *RollupHandler {
	return &RollupHandler{
		log:         log.With("handler", "RollupHandler"),
		rollups:     rollups,
		generations: generations,
	}
}

type rebuildBody struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

func (h *RollupHandler) Rebuild(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.ActorID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body rebuildBody
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

	version, err := h.rollups.Rebuild(c.Request.Context(), wsID)
	if err != nil {
		h.log.Error("Rebuild failed", "error", err, "workspace_id", wsID)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"generation_version": version})
}

func (h *RollupHandler) ActiveGeneration(c *gin.Context) {
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

	gen, err := h.generations.GetActive(c.Request.Context(), nil, wsID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"generation": gen})
}
