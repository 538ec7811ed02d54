package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/requestdata"
	"github.com/archmap/archmap-backend/internal/services"
)

type ObjectHandler struct {
	log     *logger.Logger
	objects services.ObjectService
}

func NewObjectHandler(log *logger.Logger, objects services.ObjectService) *ObjectHandler {
	return &ObjectHandler{
		log:     log.With("handler", "ObjectHandler"),
		objects: objects,
	}
}

type registerObjectBody struct {
	WorkspaceID uuid.UUID              `json:"workspace_id"`
	URN         string                 `json:"urn" binding:"required"`
	Name        string                 `json:"name"`
	ObjectType  string                 `json:"object_type" binding:"required"`
	Granularity string                 `json:"granularity"`
	ParentURN   string                 `json:"parent_urn"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (h *ObjectHandler) Register(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.ActorID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body registerObjectBody
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

	obj, err := h.objects.Register(c.Request.Context(), nil, wsID, services.RegisterObjectInput{
		URN:         body.URN,
		Name:        body.Name,
		ObjectType:  body.ObjectType,
		Granularity: body.Granularity,
		ParentURN:   body.ParentURN,
		Metadata:    body.Metadata,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"object": obj})
}

func (h *ObjectHandler) List(c *gin.Context) {
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

	objects, err := h.objects.ListByWorkspace(c.Request.Context(), nil, wsID)
	if err != nil {
		h.log.Error("List objects failed", "error", err, "workspace_id", wsID)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"objects": objects})
}
