package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiaowoniu928/hetzner-web/internal/api/response"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

// The orchestration deletes the server before it recreates it, so it
// must never die halfway because the browser went away. Requests run
// on a detached context with their own ceiling.
const rebuildRequestTimeout = 15 * time.Minute

// RebuildHandler triggers the delete/recreate/repoint orchestration
// from the dashboard and reports the outcome synchronously.
type RebuildHandler struct {
	cloud    service.CloudAPI
	rebuilds service.Rebuilder
}

func NewRebuildHandler(cloud service.CloudAPI, rebuilds service.Rebuilder) *RebuildHandler {
	return &RebuildHandler{cloud: cloud, rebuilds: rebuilds}
}

func RegisterRebuildRoutes(group *gin.RouterGroup, cloud service.CloudAPI, rebuilds service.Rebuilder) {
	handler := NewRebuildHandler(cloud, rebuilds)
	group.POST("/rebuild", handler.Rebuild)
}

type rebuildRequest struct {
	ServerID int64 `json:"server_id"`
}

type rebuildResponse struct {
	Rebuild *service.RebuildResult   `json:"rebuild"`
	DNS     *service.DNSUpdateResult `json:"dns"`
}

// Rebuild recreates one server from its mapped snapshot and waits for
// the full orchestration, returning the rebuild outcome next to the
// DNS repoint result (null when no record is mapped).
func (h *RebuildHandler) Rebuild(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ServerID <= 0 {
		response.Error(c, http.StatusBadRequest, "server_id required")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), rebuildRequestTimeout)
	defer cancel()

	server, err := h.cloud.GetServer(ctx, req.ServerID)
	if err != nil {
		if errors.Is(err, hetzner.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "server not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.rebuilds.Rebuild(ctx, req.ServerID, server.Name, service.RebuildSourceAPI)
	if err != nil {
		handleRebuildServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, rebuildResponse{Rebuild: result, DNS: result.DNS})
}

func handleRebuildServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRebuildInProgress):
		response.Error(c, http.StatusConflict, "a rebuild for this server is already running")
	case errors.Is(err, service.ErrServerNotFound):
		response.Error(c, http.StatusNotFound, "server not found")
	default:
		response.Error(c, http.StatusInternalServerError, err.Error())
	}
}
