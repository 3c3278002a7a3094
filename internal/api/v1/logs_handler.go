package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiaowoniu928/hetzner-web/internal/api/response"
	"github.com/xiaowoniu928/hetzner-web/pkg/logger"
)

const defaultLogLimit = 100

// LogsHandler exposes the in-memory log ring for the dashboard's
// activity panel. Entries arrive already masked.
type LogsHandler struct {
	logs *logger.LogStore
}

func NewLogsHandler(logs *logger.LogStore) *LogsHandler {
	return &LogsHandler{logs: logs}
}

func RegisterLogsRoutes(group *gin.RouterGroup, logs *logger.LogStore) {
	handler := NewLogsHandler(logs)
	group.GET("/logs", handler.Recent)
}

type logsResponse struct {
	Entries []logger.Entry `json:"entries"`
}

// Recent returns the newest entries first, capped at ?limit=N.
func (h *LogsHandler) Recent(c *gin.Context) {
	if h.logs == nil {
		response.Error(c, http.StatusServiceUnavailable, "log store unavailable")
		return
	}

	limit := parseIntOrDefault(c.Query("limit"), defaultLogLimit)
	c.JSON(http.StatusOK, logsResponse{Entries: h.logs.Recent(limit)})
}

func parseIntOrDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
