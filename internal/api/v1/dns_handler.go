package v1

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaowoniu928/hetzner-web/internal/api/response"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
)

// DNSHandler compares live DNS resolution against the fleet's current
// addresses on demand.
type DNSHandler struct {
	dns *service.DNSService
}

func NewDNSHandler(dns *service.DNSService) *DNSHandler {
	return &DNSHandler{dns: dns}
}

func RegisterDNSRoutes(group *gin.RouterGroup, dns *service.DNSService) {
	handler := NewDNSHandler(dns)
	group.POST("/dns_check", handler.Check)
}

type dnsCheckRequest struct {
	ServerID *int64 `json:"server_id"`
}

type dnsCheckResponse struct {
	Results []service.DNSCheckRow `json:"results"`
}

// Check resolves every mapped record (one server when server_id is
// given) and reports match, missing mapping or lookup failure per row.
// An empty body means the whole fleet.
func (h *DNSHandler) Check(c *gin.Context) {
	var req dnsCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	rows, err := h.dns.CheckServers(c.Request.Context(), req.ServerID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, dnsCheckResponse{Results: rows})
}
