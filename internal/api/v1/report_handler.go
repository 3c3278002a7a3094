package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiaowoniu928/hetzner-web/internal/api/response"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
)

// ReportHandler serves the read-side dashboard documents: the live
// fleet overview and the hourly/daily/cycle/tracking views derived
// from the stored series.
type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func RegisterReportRoutes(group *gin.RouterGroup, reports *service.ReportService) {
	handler := NewReportHandler(reports)

	group.GET("/servers", handler.Servers)
	group.GET("/hourly", handler.Hourly)
	group.GET("/daily", handler.Daily)
	group.GET("/cycle", handler.Cycle)
	group.GET("/tracking", handler.Tracking)
	group.PUT("/tracking", handler.SetTracking)
}

// Servers returns the live fleet with cumulative counters, tracking
// totals and the last detected rebuild per server.
func (h *ReportHandler) Servers(c *gin.Context) {
	overview, err := h.reports.ServersOverview(c.Request.Context())
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// Hourly returns per-name hour deltas, either for one calendar date
// (?date=YYYY-MM-DD) or the last 24 recorded transitions.
func (h *ReportHandler) Hourly(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))

	report, err := h.reports.HourlyView(c.Request.Context(), date)
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Daily returns the 35-day per-date rollup.
func (h *ReportHandler) Daily(c *gin.Context) {
	report, err := h.reports.DailyView(c.Request.Context())
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Cycle returns the per-server billing-cycle series for the currently
// existing fleet.
func (h *ReportHandler) Cycle(c *gin.Context) {
	data, err := h.reports.CycleView(c.Request.Context())
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// Tracking returns the cumulative totals since the tracking start.
func (h *ReportHandler) Tracking(c *gin.Context) {
	totals, err := h.reports.Tracking(c.Request.Context())
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

type setTrackingRequest struct {
	Start string `json:"start"`
}

// SetTracking moves the tracking window start and returns the totals
// recomputed from the new start. An empty start clears the override.
func (h *ReportHandler) SetTracking(c *gin.Context) {
	var req setTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	if err := h.reports.SetTrackingStart(ctx, req.Start); err != nil {
		handleReportServiceError(c, err)
		return
	}

	totals, err := h.reports.Tracking(ctx)
	if err != nil {
		handleReportServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

func handleReportServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		response.Error(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidHourLabel):
		response.Error(c, http.StatusBadRequest, "invalid start, expected an hour label like 2024-01-02 15:00")
	default:
		response.Error(c, http.StatusInternalServerError, err.Error())
	}
}
