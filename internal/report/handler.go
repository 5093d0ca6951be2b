package report

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/entraguard/entraguard/internal/common/errors"
	"github.com/entraguard/entraguard/internal/risk"
)

// Handler exposes the analysis engine over HTTP
type Handler struct {
	service *risk.Service
	logger  *zap.Logger
}

// NewHandler creates the HTTP handler around the engine service
func NewHandler(service *risk.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger.With(zap.String("component", "report_handler")),
	}
}

// RegisterRoutes mounts the API endpoints on a router group
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/analyze", h.analyze)
	api.POST("/recompute", h.recompute)
	api.GET("/indicators", h.indicators)
}

type analyzeRequest struct {
	UPN          string `json:"upn" binding:"required"`
	LookbackDays int    `json:"lookback_days"`
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.ErrBadRequest, "invalid analyze request", err))
		return
	}

	analysis, err := h.service.Analyze(c.Request.Context(), req.UPN, req.LookbackDays)
	if err != nil {
		h.logger.Warn("Analysis failed", zap.String("upn", req.UPN), zap.Error(err))
		apperrors.Respond(c, err)
		return
	}

	displayed := h.service.Displayed(analysis.SignIns)
	c.JSON(http.StatusOK, Build(analysis, displayed, h.service.Registry()))
}

type recomputeRequest struct {
	Analysis             *risk.Analysis `json:"analysis" binding:"required"`
	ExcludedIndicatorIDs []string       `json:"excluded_indicator_ids"`
}

func (h *Handler) recompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.ErrBadRequest, "invalid recompute request", err))
		return
	}

	// Unknown ids are rejected so a typo never silently recomputes to the
	// original values.
	for _, id := range req.ExcludedIndicatorIDs {
		if _, ok := h.service.Registry().Rule(id); !ok {
			apperrors.Respond(c, apperrors.New(apperrors.ErrUnknownIndicator, "unknown indicator id "+id))
			return
		}
	}

	recomputed := h.service.Recompute(req.Analysis, req.ExcludedIndicatorIDs)
	displayed := h.service.Displayed(recomputed.SignIns)
	c.JSON(http.StatusOK, Build(recomputed, displayed, h.service.Registry()))
}

func (h *Handler) indicators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"indicators": h.service.Registry().Rules()})
}
