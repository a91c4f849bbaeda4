package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"review-backend/internal/analyses"
	"review-backend/internal/cache"
	"review-backend/internal/documents"
	"review-backend/internal/layout"
	"review-backend/internal/shared/server/respond"
)

// Handler wires review HTTP endpoints to the orchestrator.
type Handler struct {
	Orch  *Orchestrator
	Docs  *documents.Service
	Cache *cache.Store
}

// NewHandler constructs a Handler.
func NewHandler(orch *Orchestrator, docs *documents.Service, store *cache.Store) *Handler {
	return &Handler{Orch: orch, Docs: docs, Cache: store}
}

// RegisterRoutes attaches review routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/reviews", h.submit)
	rg.GET("/reviews/:id", h.get)
	rg.GET("/reviews/:id/report", h.report)
	rg.POST("/reviews/:id/cancel", h.cancel)
	rg.GET("/fingerprints/:fp/analyses", h.history)
	rg.DELETE("/fingerprints/:fp/cache", h.invalidate)
}

func (h *Handler) submit(c *gin.Context) {
	doc, err := h.Docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, documents.ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		}
		return
	}

	force := false
	if v := c.Query("force_refresh"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "force_refresh must be a boolean", nil)
			return
		}
		force = parsed
	}

	var mode layout.Mode
	switch c.Query("mode") {
	case "":
	case string(layout.ModeService):
		mode = layout.ModeService
	case string(layout.ModeLocal):
		mode = layout.ModeLocal
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "mode must be service or local", nil)
		return
	}

	run, err := h.Orch.Submit(doc, SubmitOptions{ForceRefresh: force, Mode: mode})
	if err != nil {
		respond.Error(c, http.StatusServiceUnavailable, "parser_unconfigured", err.Error(), nil)
		return
	}

	c.Set("reviewId", run.ID)
	c.Set("fingerprint", run.Fingerprint)
	respond.Accepted(c, run.Snapshot())
}

func (h *Handler) get(c *gin.Context) {
	run, ok := h.Orch.Get(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "review not found", nil)
		return
	}
	respond.OK(c, run.Snapshot())
}

func (h *Handler) report(c *gin.Context) {
	run, ok := h.Orch.Get(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "review not found", nil)
		return
	}
	report, ok := run.Report()
	if !ok {
		respond.Error(c, http.StatusConflict, "not_ready", "review has not completed", gin.H{"state": run.Snapshot().State})
		return
	}

	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Summary))
		return
	}
	respond.OK(c, report)
}

func (h *Handler) cancel(c *gin.Context) {
	run, ok := h.Orch.Get(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "review not found", nil)
		return
	}
	run.Cancel()
	respond.OK(c, run.Snapshot())
}

func (h *Handler) history(c *gin.Context) {
	results, err := h.Orch.Engine.History(c.Request.Context(), c.Param("fp"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	if results == nil {
		results = []analyses.AnalysisResult{}
	}
	respond.OK(c, results)
}

func (h *Handler) invalidate(c *gin.Context) {
	stage := cache.Stage(c.Query("stage"))
	switch stage {
	case "", cache.StageParse, cache.StageAnalyze, cache.StageSuggest, cache.StageRender:
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown stage", nil)
		return
	}

	if err := h.Cache.Invalidate(c.Param("fp"), stage); err != nil {
		if errors.Is(err, cache.ErrInvalidFingerprint) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fingerprint", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to invalidate cache", nil)
		return
	}
	respond.NoContent(c)
}
