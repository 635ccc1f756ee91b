package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

const (
	defaultJobLimit     = 10
	maxJobLimit         = 200
	defaultKeywordLimit = 20
	maxKeywordLimit     = 500
	reportTimeout       = 5 * time.Second
)

// ReportHandler exposes read-only crawl reports.
type ReportHandler struct {
	store   crawler.ReportStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewReportHandler wires the report store and logger.
func NewReportHandler(store crawler.ReportStore, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		store:   store,
		timeout: reportTimeout,
		logger:  logger,
	}
}

// Ready handles GET /readyz. It returns 503 when the store cannot be reached.
func (h *ReportHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats handles GET /v1/stats and returns {"stats": {...}}.
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.store.Statistics(ctx)
	if err != nil {
		h.logger.Error("load statistics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// RecentJobs handles GET /v1/jobs/recent?limit= and returns {"jobs": [...]},
// newest first. An invalid limit yields 400.
func (h *ReportHandler) RecentJobs(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	jobs, err := h.store.RecentJobs(ctx, limit)
	if err != nil {
		h.logger.Error("list recent jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.JobSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// TopKeywords handles GET /v1/keywords/top?limit= and returns
// {"keywords": [...]} ordered by unique domain count.
func (h *ReportHandler) TopKeywords(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultKeywordLimit, maxKeywordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	keywords, err := h.store.TopKeywords(ctx, limit)
	if err != nil {
		h.logger.Error("list top keywords failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	if keywords == nil {
		keywords = []crawler.KeywordMaster{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
