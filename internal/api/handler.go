package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/report"
	"github.com/terminally-online/snowreport/internal/reports"
)

// Reporter produces the two reports. *reports.Service implements it.
type Reporter interface {
	RoleHierarchy(ctx context.Context) (reports.Result[report.RoleForest], error)
	DatabaseSummary(ctx context.Context) (reports.Result[report.Catalog], error)
}

type HealthResponse struct {
	Status     string `json:"status"`
	ActiveRuns int    `json:"active_runs"`
	CacheSize  int    `json:"cache_size"`
}

type Handler struct {
	reports Reporter
	runs    *RunPool
	cache   *ReportCache
	limiter *RateLimiter
	timeout time.Duration
	log     *zap.Logger
	router  chi.Router
}

func NewHandler(reporter Reporter, runs *RunPool, cache *ReportCache, limiter *RateLimiter, timeout time.Duration, log *zap.Logger) *Handler {
	h := &Handler{
		reports: reporter,
		runs:    runs,
		cache:   cache,
		limiter: limiter,
		timeout: timeout,
		log:     logging.OrNop(log),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Get("/health", h.handleHealth)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/roles", h.handleRoles)
		r.Get("/databases", h.handleDatabases)
	})
	h.router = r

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		ActiveRuns: h.runs.Size(),
		CacheSize:  h.cache.Size(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "roles", func(ctx context.Context) (*CachedReport, error) {
		res, err := h.reports.RoleHierarchy(ctx)
		if err != nil {
			return nil, err
		}
		return &CachedReport{RunID: res.RunID, Report: res.Report, CreatedAt: time.Now()}, nil
	})
}

func (h *Handler) handleDatabases(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "databases", func(ctx context.Context) (*CachedReport, error) {
		res, err := h.reports.DatabaseSummary(ctx)
		if err != nil {
			return nil, err
		}
		return &CachedReport{RunID: res.RunID, Report: res.Report, CreatedAt: time.Now()}, nil
	})
}

func (h *Handler) serveReport(w http.ResponseWriter, r *http.Request, kind string, build func(ctx context.Context) (*CachedReport, error)) {
	query := r.URL.Query()

	format, err := report.ParseFormat(query.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	refresh := false
	if v := query.Get("refresh"); v != "" {
		if refresh, err = strconv.ParseBool(v); err != nil {
			http.Error(w, fmt.Sprintf("invalid refresh value %q", v), http.StatusBadRequest)
			return
		}
	}

	cacheKey := h.cache.Key(kind)
	if !refresh {
		if cached, ok := h.cache.Get(cacheKey); ok {
			h.writeReport(w, cached, format, "HIT")
			return
		}
	}

	v, shared, err := h.runs.Do(r.Context(), cacheKey, func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		start := time.Now()
		result, err := build(ctx)
		if err != nil {
			return nil, err
		}
		h.log.Info("report built",
			zap.String("report", kind),
			zap.String("run_id", result.RunID),
			zap.Duration("elapsed", time.Since(start)),
		)
		h.cache.Set(cacheKey, result)
		return result, nil
	})
	if err != nil {
		h.log.Error("report failed", zap.String("report", kind), zap.Error(err))
		http.Error(w, fmt.Sprintf("report failed: %v", err), http.StatusInternalServerError)
		return
	}

	cacheStatus := "MISS"
	if shared {
		cacheStatus = "SHARED"
	}
	h.writeReport(w, v.(*CachedReport), format, cacheStatus)
}

func (h *Handler) writeReport(w http.ResponseWriter, cached *CachedReport, format report.Format, cacheStatus string) {
	var buf bytes.Buffer
	if err := report.Write(&buf, cached.Report, format); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Cache", cacheStatus)
	w.Header().Set("X-Run-ID", cached.RunID)
	w.Header().Set("Last-Modified", cached.CreatedAt.UTC().Format(http.TimeFormat))
	_, _ = w.Write(buf.Bytes())
}
