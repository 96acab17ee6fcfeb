package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler coordinates HTTP requests for financial reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
	csvPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	h := &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MountRoutes registers report endpoints onto the router. Exports get their
// own tighter rate limit since they bypass the cache-friendly JSON path.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/trial-balance", h.handleTrialBalance)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/trial-balance/export.csv", h.handleTrialBalanceCSV)
	})
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, tb)
}

func (h *Handler) handleTrialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.csvPool.Put(buf)

	if err := WriteTrialBalanceCSV(buf, tb); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	stamp := h.now().Format("20060102")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=trial-balance-%s.csv", stamp))
	_, _ = w.Write(buf.Bytes())
}

func parseAsOf(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("as_of must be YYYY-MM-DD")
	}
	return &parsed, nil
}
