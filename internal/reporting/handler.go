package reporting

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
)

// Handler exposes report and export endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/daily", h.dailySeries)
	r.Route("/exports", func(r chi.Router) {
		r.Get("/products.csv", h.export("text/csv; charset=utf-8", "products.csv", h.service.ExportProductsCSV))
		r.Get("/transactions.csv", h.export("text/csv; charset=utf-8", "transactions.csv", h.service.ExportTransactionsCSV))
		r.Get("/transactions.xlsx", h.export("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "transactions.xlsx", h.service.ExportTransactionsXLSX))
	})
}

type seriesResponse struct {
	Series
	Values []string `json:"values"`
}

func (h *Handler) dailySeries(w http.ResponseWriter, r *http.Request) {
	month, year, ok := inventory.MonthYear(w, r)
	if !ok {
		return
	}
	metric, err := ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	series, err := h.service.DailySeries(r.Context(), month, year, metric)
	if err != nil {
		h.fail(w, "daily series", err)
		return
	}
	values := series.Values()
	resp := seriesResponse{Series: series, Values: make([]string, len(values))}
	for i, v := range values {
		resp.Values[i] = v.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// export renders into a buffer first so a failure can still produce a problem response.
func (h *Handler) export(contentType, filename string, fn func(context.Context, io.Writer) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := fn(r.Context(), &buf); err != nil {
			h.fail(w, "export "+filename, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
