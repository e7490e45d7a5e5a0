package api

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

type DashboardHandler struct {
	Service *service.DashboardService
	Reports *service.ReportService
	Loc     *time.Location
	page    *template.Template
}

func NewDashboardHandler(svc *service.DashboardService, reports *service.ReportService, loc *time.Location) *DashboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	funcs := template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.In(loc).Format("02/01 15:04") },
		"money": func(v any) string {
			switch d := v.(type) {
			case decimal.Decimal:
				return d.StringFixed(2)
			case *decimal.Decimal:
				if d == nil {
					return "-"
				}
				return d.StringFixed(2)
			}
			return ""
		},
	}
	page := template.Must(template.New("dashboard.html").Funcs(funcs).ParseFS(templateFS, "templates/dashboard.html"))
	return &DashboardHandler{Service: svc, Reports: reports, Loc: loc, page: page}
}

func (h *DashboardHandler) Lot(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.Service.Lot(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Overview(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Page renders the same dashboard as HTML for a browser tab left open at the booth.
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := h.Service.Lot(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, d); err != nil {
		log.WithError(err).WithField("lot_id", id).Error("Failed to render dashboard")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (h *DashboardHandler) RevenueReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "revenue", h.Reports.Revenue)
}

func (h *DashboardHandler) OccupancyReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "occupancy", h.Reports.Occupancy)
}

type reportFunc func(ctx context.Context, p auth.Principal, lotID int, from, to *time.Time, w io.Writer) error

func (h *DashboardHandler) report(w http.ResponseWriter, r *http.Request, name string, render reportFunc) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryTime(r, "from", h.Loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to", h.Loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := render(r.Context(), principal(r), id, from, to, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`.pdf"`)
	buf.WriteTo(w)
}
