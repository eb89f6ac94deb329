package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/export"
	"github.com/JonMunkholm/moduletrack/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleDashboard renders the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := parseFilter(r)

	all, err := s.service.ListModules(ctx, core.Filter{})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	shown := make([]core.Module, 0, len(all))
	for _, m := range all {
		if filter.Match(m) {
			shown = append(shown, m)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.Dashboard(templates.DashboardParams{
		Modules:    shown,
		Filter:     filter,
		Total:      len(all),
		ImportBusy: s.service.ImportLimiterStatus().Busy,
	}).Render(ctx, w)
}

// handleModuleTable renders the filtered table on its own. The dashboard
// reloads it after every change.
func (s *Server) handleModuleTable(w http.ResponseWriter, r *http.Request) {
	mods, err := s.service.ListModules(r.Context(), parseFilter(r))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.ModuleTable(mods).Render(r.Context(), w)
}

// handleHealth reports liveness and, when configured, store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListModules returns the filtered module listing.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	mods, err := s.service.ListModules(r.Context(), parseFilter(r))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modules": toModuleResponses(mods),
		"count":   len(mods),
	})
}

// handleGetModule returns one module.
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.GetModule(r.Context(), chi.URLParam(r, "moduleNo"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(m))
}

// handleExportXLSX downloads the filtered listing as a workbook.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, export.XLSXFileName, export.XLSXContentType, func(buf *bytes.Buffer, mods []core.Module) error {
		return export.WriteXLSX(buf, mods)
	})
}

// handleExportPDF downloads the filtered listing as a PDF table.
func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, export.PDFFileName, export.PDFContentType, func(buf *bytes.Buffer, mods []core.Module) error {
		return export.WritePDF(buf, mods, time.Now())
	})
}

// export renders into a buffer first so a failed render still gets an
// error status instead of a truncated download.
func (s *Server) export(w http.ResponseWriter, r *http.Request, fileName, contentType string, render func(*bytes.Buffer, []core.Module) error) {
	mods, err := s.service.ListModules(r.Context(), parseFilter(r))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, mods); err != nil {
		s.respondError(w, r, fmt.Errorf("export %s: %w", fileName, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	_, _ = buf.WriteTo(w)
}
