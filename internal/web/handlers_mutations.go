package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleCreateModule creates a module from a JSON body or the dashboard
// form.
func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	var in core.Module
	if isJSON(r) {
		if err := decodeJSON(w, r, &in); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	} else {
		m, err := formModule(r)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		in = m
	}

	created, err := s.service.CreateModule(withClient(r), in)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Trigger", "modules-changed")
		_ = templates.Toast(fmt.Sprintf("Module %s created.", created.ModuleNo)).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusCreated, toModuleResponse(created))
}

// handleUpdateModule applies a partial update from a JSON body or the
// dashboard edit form. Fields absent from the body are left unchanged.
func (s *Server) handleUpdateModule(w http.ResponseWriter, r *http.Request) {
	var p core.Patch
	if isJSON(r) {
		if err := decodeJSON(w, r, &p); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	} else {
		fp, err := formPatch(r)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		p = fp
	}

	updated, err := s.service.UpdateModule(withClient(r), chi.URLParam(r, "moduleNo"), p)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Trigger", "modules-changed")
		_ = templates.Toast(fmt.Sprintf("Module %s updated.", updated.ModuleNo)).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(updated))
}

// handleUpdateField sets one column from its display text, as the inline
// table editor sends it.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column string `json:"column"`
		Value  string `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.Column == "" {
		s.respondError(w, r, fmt.Errorf("invalid request: column is required"), http.StatusBadRequest)
		return
	}

	updated, err := s.service.UpdateField(withClient(r), chi.URLParam(r, "moduleNo"), req.Column, req.Value)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(updated))
}

// handleDeleteModule deletes one module. HTMX callers get an empty body so
// the row is swapped out.
func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteModule(withClient(r), chi.URLParam(r, "moduleNo")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if isHTMX(r) {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

// handleDeleteModules deletes several modules by module number.
func (s *Server) handleDeleteModules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if len(req.Keys) == 0 {
		s.respondError(w, r, fmt.Errorf("invalid request: no modules specified"), http.StatusBadRequest)
		return
	}

	deleted, err := s.service.DeleteModules(withClient(r), req.Keys)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleEvaluateModule re-runs the anomaly annotator on one module.
func (s *Server) handleEvaluateModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.EvaluateModule(withClient(r), chi.URLParam(r, "moduleNo"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if isHTMX(r) {
		msg := fmt.Sprintf("Module %s looks consistent.", m.ModuleNo)
		if m.IsAnomaly {
			msg = fmt.Sprintf("Module %s flagged: %s", m.ModuleNo, m.AnomalyExplanation)
		}
		_ = templates.Toast(msg).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(m))
}
