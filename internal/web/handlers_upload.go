package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/ingest"
	"github.com/JonMunkholm/moduletrack/internal/logging"
	"github.com/JonMunkholm/moduletrack/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleImportFile starts an import of an uploaded xlsx, PDF or text file.
func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.service.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20) // room for the multipart envelope

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", ingest.ErrFileTooLarge, maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > maxSize {
		s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", ingest.ErrFileTooLarge, maxSize), http.StatusRequestEntityTooLarge)
		return
	}

	s.startImport(w, r, core.ImportRequest{
		Mode:     core.ImportFile,
		FileName: header.Filename,
		Data:     data,
	})
}

// handleImportText starts an import of pasted tabular text.
func (s *Server) handleImportText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize())
		if err := r.ParseForm(); err != nil {
			s.respondError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
			return
		}
		req.Text = r.PostForm.Get("text")
	}

	s.startImport(w, r, core.ImportRequest{Mode: core.ImportText, Text: req.Text})
}

// handleImportColumn starts a single-column import. With keys the values
// are matched by module number; without, they are paired with the stored
// modules in table order.
func (s *Server) handleImportColumn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column string   `json:"column"`
		Keys   []string `json:"keys"`
		Values []string `json:"values"`
	}
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize())
		if err := r.ParseForm(); err != nil {
			s.respondError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
			return
		}
		req.Column = r.PostForm.Get("column")
		req.Keys = lines(r.PostForm.Get("keys"))
		req.Values = lines(r.PostForm.Get("values"))
	}

	mode := core.ImportAlignedColumn
	if len(req.Keys) > 0 {
		mode = core.ImportKeyedColumn
	}
	s.startImport(w, r, core.ImportRequest{
		Mode:   mode,
		Column: req.Column,
		Keys:   req.Keys,
		Values: req.Values,
	})
}

// startImport hands req to the service. API clients get the import id
// back at once and follow progress separately; HTMX callers wait for the
// result and get the summary toast.
func (s *Server) startImport(w http.ResponseWriter, r *http.Request, req core.ImportRequest) {
	importID, err := s.service.StartImport(withClient(r), req)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	logging.WithFields(r.Context(), "import_id", importID, "mode", req.Mode).Info("import accepted")

	if !isHTMX(r) {
		writeJSON(w, http.StatusAccepted, map[string]string{"importId": importID})
		return
	}

	result, err := s.service.GetImportResult(r.Context(), importID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if result.Error != "" {
		msg := core.MapError(errors.New(result.Error))
		renderErrorPartial(w, r, msg, statusFor(errors.New(result.Error)))
		return
	}
	w.Header().Set("HX-Trigger", "modules-changed")
	_ = templates.Toast(result.Message).Render(r.Context(), w)
}

// handleImportStatus reports whether an import slot is free.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ImportLimiterStatus())
}

// handleImportProgress streams import progress via Server-Sent Events.
// Each write phase update is sent as a "progress" event; a final
// "complete" event carries the result.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	eventID := 0
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data := []byte("{}")
				if result, err := s.service.GetImportResult(r.Context(), importID); err == nil {
					data, _ = json.Marshal(result)
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			eventID++
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final result of an import, waiting for it
// to finish.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetImportResult(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelImport cancels a running import. Writes already made stay.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
