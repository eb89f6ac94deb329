package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/ingest"
	"github.com/google/uuid"
)

var (
	// ErrImportNotFound is returned for an unknown or expired import id.
	ErrImportNotFound = errors.New("import not found")

	// ErrUnsupportedFile is returned for uploads that are neither xlsx, PDF
	// nor text.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// resultRetention is how long a finished import stays queryable.
const resultRetention = 5 * time.Minute

// ImportMode selects how an import request is read.
type ImportMode string

const (
	ImportFile          ImportMode = "file"
	ImportText          ImportMode = "text"
	ImportKeyedColumn   ImportMode = "keyed-column"
	ImportAlignedColumn ImportMode = "aligned-column"
)

// ImportRequest is one import. Which fields are read depends on Mode:
// File uses FileName and Data, Text uses Text, the column modes use Column
// with Values (and Keys for the keyed mode).
type ImportRequest struct {
	Mode     ImportMode
	FileName string
	Data     []byte
	Text     string
	Column   string
	Keys     []string
	Values   []string
}

// Validate rejects requests that cannot start.
func (r ImportRequest) Validate() error {
	switch r.Mode {
	case ImportFile:
		if len(r.Data) == 0 {
			return fmt.Errorf("no file provided")
		}
	case ImportText:
		if len(SplitLines(r.Text)) == 0 {
			return fmt.Errorf("%w: nothing pasted", ingest.ErrEmptyFile)
		}
	case ImportKeyedColumn, ImportAlignedColumn:
		if _, ok := LookupField(r.Column); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, r.Column)
		}
	default:
		return fmt.Errorf("invalid request: unknown import mode %q", r.Mode)
	}
	return nil
}

// ImportPhase is the stage an import has reached.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseReading   ImportPhase = "reading"
	PhaseWriting   ImportPhase = "writing"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress is broadcast to subscribers while an import runs.
type ImportProgress struct {
	ImportID string      `json:"importId"`
	Mode     ImportMode  `json:"mode"`
	FileName string      `json:"fileName,omitempty"`
	Phase    ImportPhase `json:"phase"`
	Done     int         `json:"done"`
	Total    int         `json:"total"`
	Error    string      `json:"error,omitempty"`
}

// ImportResult is the outcome of a finished import.
type ImportResult struct {
	ImportID string        `json:"importId"`
	Mode     ImportMode    `json:"mode"`
	FileName string        `json:"fileName,omitempty"`
	Summary  ImportSummary `json:"summary"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

type activeImport struct {
	ID       string
	Request  ImportRequest
	Cancel   context.CancelFunc
	Result   *ImportResult
	Done     chan struct{}
	progress ImportProgress

	ListenerMu sync.Mutex
	Listeners  []chan ImportProgress
}

// StartImport runs req in the background and returns its id immediately.
// Only a limited number of imports run at once; when every slot is taken
// ErrImportInProgress is returned and nothing is started.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if int64(len(req.Data)) > s.maxFileSize && s.maxFileSize > 0 {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ingest.ErrFileTooLarge, len(req.Data), s.maxFileSize)
	}
	if err := s.limiter.TryAcquire(); err != nil {
		return "", err
	}

	importID := uuid.New().String()
	importCtx, cancel := context.WithTimeout(context.Background(), s.importTimeout)

	imp := &activeImport{
		ID:      importID,
		Request: req,
		Cancel:  cancel,
		Done:    make(chan struct{}),
		progress: ImportProgress{
			ImportID: importID,
			Mode:     req.Mode,
			FileName: req.FileName,
			Phase:    PhaseStarting,
		},
	}

	s.mu.Lock()
	s.imports[importID] = imp
	s.mu.Unlock()

	logger := slog.With("import_id", importID, "mode", req.Mode, "file", req.FileName).With(clientAttrs(ctx)...)
	logger.Info("import started")

	// Recover so a panic still releases the slot and wakes waiters.
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in import", "panic", r)
				imp.Result = &ImportResult{
					ImportID: importID,
					Mode:     req.Mode,
					FileName: req.FileName,
					Error:    fmt.Sprintf("internal error: %v", r),
				}
				imp.setPhase(PhaseFailed, imp.Result.Error)
				s.finish(imp)
			}
		}()

		imp.setPhase(PhaseReading, "")
		start := time.Now()
		summary, err := s.runImport(importCtx, req, imp.onProgress, logger)

		imp.Result = s.result(importID, req, summary, err, time.Since(start))
		switch {
		case err != nil:
			imp.setPhase(PhaseFailed, err.Error())
		case summary.Cancelled:
			imp.setPhase(PhaseCancelled, "")
		default:
			imp.setPhase(PhaseComplete, "")
		}
		s.finish(imp)
	}()

	return importID, nil
}

// RunImport runs req synchronously on the caller's context. The CLI uses it
// so Ctrl-C cancels the import. progress may be nil.
func (s *Service) RunImport(ctx context.Context, req ImportRequest, progress func(done, total int)) (*ImportResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	importCtx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	importID := uuid.New().String()
	logger := slog.With("import_id", importID, "mode", req.Mode, "file", req.FileName)

	start := time.Now()
	summary, err := s.runImport(importCtx, req, progress, logger)
	return s.result(importID, req, summary, err, time.Since(start)), err
}

// runImport reads, maps and reconciles one request.
func (s *Service) runImport(ctx context.Context, req ImportRequest, progress func(done, total int), logger *slog.Logger) (summary ImportSummary, err error) {
	defer func() {
		if s.observer != nil {
			s.observer(req.Mode, summary, err)
		}
		if err != nil {
			logger.Warn("import failed", "error", err)
			return
		}
		logger.Info("import finished",
			"created", summary.Created,
			"updated", summary.Updated,
			"unchanged", summary.Unchanged,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"cancelled", summary.Cancelled,
		)
	}()

	rec := NewReconciler(s.store,
		WithBatchSize(s.batchSize),
		WithLogger(logger),
		WithProgress(progress),
	)

	switch req.Mode {
	case ImportKeyedColumn:
		return rec.ReconcileKeyedColumn(ctx, req.Column, req.Keys, req.Values)
	case ImportAlignedColumn:
		return rec.ReconcileAlignedColumn(ctx, req.Column, req.Values)
	case ImportText:
		return rec.ReconcileRows(ctx, MapText(req.Text))
	case ImportFile:
		mr, err := mapFile(req.FileName, req.Data)
		if err != nil {
			return ImportSummary{}, err
		}
		return rec.ReconcileRows(ctx, mr)
	default:
		return ImportSummary{}, fmt.Errorf("invalid request: unknown import mode %q", req.Mode)
	}
}

// mapFile reads an uploaded file and maps it to candidates.
func mapFile(fileName string, data []byte) (MapResult, error) {
	head := data
	if len(head) > 8 {
		head = head[:8]
	}

	switch ingest.Detect(fileName, head) {
	case ingest.KindSpreadsheet:
		rows, err := ingest.ReadSpreadsheet(bytes.NewReader(data))
		if err != nil {
			return MapResult{}, err
		}
		return MapRows(rows), nil
	case ingest.KindPDF:
		pages, err := ingest.ReadPDF(data)
		if err != nil {
			return MapResult{}, err
		}
		return MapPDFText(pages), nil
	case ingest.KindText:
		text, err := ingest.ReadText(bytes.NewReader(data), 0)
		if err != nil {
			return MapResult{}, err
		}
		return MapText(text), nil
	default:
		return MapResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}
}

func (s *Service) result(id string, req ImportRequest, summary ImportSummary, err error, d time.Duration) *ImportResult {
	res := &ImportResult{
		ImportID: id,
		Mode:     req.Mode,
		FileName: req.FileName,
		Summary:  summary,
		Message:  summary.Message(),
		Duration: d,
	}
	if err != nil {
		res.Error = err.Error()
		res.Message = FormatUserError(err)
	}
	return res
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)

	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	// Send current progress immediately
	ch <- imp.progress
	select {
	case <-imp.Done:
		close(ch)
	default:
		imp.Listeners = append(imp.Listeners, ch)
	}
	return ch, nil
}

// CancelImport cancels a running import. Writes already applied stay.
func (s *Service) CancelImport(importID string) error {
	imp, err := s.lookup(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// GetImportResult returns the result of an import, blocking until it
// finishes or ctx is done.
func (s *Service) GetImportResult(ctx context.Context, importID string) (*ImportResult, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}
	select {
	case <-imp.Done:
		return imp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ImportLimiterStatus returns the import slot state for the dashboard.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// finish closes listeners, wakes waiters and schedules removal.
func (s *Service) finish(imp *activeImport) {
	imp.ListenerMu.Lock()
	for _, ch := range imp.Listeners {
		close(ch)
	}
	imp.Listeners = nil
	close(imp.Done)
	imp.ListenerMu.Unlock()

	time.AfterFunc(resultRetention, func() {
		s.mu.Lock()
		delete(s.imports, imp.ID)
		s.mu.Unlock()
	})
}

func (imp *activeImport) onProgress(done, total int) {
	imp.ListenerMu.Lock()
	imp.progress.Phase = PhaseWriting
	imp.progress.Done = done
	imp.progress.Total = total
	imp.ListenerMu.Unlock()
	imp.notifyProgress()
}

func (imp *activeImport) setPhase(phase ImportPhase, errMsg string) {
	imp.ListenerMu.Lock()
	imp.progress.Phase = phase
	imp.progress.Error = errMsg
	imp.ListenerMu.Unlock()
	imp.notifyProgress()
}

// notifyProgress sends the current progress to all listeners.
func (imp *activeImport) notifyProgress() {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	for _, ch := range imp.Listeners {
		select {
		case ch <- imp.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}
