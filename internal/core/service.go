package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/config"
)

// DefaultImportTimeout is used when no configuration is supplied.
const DefaultImportTimeout = 10 * time.Minute

// DefaultAnnotatorTimeout bounds one annotator call.
const DefaultAnnotatorTimeout = 20 * time.Second

// Service provides module CRUD and the import pipeline on top of a
// RecordStore.
type Service struct {
	store     RecordStore
	annotator Annotator
	limiter   *ImportLimiter

	importTimeout    time.Duration
	annotatorTimeout time.Duration
	batchSize        int
	maxFileSize      int64

	observer func(mode ImportMode, summary ImportSummary, err error)

	mu      sync.RWMutex
	imports map[string]*activeImport
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithImportObserver registers fn to be called once per finished import.
// Metrics hook in here.
func WithImportObserver(fn func(mode ImportMode, summary ImportSummary, err error)) ServiceOption {
	return func(s *Service) { s.observer = fn }
}

// NewService creates a Service. annotator may be nil, in which case no
// module is ever flagged. A nil cfg uses the defaults.
func NewService(store RecordStore, annotator Annotator, cfg *config.Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = config.Defaults()
	}

	s := &Service{
		store:            store,
		annotator:        annotator,
		limiter:          NewImportLimiter(cfg.Import.MaxConcurrent),
		importTimeout:    cfg.Import.Timeout,
		annotatorTimeout: cfg.Annotator.Timeout,
		batchSize:        cfg.Import.BatchSize,
		maxFileSize:      cfg.Import.MaxFileSize,
		imports:          make(map[string]*activeImport),
	}
	if !cfg.Import.BatchUpdates {
		s.batchSize = 1
	}
	if s.importTimeout <= 0 {
		s.importTimeout = DefaultImportTimeout
	}
	if s.annotatorTimeout <= 0 {
		s.annotatorTimeout = DefaultAnnotatorTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// ListModules returns the modules matching f, ordered by moduleNo.
func (s *Service) ListModules(ctx context.Context, f Filter) ([]Module, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	out := make([]Module, 0, len(all))
	for _, m := range all {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetModule returns the module with the given moduleNo.
func (s *Service) GetModule(ctx context.Context, moduleNo string) (Module, error) {
	m, ok, err := s.store.GetByKey(ctx, strings.TrimSpace(moduleNo))
	if err != nil {
		return Module{}, fmt.Errorf("get module: %w", err)
	}
	if !ok {
		return Module{}, fmt.Errorf("get %s: %w", moduleNo, ErrNotFound)
	}
	return m, nil
}

// CreateModule validates and stores a module submitted through the form.
// The annotator runs before the write.
func (s *Service) CreateModule(ctx context.Context, in Module) (Module, error) {
	m := NewModule(PatchFrom(trimModule(in)))
	m.RFLODate = NormalizeDate(m.RFLODate)
	m.Status = canonicalStatus(m.Status)
	if err := ValidateModule(m); err != nil {
		return Module{}, err
	}

	if _, exists, err := s.store.GetByKey(ctx, m.ModuleNo); err != nil {
		return Module{}, fmt.Errorf("create module: %w", err)
	} else if exists {
		return Module{}, fmt.Errorf("create %s: %w", m.ModuleNo, ErrDuplicateKey)
	}

	res := s.annotate(ctx, m)
	m.IsAnomaly = res.IsAnomaly
	m.AnomalyExplanation = res.Explanation

	created, err := s.store.Create(ctx, m)
	if err != nil {
		return Module{}, fmt.Errorf("create module: %w", err)
	}
	slog.Info("module created", "module_no", created.ModuleNo, "anomaly", created.IsAnomaly)
	return created, nil
}

// UpdateModule applies a form edit to the module stored under key. Fields
// absent from p are kept. A blank rfloDate keeps the stored date. The merged
// record must validate; the annotator then re-evaluates it.
func (s *Service) UpdateModule(ctx context.Context, key string, p Patch) (Module, error) {
	key = strings.TrimSpace(key)
	existing, err := s.GetModule(ctx, key)
	if err != nil {
		return Module{}, err
	}

	p = trimPatch(p)
	if p.RFLODate != nil {
		if *p.RFLODate == "" {
			p.RFLODate = nil
		} else {
			p.RFLODate = Ptr(NormalizeDate(*p.RFLODate))
		}
	}
	if p.Status != nil {
		p.Status = Ptr(canonicalStatus(*p.Status))
	}
	// Annotator fields are never taken from the caller.
	p.IsAnomaly, p.AnomalyExplanation = nil, nil

	merged := p.Apply(existing)
	if err := ValidateModule(merged); err != nil {
		return Module{}, err
	}
	if merged.ModuleNo != key {
		if _, taken, err := s.store.GetByKey(ctx, merged.ModuleNo); err != nil {
			return Module{}, fmt.Errorf("update module: %w", err)
		} else if taken {
			return Module{}, fmt.Errorf("update %s: %w", merged.ModuleNo, ErrDuplicateKey)
		}
	}

	res := s.annotate(ctx, merged)
	p.IsAnomaly = Ptr(res.IsAnomaly)
	p.AnomalyExplanation = Ptr(res.Explanation)

	d := p.Diff(existing)
	if d.IsEmpty() {
		return existing, nil
	}
	updated, err := s.store.Update(ctx, key, d)
	if err != nil {
		return Module{}, fmt.Errorf("update module: %w", err)
	}
	slog.Info("module updated", "module_no", updated.ModuleNo, "anomaly", updated.IsAnomaly)
	return updated, nil
}

// UpdateField sets a single column from its display text, the way the
// inline table editor submits it.
func (s *Service) UpdateField(ctx context.Context, key, column, value string) (Module, error) {
	spec, ok := LookupField(column)
	if !ok {
		return Module{}, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	var p Patch
	switch spec.Field {
	case FieldStatus:
		st, ok := ParseStatus(value)
		if !ok || st == "" {
			return Module{}, &ValidationError{Fields: map[string]string{string(FieldStatus): "modulestatus"}}
		}
		p.Status = Ptr(st)
	case FieldSignedReport:
		signed, _ := ParseSigned(value)
		p.SignedReport = Ptr(signed)
	default:
		if strings.TrimSpace(value) == "" {
			// Clearing a field is allowed here; required fields fail validation.
			setBlank(&p, spec.Field)
		} else if ierr := SetField(&p, spec.Field, value, 0); ierr != nil && ierr.Kind != KindParse {
			return Module{}, ierr
		}
	}
	return s.UpdateModule(ctx, key, p)
}

// DeleteModule removes one module.
func (s *Service) DeleteModule(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	slog.Info("module deleted", append([]any{"module_no", key}, clientAttrs(ctx)...)...)
	return nil
}

// DeleteModules removes several modules in one batch when the store
// supports it, otherwise one at a time. It returns the number deleted.
func (s *Service) DeleteModules(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	if b, ok := s.store.(Batcher); ok {
		ops := make([]WriteOp, len(keys))
		for i, k := range keys {
			ops[i] = WriteOp{Kind: OpDelete, Key: strings.TrimSpace(k)}
		}
		if err := b.Batch(ctx, ops); err != nil {
			return 0, fmt.Errorf("delete modules: %w", err)
		}
		slog.Info("modules deleted", append([]any{"count", len(keys)}, clientAttrs(ctx)...)...)
		return len(keys), nil
	}

	var errs []error
	deleted := 0
	for _, k := range keys {
		if err := s.store.Delete(ctx, strings.TrimSpace(k)); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	slog.Info("modules deleted", "count", deleted, "failed", len(errs))
	if len(errs) > 0 {
		return deleted, fmt.Errorf("delete modules: %w", errors.Join(errs...))
	}
	return deleted, nil
}

// EvaluateModule re-runs the annotator on a stored module and saves the
// verdict.
func (s *Service) EvaluateModule(ctx context.Context, key string) (Module, error) {
	m, err := s.GetModule(ctx, key)
	if err != nil {
		return Module{}, err
	}

	res := s.annotate(ctx, m)
	d := Patch{IsAnomaly: Ptr(res.IsAnomaly), AnomalyExplanation: Ptr(res.Explanation)}.Diff(m)
	if d.IsEmpty() {
		return m, nil
	}
	updated, err := s.store.Update(ctx, m.ModuleNo, d)
	if err != nil {
		return Module{}, fmt.Errorf("evaluate module: %w", err)
	}
	return updated, nil
}

// annotate asks the annotator about m. Any failure counts as no anomaly.
func (s *Service) annotate(ctx context.Context, m Module) AnomalyResult {
	if s.annotator == nil {
		return AnomalyResult{}
	}

	actx, cancel := context.WithTimeout(ctx, s.annotatorTimeout)
	defer cancel()

	res, err := s.annotator.Evaluate(actx, AnomalyInputFor(m))
	if err != nil {
		slog.Warn("anomaly annotator failed, saving without flag",
			"module_no", m.ModuleNo,
			"error", err,
		)
		return AnomalyResult{}
	}
	return res
}

// canonicalStatus fixes the case and spacing of a recognized status and
// leaves anything else for validation to reject.
func canonicalStatus(st Status) Status {
	if parsed, ok := ParseStatus(string(st)); ok && parsed != "" {
		return parsed
	}
	return st
}

func trimModule(m Module) Module {
	m.ModuleNo = strings.TrimSpace(m.ModuleNo)
	m.Yard = strings.TrimSpace(m.Yard)
	m.Location = strings.TrimSpace(m.Location)
	m.RFLODate = strings.TrimSpace(m.RFLODate)
	m.ShipmentNo = strings.TrimSpace(m.ShipmentNo)
	m.YardReport = strings.TrimSpace(m.YardReport)
	m.IslandReport = strings.TrimSpace(m.IslandReport)
	m.UpdatedBy = strings.TrimSpace(m.UpdatedBy)
	return m
}

func trimPatch(p Patch) Patch {
	for _, f := range []**string{&p.ModuleNo, &p.Yard, &p.Location, &p.RFLODate, &p.ShipmentNo,
		&p.YardReport, &p.IslandReport, &p.UpdatedBy} {
		if *f != nil {
			*f = Ptr(strings.TrimSpace(**f))
		}
	}
	return p
}

func setBlank(p *Patch, f Field) {
	empty := Ptr("")
	switch f {
	case FieldModuleNo:
		p.ModuleNo = empty
	case FieldYard:
		p.Yard = empty
	case FieldLocation:
		p.Location = empty
	case FieldShipmentNo:
		p.ShipmentNo = empty
	case FieldYardReport:
		p.YardReport = empty
	case FieldIslandReport:
		p.IslandReport = empty
	case FieldUpdatedBy:
		p.UpdatedBy = empty
	}
}
