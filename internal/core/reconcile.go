package core

// reconcile.go decides create vs update for mapped candidates and applies
// the writes.
//
// Order of work for one batch:
//  1. load every stored module and index it by moduleNo
//  2. fold candidates with the same key into one patch (later non-empty
//     values win)
//  3. diff each patch against the stored record; unchanged keys issue no
//     write
//  4. issue updates in stored-key order, then creates in input order
//
// Writes are at-least-once across the batch. A failed write is recorded in
// the summary and the batch continues; nothing already applied is rolled
// back.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

var (
	// ErrLineCountMismatch rejects a row-aligned column import whose line
	// count differs from the number of stored modules.
	ErrLineCountMismatch = errors.New("line count mismatch")

	// ErrKeyValueMismatch rejects a keyed column import whose key and value
	// lists differ in length.
	ErrKeyValueMismatch = errors.New("key/value count mismatch")

	// ErrUnknownColumn is returned for a column name that resolves to no field.
	ErrUnknownColumn = errors.New("unknown column")
)

// DefaultBatchSize is the number of updates grouped into one Batch call.
const DefaultBatchSize = 500

// Reconciler applies mapped candidates to a RecordStore.
type Reconciler struct {
	store     RecordStore
	batchSize int
	logger    *slog.Logger
	progress  func(done, total int)
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithBatchSize groups updates into Batch calls of n operations when the
// store implements Batcher. n <= 1 disables grouping.
func WithBatchSize(n int) ReconcilerOption {
	return func(r *Reconciler) { r.batchSize = n }
}

// WithLogger sets the logger used for per-write failures.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// WithProgress registers a callback invoked after every applied write.
func WithProgress(fn func(done, total int)) ReconcilerOption {
	return func(r *Reconciler) { r.progress = fn }
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store RecordStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileRows applies full-row candidates (spreadsheet, pasted table, PDF).
// Mapper skips and errors carried in mr are folded into the summary.
func (r *Reconciler) ReconcileRows(ctx context.Context, mr MapResult) (ImportSummary, error) {
	summary := ImportSummary{Skipped: mr.Skipped, Errors: append([]ImportError(nil), mr.Errors...)}

	existing, err := r.store.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load modules: %w", err)
	}
	r.apply(ctx, existing, mr.Candidates, &summary)
	return summary, nil
}

// ReconcileKeyedColumn pairs keys[i] with values[i] and sets column on each
// module. Keys not yet stored are created. The lists must have equal length;
// otherwise nothing is written.
func (r *Reconciler) ReconcileKeyedColumn(ctx context.Context, column string, keys, values []string) (ImportSummary, error) {
	var summary ImportSummary
	spec, ok := LookupField(column)
	if !ok {
		return summary, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	if spec.Field == FieldModuleNo {
		return summary, fmt.Errorf("%w: moduleNo cannot be the value column of a keyed import", ErrUnknownColumn)
	}
	if len(keys) != len(values) {
		return summary, fmt.Errorf("%w: %d module numbers but %d %s values", ErrKeyValueMismatch, len(keys), len(values), spec.Label)
	}

	existing, err := r.store.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load modules: %w", err)
	}

	candidates := make([]Candidate, 0, len(keys))
	for i := range keys {
		line := i + 1
		var p Patch
		SetField(&p, FieldModuleNo, keys[i], line)
		if ierr := SetField(&p, spec.Field, values[i], line); ierr != nil {
			summary.addError(*ierr)
		}
		candidates = append(candidates, Candidate{Line: line, Patch: p})
	}
	r.apply(ctx, existing, candidates, &summary)
	return summary, nil
}

// ReconcileAlignedColumn sets column on every stored module, pairing
// values[i] with the i-th module in stored-key order. With modules stored,
// the counts must match exactly or the import is rejected untouched.
//
// With the store empty, a moduleNo column creates one module per line and
// any other column is skipped since there is no key to attach it to. A
// moduleNo column of matching length against a non-empty store creates the
// keys not yet stored.
func (r *Reconciler) ReconcileAlignedColumn(ctx context.Context, column string, values []string) (ImportSummary, error) {
	var summary ImportSummary
	spec, ok := LookupField(column)
	if !ok {
		return summary, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	existing, err := r.store.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load modules: %w", err)
	}

	if len(existing) > 0 && len(values) != len(existing) {
		return summary, fmt.Errorf("%w: the number of lines pasted (%d) does not match the number of modules in the database (%d)",
			ErrLineCountMismatch, len(values), len(existing))
	}

	candidates := make([]Candidate, 0, len(values))

	switch {
	case spec.Field == FieldModuleNo:
		for i, v := range values {
			var p Patch
			SetField(&p, FieldModuleNo, v, i+1)
			candidates = append(candidates, Candidate{Line: i + 1, Patch: p})
		}

	case len(existing) == 0:
		summary.Skipped = len(values)
		if len(values) > 0 {
			summary.addError(ImportError{Field: string(spec.Field), Kind: KindValidation,
				Message: fmt.Sprintf("no modules stored; %d lines skipped, import module numbers first", len(values))})
		}
		return summary, nil

	default:
		for i, m := range existing {
			line := i + 1
			p := Patch{ModuleNo: Ptr(m.ModuleNo)}
			if ierr := SetField(&p, spec.Field, values[i], line); ierr != nil {
				summary.addError(*ierr)
			}
			candidates = append(candidates, Candidate{Line: line, Patch: p})
		}
	}

	r.apply(ctx, existing, candidates, &summary)
	return summary, nil
}

type plannedWrite struct {
	line  int
	key   string
	patch Patch  // update
	mod   Module // create
	order int    // position of key in stored-key order
}

// plan folds candidates by key and splits them into updates and creates.
func plan(existing []Module, candidates []Candidate, summary *ImportSummary) (updates, creates []plannedWrite) {
	byKey := make(map[string]int, len(existing))
	for i, m := range existing {
		byKey[m.ModuleNo] = i
	}

	var keys []string
	merged := make(map[string]Patch)
	lastLine := make(map[string]int)
	for _, c := range candidates {
		p := c.Patch.Compact()
		key := p.Key()
		if key == "" {
			summary.Skipped++
			summary.addError(ImportError{Line: c.Line, Field: string(FieldModuleNo), Kind: KindValidation,
				Message: "moduleNo is a required field"})
			continue
		}
		p.ModuleNo = Ptr(key)
		if _, seen := merged[key]; !seen {
			keys = append(keys, key)
		}
		merged[key] = merged[key].Merge(p)
		lastLine[key] = c.Line
	}

	for _, key := range keys {
		p := merged[key]
		if idx, ok := byKey[key]; ok {
			d := p.Diff(existing[idx])
			if d.IsEmpty() {
				summary.Unchanged++
				continue
			}
			updates = append(updates, plannedWrite{line: lastLine[key], key: key, patch: d, order: idx})
			continue
		}
		creates = append(creates, plannedWrite{line: lastLine[key], key: key, mod: NewModule(p)})
	}

	sort.SliceStable(updates, func(i, j int) bool { return updates[i].order < updates[j].order })
	return updates, creates
}

func (r *Reconciler) apply(ctx context.Context, existing []Module, candidates []Candidate, summary *ImportSummary) {
	updates, creates := plan(existing, candidates, summary)
	total := len(updates) + len(creates)
	done := 0
	step := func(n int) {
		done += n
		if r.progress != nil {
			r.progress(done, total)
		}
	}

	batcher, canBatch := r.store.(Batcher)
	if canBatch && r.batchSize > 1 {
		for start := 0; start < len(updates); start += r.batchSize {
			if ctx.Err() != nil {
				summary.Cancelled = true
				return
			}
			end := min(start+r.batchSize, len(updates))
			chunk := updates[start:end]
			ops := make([]WriteOp, len(chunk))
			for i, u := range chunk {
				ops[i] = WriteOp{Kind: OpUpdate, Key: u.key, Patch: u.patch}
			}
			if err := batcher.Batch(ctx, ops); err != nil {
				r.logger.Warn("batch update failed", "ops", len(ops), "error", err)
				for _, u := range chunk {
					r.fail(summary, u, err)
				}
			} else {
				summary.Updated += len(chunk)
			}
			step(len(chunk))
		}
	} else {
		for _, u := range updates {
			if ctx.Err() != nil {
				summary.Cancelled = true
				return
			}
			if _, err := r.store.Update(ctx, u.key, u.patch); err != nil {
				r.logger.Warn("update failed", "module_no", u.key, "error", err)
				r.fail(summary, u, err)
			} else {
				summary.Updated++
			}
			step(1)
		}
	}

	// Creates are never grouped with the updates.
	for _, c := range creates {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return
		}
		if _, err := r.store.Create(ctx, c.mod); err != nil {
			r.logger.Warn("create failed", "module_no", c.key, "error", err)
			r.fail(summary, c, err)
		} else {
			summary.Created++
		}
		step(1)
	}
}

func (r *Reconciler) fail(summary *ImportSummary, w plannedWrite, err error) {
	summary.Failed++
	summary.addError(ImportError{Line: w.line, ModuleNo: w.key, Kind: KindStore, Message: err.Error()})
}
