package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnnotator returns a fixed verdict, or err when set.
type stubAnnotator struct {
	mu    sync.Mutex
	res   core.AnomalyResult
	err   error
	calls []core.AnomalyInput
}

func (a *stubAnnotator) Evaluate(_ context.Context, in core.AnomalyInput) (core.AnomalyResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, in)
	return a.res, a.err
}

// blockingStore parks GetAll until release is closed or ctx is done.
type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore() *blockingStore {
	return &blockingStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingStore) GetAll(ctx context.Context) ([]core.Module, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.GetAll(ctx)
}

func validModule(no string) core.Module {
	return core.Module{ModuleNo: no, Yard: "North", Location: "Bay 1", Status: core.StatusPending}
}

// ============================================================================
// CRUD
// ============================================================================

func TestCreateModule(t *testing.T) {
	ctx := context.Background()
	ann := &stubAnnotator{res: core.AnomalyResult{IsAnomaly: true, Explanation: "location unusual for yard"}}
	svc := core.NewService(memory.New(), ann, nil)

	in := validModule("  M1 ")
	in.RFLODate = "3/15/2023"
	in.YardReport = "welding done"

	got, err := svc.CreateModule(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "M1", got.ModuleNo)
	assert.Equal(t, "2023-03-15", got.RFLODate)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.IsAnomaly)
	assert.Equal(t, "location unusual for yard", got.AnomalyExplanation)

	require.Len(t, ann.calls, 1)
	assert.Equal(t, "welding done", ann.calls[0].Notes)
}

func TestCreateModule_Validation(t *testing.T) {
	svc := core.NewService(memory.New(), nil, nil)

	_, err := svc.CreateModule(context.Background(), core.Module{ModuleNo: "M1", Status: "Shipped"})

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["yard"])
	assert.Equal(t, "required", verr.Fields["location"])
	assert.Equal(t, "modulestatus", verr.Fields["rfloDateStatus"])
	assert.Contains(t, core.FormatUserError(err), "VAL")
}

func TestCreateModule_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New(), nil, nil)

	_, err := svc.CreateModule(ctx, validModule("M1"))
	require.NoError(t, err)

	_, err = svc.CreateModule(ctx, validModule("M1"))
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestCreateModule_AnnotatorFailureStillSaves(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := core.NewService(store, &stubAnnotator{err: errors.New("upstream unavailable")}, nil)

	got, err := svc.CreateModule(ctx, validModule("M1"))
	require.NoError(t, err)

	assert.False(t, got.IsAnomaly)
	assert.Empty(t, got.AnomalyExplanation)
	assert.Equal(t, 1, store.Len())
}

func TestUpdateModule_Partial(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New(), nil, nil)

	in := validModule("M1")
	in.RFLODate = "2024-01-02"
	in.ShipmentNo = "S-9"
	_, err := svc.CreateModule(ctx, in)
	require.NoError(t, err)

	got, err := svc.UpdateModule(ctx, "M1", core.Patch{
		Location: core.Ptr(" Bay 7 "),
		RFLODate: core.Ptr(""),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bay 7", got.Location)
	assert.Equal(t, "2024-01-02", got.RFLODate, "blank date keeps the stored one")
	assert.Equal(t, "S-9", got.ShipmentNo)
	assert.Equal(t, "North", got.Yard)
}

func TestUpdateModule_Rekey(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New(), nil, nil)
	for _, no := range []string{"M1", "M2"} {
		_, err := svc.CreateModule(ctx, validModule(no))
		require.NoError(t, err)
	}

	_, err := svc.UpdateModule(ctx, "M1", core.Patch{ModuleNo: core.Ptr("M2")})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)

	got, err := svc.UpdateModule(ctx, "M1", core.Patch{ModuleNo: core.Ptr("M3")})
	require.NoError(t, err)
	assert.Equal(t, "M3", got.ModuleNo)

	_, err = svc.GetModule(ctx, "M1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateModule_NotFound(t *testing.T) {
	svc := core.NewService(memory.New(), nil, nil)
	_, err := svc.UpdateModule(context.Background(), "missing", core.Patch{Yard: core.Ptr("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateField(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New(), nil, nil)
	_, err := svc.CreateModule(ctx, validModule("M1"))
	require.NoError(t, err)

	t.Run("status", func(t *testing.T) {
		got, err := svc.UpdateField(ctx, "M1", "RFLO Date Status", "date confirmed")
		require.NoError(t, err)
		assert.Equal(t, core.StatusDateConfirmed, got.Status)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := svc.UpdateField(ctx, "M1", "rfloDateStatus", "Shipped")
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "modulestatus", verr.Fields["rfloDateStatus"])

		m, _ := svc.GetModule(ctx, "M1")
		assert.Equal(t, core.StatusDateConfirmed, m.Status)
	})

	t.Run("signed", func(t *testing.T) {
		got, err := svc.UpdateField(ctx, "M1", "signedReport", "yes")
		require.NoError(t, err)
		assert.True(t, got.SignedReport)
	})

	t.Run("clear optional", func(t *testing.T) {
		_, err := svc.UpdateField(ctx, "M1", "shipmentNo", "S-1")
		require.NoError(t, err)
		got, err := svc.UpdateField(ctx, "M1", "shipmentNo", "  ")
		require.NoError(t, err)
		assert.Empty(t, got.ShipmentNo)
	})

	t.Run("clear required", func(t *testing.T) {
		_, err := svc.UpdateField(ctx, "M1", "yard", "")
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := svc.UpdateField(ctx, "M1", "Comments", "x")
		assert.ErrorIs(t, err, core.ErrUnknownColumn)
	})
}

func TestDeleteModules(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := core.NewService(store, nil, nil)
	for _, no := range []string{"M1", "M2", "M3"} {
		_, err := svc.CreateModule(ctx, validModule(no))
		require.NoError(t, err)
	}

	n, err := svc.DeleteModules(ctx, []string{"M1", "M3"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.Len())

	// A missing key fails the whole batch.
	_, err = svc.DeleteModules(ctx, []string{"M2", "nope"})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, svc.DeleteModule(ctx, "M2"))
	assert.ErrorIs(t, svc.DeleteModule(ctx, "M2"), core.ErrNotFound)
}

func TestDeleteModules_Unbatched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, validModule("M1"), validModule("M2"))
	svc := core.NewService(unbatched{store}, nil, nil)

	n, err := svc.DeleteModules(ctx, []string{"M1", "nope", "M2"})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, store.Len())
}

func TestEvaluateModule(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, validModule("M1"))

	ann := &stubAnnotator{res: core.AnomalyResult{IsAnomaly: true, Explanation: "no progress notes"}}
	svc := core.NewService(store, ann, nil)

	got, err := svc.EvaluateModule(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, got.IsAnomaly)

	stored, _, _ := store.GetByKey(ctx, "M1")
	assert.Equal(t, "no progress notes", stored.AnomalyExplanation)
}

func TestListModules_Filter(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := validModule("A-100")
	b := validModule("B-200")
	b.Yard = "South"
	seed(t, store, a, b)
	svc := core.NewService(store, nil, nil)

	got, err := svc.ListModules(ctx, core.Filter{Yard: "south"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B-200", got[0].ModuleNo)

	got, err = svc.ListModules(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// ============================================================================
// Imports
// ============================================================================

func TestStartImport_Text(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	type observed struct {
		mode    core.ImportMode
		summary core.ImportSummary
		err     error
	}
	obs := make(chan observed, 1)
	ann := &stubAnnotator{}
	svc := core.NewService(store, ann, nil, core.WithImportObserver(func(mode core.ImportMode, s core.ImportSummary, err error) {
		obs <- observed{mode, s, err}
	}))

	id, err := svc.StartImport(ctx, core.ImportRequest{
		Mode: core.ImportText,
		Text: "Module No.\tYard\tLocation\nM1\tNorth\tBay 1\nM2\tSouth\tBay 2\n",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res, err := svc.GetImportResult(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, "Created 2 and updated 0 modules.", res.Message)
	assert.Equal(t, 2, store.Len())
	assert.Empty(t, ann.calls, "imports never call the annotator")

	o := <-obs
	assert.Equal(t, core.ImportText, o.mode)
	assert.Equal(t, 2, o.summary.Created)
	assert.NoError(t, o.err)

	ch, err := svc.SubscribeProgress(id)
	require.NoError(t, err)
	p, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, core.PhaseComplete, p.Phase)
	_, ok = <-ch
	assert.False(t, ok, "channel closes for a finished import")
}

func TestStartImport_RejectsSecondImport(t *testing.T) {
	ctx := context.Background()
	store := newBlockingStore()
	svc := core.NewService(store, nil, nil)

	req := core.ImportRequest{Mode: core.ImportAlignedColumn, Column: "moduleNo", Values: []string{"M1"}}
	id, err := svc.StartImport(ctx, req)
	require.NoError(t, err)
	<-store.entered

	_, err = svc.StartImport(ctx, req)
	assert.ErrorIs(t, err, core.ErrImportInProgress)
	assert.Equal(t, 1, svc.ImportLimiterStatus().Active)

	close(store.release)
	res, err := svc.GetImportResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Created)

	require.NoError(t, svc.WaitForImports(ctx))
	_, err = svc.StartImport(ctx, core.ImportRequest{Mode: core.ImportAlignedColumn, Column: "moduleNo", Values: []string{"M1"}})
	assert.NoError(t, err, "slot is free again")
}

func TestCancelImport(t *testing.T) {
	ctx := context.Background()
	store := newBlockingStore()
	svc := core.NewService(store, nil, nil)

	id, err := svc.StartImport(ctx, core.ImportRequest{Mode: core.ImportText, Text: "Module No.\nM1\n"})
	require.NoError(t, err)
	<-store.entered

	require.NoError(t, svc.CancelImport(id))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := svc.GetImportResult(waitCtx, id)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "context canceled")
	assert.Equal(t, 0, store.Len())
}

func TestStartImport_InvalidRequests(t *testing.T) {
	svc := core.NewService(memory.New(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  core.ImportRequest
		want string
	}{
		{"no file", core.ImportRequest{Mode: core.ImportFile}, "no file provided"},
		{"blank text", core.ImportRequest{Mode: core.ImportText, Text: " \n "}, "empty file"},
		{"unknown column", core.ImportRequest{Mode: core.ImportKeyedColumn, Column: "Comments"}, "unknown column"},
		{"unknown mode", core.ImportRequest{Mode: "zip"}, "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartImport(ctx, tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStartImport_UnsupportedFile(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New(), nil, nil)

	id, err := svc.StartImport(ctx, core.ImportRequest{Mode: core.ImportFile, FileName: "photo.png", Data: []byte("\x89PNG\r\n\x1a\n")})
	require.NoError(t, err)

	res, err := svc.GetImportResult(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "unsupported file")
	assert.Contains(t, res.Message, "FILE002")
}

func TestImportNotFound(t *testing.T) {
	svc := core.NewService(memory.New(), nil, nil)

	_, err := svc.GetImportResult(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrImportNotFound)
	_, err = svc.SubscribeProgress("nope")
	assert.ErrorIs(t, err, core.ErrImportNotFound)
	assert.ErrorIs(t, svc.CancelImport("nope"), core.ErrImportNotFound)
}

func TestRunImport_KeyedColumn(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := core.NewService(store, nil, nil)

	var last [2]int
	res, err := svc.RunImport(ctx, core.ImportRequest{
		Mode:   core.ImportKeyedColumn,
		Column: "yard",
		Keys:   []string{"M1", "M2"},
		Values: []string{"YardA", "YardB"},
	}, func(done, total int) { last = [2]int{done, total} })
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, [2]int{2, 2}, last)

	m, _, _ := store.GetByKey(ctx, "M2")
	assert.Equal(t, "YardB", m.Yard)
	assert.Equal(t, core.StatusPending, m.Status)
}

func TestRunImport_MismatchReportsCode(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, validModule("M1"), validModule("M2"))
	svc := core.NewService(store, nil, nil)

	res, err := svc.RunImport(ctx, core.ImportRequest{
		Mode: core.ImportAlignedColumn, Column: "location", Values: []string{"only one"},
	}, nil)
	require.ErrorIs(t, err, core.ErrLineCountMismatch)
	assert.Contains(t, res.Message, "IMP001")
}
