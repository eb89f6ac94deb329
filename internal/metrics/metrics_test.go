package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/store/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type annotatorFunc func(context.Context, core.AnomalyInput) (core.AnomalyResult, error)

func (f annotatorFunc) Evaluate(ctx context.Context, in core.AnomalyInput) (core.AnomalyResult, error) {
	return f(ctx, in)
}

func TestObserveImport(t *testing.T) {
	m := New()

	m.ObserveImport(core.ImportText, core.ImportSummary{Created: 2, Updated: 1, Skipped: 3}, nil)
	m.ObserveImport(core.ImportAlignedColumn, core.ImportSummary{}, core.ErrLineCountMismatch)
	m.ObserveImport(core.ImportFile, core.ImportSummary{Created: 1, Cancelled: true}, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("aligned-column", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("file", "cancelled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importRecords.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importRecords.WithLabelValues("skipped")))
}

func TestInstrumentStore(t *testing.T) {
	ctx := context.Background()
	m := New()
	s := m.InstrumentStore(memory.New())

	_, ok := s.(core.Batcher)
	require.True(t, ok, "batch support must survive instrumentation")

	_, err := s.Create(ctx, core.Module{ModuleNo: "M1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, core.Module{ModuleNo: "M1"})
	require.ErrorIs(t, err, core.ErrDuplicateKey)
	_, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.NoError(t, s.(core.Batcher).Batch(ctx, []core.WriteOp{{Kind: core.OpDelete, Key: "M1"}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("get_all", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("batch", "ok")))
}

func TestInstrumentStore_WithoutBatch(t *testing.T) {
	type plain struct{ core.RecordStore }
	s := New().InstrumentStore(plain{memory.New()})

	_, ok := s.(core.Batcher)
	assert.False(t, ok)
}

func TestInstrumentAnnotator(t *testing.T) {
	m := New()
	flag := true
	a := m.InstrumentAnnotator(annotatorFunc(func(context.Context, core.AnomalyInput) (core.AnomalyResult, error) {
		if !flag {
			return core.AnomalyResult{}, errors.New("down")
		}
		return core.AnomalyResult{IsAnomaly: true}, nil
	}))

	_, err := a.Evaluate(context.Background(), core.AnomalyInput{})
	require.NoError(t, err)
	flag = false
	_, err = a.Evaluate(context.Background(), core.AnomalyInput{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.annotatorCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.annotatorCalls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveImport(core.ImportText, core.ImportSummary{Created: 1}, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `moduletrack_imports_total{mode="text",outcome="ok"} 1`)
}
