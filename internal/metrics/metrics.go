// Package metrics exposes Prometheus counters for imports, store writes and
// annotator calls.
package metrics

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moduletrack"

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Metrics owns a registry and the application's collectors.
type Metrics struct {
	registry *prometheus.Registry

	imports        *prometheus.CounterVec
	importRecords  *prometheus.CounterVec
	storeOps       *prometheus.CounterVec
	annotatorCalls *prometheus.CounterVec
	anomalies      prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Finished imports by mode and outcome.",
		}, []string{"mode", "outcome"}),
		importRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_records_total",
			Help:      "Imported records by result (created, updated, unchanged, skipped, failed).",
		}, []string{"result"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_ops_total",
			Help:      "Record store calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		annotatorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotator_calls_total",
			Help:      "Anomaly annotator calls by outcome.",
		}, []string{"outcome"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Annotator verdicts that flagged a record.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.imports,
		m.importRecords,
		m.storeOps,
		m.annotatorCalls,
		m.anomalies,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport records one finished import. It matches the signature of
// core.WithImportObserver.
func (m *Metrics) ObserveImport(mode core.ImportMode, s core.ImportSummary, err error) {
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
	case s.Cancelled:
		outcome = outcomeCancelled
	}
	m.imports.WithLabelValues(string(mode), outcome).Inc()

	m.importRecords.WithLabelValues("created").Add(float64(s.Created))
	m.importRecords.WithLabelValues("updated").Add(float64(s.Updated))
	m.importRecords.WithLabelValues("unchanged").Add(float64(s.Unchanged))
	m.importRecords.WithLabelValues("skipped").Add(float64(s.Skipped))
	m.importRecords.WithLabelValues("failed").Add(float64(s.Failed))
}

func (m *Metrics) storeOp(op string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.storeOps.WithLabelValues(op, outcome).Inc()
}

// InstrumentStore counts every call made to s. When s implements
// core.Batcher so does the returned store.
func (m *Metrics) InstrumentStore(s core.RecordStore) core.RecordStore {
	is := &instrumentedStore{next: s, m: m}
	if b, ok := s.(core.Batcher); ok {
		return &instrumentedBatchStore{instrumentedStore: is, batcher: b}
	}
	return is
}

type instrumentedStore struct {
	next core.RecordStore
	m    *Metrics
}

func (s *instrumentedStore) GetAll(ctx context.Context) ([]core.Module, error) {
	mods, err := s.next.GetAll(ctx)
	s.m.storeOp("get_all", err)
	return mods, err
}

func (s *instrumentedStore) GetByKey(ctx context.Context, moduleNo string) (core.Module, bool, error) {
	mod, ok, err := s.next.GetByKey(ctx, moduleNo)
	s.m.storeOp("get", err)
	return mod, ok, err
}

func (s *instrumentedStore) Create(ctx context.Context, mod core.Module) (core.Module, error) {
	out, err := s.next.Create(ctx, mod)
	s.m.storeOp("create", err)
	return out, err
}

func (s *instrumentedStore) Update(ctx context.Context, key string, p core.Patch) (core.Module, error) {
	out, err := s.next.Update(ctx, key, p)
	s.m.storeOp("update", err)
	return out, err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	err := s.next.Delete(ctx, key)
	s.m.storeOp("delete", err)
	return err
}

type instrumentedBatchStore struct {
	*instrumentedStore
	batcher core.Batcher
}

func (s *instrumentedBatchStore) Batch(ctx context.Context, ops []core.WriteOp) error {
	err := s.batcher.Batch(ctx, ops)
	s.m.storeOp("batch", err)
	return err
}

// InstrumentAnnotator counts calls to a and the records it flags.
func (m *Metrics) InstrumentAnnotator(a core.Annotator) core.Annotator {
	return &instrumentedAnnotator{next: a, m: m}
}

type instrumentedAnnotator struct {
	next core.Annotator
	m    *Metrics
}

func (a *instrumentedAnnotator) Evaluate(ctx context.Context, in core.AnomalyInput) (core.AnomalyResult, error) {
	res, err := a.next.Evaluate(ctx, in)
	if err != nil {
		a.m.annotatorCalls.WithLabelValues(outcomeError).Inc()
		return res, err
	}
	a.m.annotatorCalls.WithLabelValues(outcomeOK).Inc()
	if res.IsAnomaly {
		a.m.anomalies.Inc()
	}
	return res, nil
}
