package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/export"
	"github.com/JonMunkholm/moduletrack/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  *memory.Store
	svc    *core.Service
	server *Server
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Rate.Enabled = false

	store := memory.New()
	svc := core.NewService(store, nil, cfg)
	return &testEnv{store: store, svc: svc, server: NewServer(svc, cfg, opts...)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, nos ...string) {
	t.Helper()
	for _, no := range nos {
		_, err := e.store.Create(context.Background(), core.Module{
			ModuleNo: no, Yard: "North", Location: "Bay 1", Status: core.StatusPending,
		})
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// ============================================================================
// Health, metrics, headers
// ============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestEnv(t, WithHealthCheck(func(context.Context) error { return errors.New("connection refused") }))
	rec = down.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moduletrack_imports_total 0\n"))
	})))
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moduletrack_imports_total")
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := config.Defaults()
	cfg.Rate.Enabled = false
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv := NewServer(core.NewService(memory.New(), nil, cfg), cfg)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/modules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/modules", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardEndpoints_WithAPIKeyRequired(t *testing.T) {
	cfg := config.Defaults()
	cfg.Rate.Enabled = false
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	store := memory.New()
	env := &testEnv{store: store, server: NewServer(core.NewService(store, nil, cfg), cfg)}
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/ui/modules"`)

	rec = env.do(t, http.MethodPost, "/ui/modules", url.Values{
		"moduleNo": {"M1"}, "yard": {"North"}, "location": {"Bay 1"}, "rfloDateStatus": {"Pending"}, "signedReport": {"No"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Module M1 created.")

	rec = env.do(t, http.MethodPatch, "/ui/modules/M1", url.Values{"location": {"Quay"}}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/ui/modules/M1/evaluate", nil, "HX-Request", "true")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/ui/import/text", url.Values{
		"text": {"Module No.\tYard\tLocation\nM2\tSouth\tBay 2\n"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/ui/modules/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<td>Quay</td>")
	assert.Contains(t, rec.Body.String(), "<td>M2</td>")

	rec = env.do(t, http.MethodGet, "/ui/export/xlsx", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/ui/modules/M1", nil, "HX-Request", "true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.Len())

	// The API stays behind the key.
	rec = env.do(t, http.MethodGet, "/api/modules", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/modules/M2", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, ok, _ := store.GetByKey(ctx, "M2")
	assert.True(t, ok)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{visitors: map[string]*visitor{}, rate: 2, window: time.Minute, now: func() time.Time { return now }}

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"), "window resets")
}

// ============================================================================
// Modules
// ============================================================================

func TestCreateModule(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/modules", map[string]any{
		"moduleNo": "M1", "yard": "North", "location": "Bay 1",
		"rfloDateStatus": "pending", "yardReport": "welding", "islandReport": "piping",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[map[string]any](t, rec)
	assert.Equal(t, "M1", got["moduleNo"])
	assert.Equal(t, "Pending", got["rfloDateStatus"])
	assert.Equal(t, "welding | piping", got["combinedReport"])

	rec = env.do(t, http.MethodPost, "/api/modules", map[string]any{"moduleNo": "M1", "yard": "N", "location": "L"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MOD002", decode[ErrorResponse](t, rec).Code)
}

func TestCreateModule_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/modules", map[string]any{"moduleNo": "M1", "rfloDateStatus": "Shipped"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "required", resp.Fields["yard"])
	assert.Equal(t, "modulestatus", resp.Fields["rfloDateStatus"])
	assert.Equal(t, 0, env.store.Len())
}

func TestCreateModule_Form(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/modules", url.Values{
		"moduleNo": {"M7"}, "yard": {"South"}, "location": {"Quay"}, "signedReport": {"yes"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Module M7 created.")

	m, ok, _ := env.store.GetByKey(context.Background(), "M7")
	require.True(t, ok)
	assert.True(t, m.SignedReport)
}

func TestUpdateModule_Form(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1")

	rec := env.do(t, http.MethodPatch, "/ui/modules/M1", url.Values{
		"yard": {"South"}, "rfloDateStatus": {"date confirmed"}, "signedReport": {"Yes"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Module M1 updated.")
	assert.Equal(t, "modules-changed", rec.Header().Get("HX-Trigger"))

	m, _, _ := env.store.GetByKey(context.Background(), "M1")
	assert.Equal(t, "South", m.Yard)
	assert.Equal(t, "Bay 1", m.Location, "fields not submitted are kept")
	assert.Equal(t, core.StatusDateConfirmed, m.Status)
	assert.True(t, m.SignedReport)
}

func TestModuleTablePartial(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1", "M2")

	rec := env.do(t, http.MethodGet, "/ui/modules/table?module=M2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<table id="modules">`))
	assert.Contains(t, body, "<td>M2</td>")
	assert.NotContains(t, body, "<td>M1</td>")
}

func TestGetModule_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/modules/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MOD001", decode[ErrorResponse](t, rec).Code)
}

func TestListModules_Filter(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A-1", "A-2", "B-1")

	rec := env.do(t, http.MethodGet, "/api/modules?module=a-", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Modules []core.Module `json:"modules"`
		Count   int           `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "A-1", resp.Modules[0].ModuleNo)
}

func TestUpdateModule(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1")

	rec := env.do(t, http.MethodPatch, "/api/modules/M1", map[string]any{"location": "Bay 9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	m, _, _ := env.store.GetByKey(context.Background(), "M1")
	assert.Equal(t, "Bay 9", m.Location)
	assert.Equal(t, "North", m.Yard)
}

func TestUpdateField_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1")

	rec := env.do(t, http.MethodPost, "/api/modules/M1/field", map[string]any{"column": "rfloDateStatus", "value": "Shipped"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VAL001", decode[ErrorResponse](t, rec).Code)
}

func TestDeleteModules(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1", "M2", "M3")

	rec := env.do(t, http.MethodDelete, "/api/modules/M1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/modules/delete", map[string]any{"keys": []string{"M2", "M3"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[map[string]int](t, rec)["deleted"])
	assert.Equal(t, 0, env.store.Len())

	rec = env.do(t, http.MethodPost, "/api/modules/delete", map[string]any{"keys": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateModule(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1")

	rec := env.do(t, http.MethodPost, "/api/modules/M1/evaluate", nil, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Module M1 looks consistent.")
}

// ============================================================================
// Imports
// ============================================================================

func TestImportText_API(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/text", map[string]any{
		"text": "Module No.\tYard\tLocation\nM1\tNorth\tBay 1\nM2\tSouth\tBay 2\n",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decode[map[string]string](t, rec)["importId"]
	require.NotEmpty(t, id)

	rec = env.do(t, http.MethodGet, "/api/import/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[core.ImportResult](t, rec)
	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, 2, env.store.Len())

	// The finished import still streams its final state.
	rec = env.do(t, http.MethodGet, "/api/import/"+id+"/progress", nil)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: progress")
	assert.Contains(t, rec.Body.String(), "event: complete")
	assert.Contains(t, rec.Body.String(), `"createdCount":2`)
}

func TestImportText_HTMX(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/text", url.Values{
		"text": {"Module No.\tYard\nM1\tNorth\n"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Created 1 and updated 0 modules.")
	assert.Equal(t, "modules-changed", rec.Header().Get("HX-Trigger"))
}

func TestImportColumn_Keyed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/column", url.Values{
		"column": {"yard"},
		"keys":   {"M1\nM2\n"},
		"values": {"YardA\nYardB\n"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Created 2 and updated 0 modules.")

	m, _, _ := env.store.GetByKey(context.Background(), "M2")
	assert.Equal(t, "YardB", m.Yard)
	assert.Equal(t, core.StatusPending, m.Status)
}

func TestImportColumn_AlignedMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1", "M2", "M3", "M4", "M5")

	rec := env.do(t, http.MethodPost, "/api/import/column", url.Values{
		"column": {"location"},
		"values": {"A\nB\nC"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "IMP001")

	m, _, _ := env.store.GetByKey(context.Background(), "M1")
	assert.Equal(t, "Bay 1", m.Location)
}

func TestImportColumn_UnknownColumn(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/import/column", map[string]any{"column": "Comments", "values": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP005", decode[ErrorResponse](t, rec).Code)
}

func TestImportFile_XLSX(t *testing.T) {
	env := newTestEnv(t)

	var xlsx bytes.Buffer
	require.NoError(t, export.WriteXLSX(&xlsx, []core.Module{
		{ModuleNo: "M1", Yard: "North", Location: "Bay 1", RFLODate: "2023-03-15", Status: core.StatusDateConfirmed},
	}))

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	part, err := mp.CreateFormFile("file", "modules.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/file", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	id := decode[map[string]string](t, rec)["importId"]
	res, err := env.svc.GetImportResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Created)

	m, _, _ := env.store.GetByKey(context.Background(), "M1")
	assert.Equal(t, "2023-03-15", m.RFLODate)
}

func TestImportFile_Missing(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	require.NoError(t, mp.WriteField("other", "x"))
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/file", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decode[ErrorResponse](t, rec).Code)
}

func TestImportNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP004", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/import/nope/progress", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/import/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[core.ImportLimiterStatus](t, rec)
	assert.Equal(t, 1, status.MaxConcurrent)
	assert.False(t, status.Busy)
}

// ============================================================================
// Pages and exports
// ============================================================================

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M<1>", "M2")

	rec := env.do(t, http.MethodGet, "/?module=m%3C", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "M&lt;1&gt;")
	assert.NotContains(t, body, "<td>M2</td>")
	assert.Contains(t, body, "1 of 2 modules.")
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "M1")

	rec := env.do(t, http.MethodGet, "/api/export/xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="modules.xlsx"`)

	rec = env.do(t, http.MethodGet, "/api/export/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrDuplicateKey, http.StatusConflict},
		{core.ErrImportInProgress, http.StatusConflict},
		{core.ErrLineCountMismatch, http.StatusUnprocessableEntity},
		{core.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{&core.ValidationError{Fields: map[string]string{"yard": "required"}}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
