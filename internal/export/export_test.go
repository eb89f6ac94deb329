package export_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/export"
	"github.com/JonMunkholm/moduletrack/internal/ingest"
	"github.com/JonMunkholm/moduletrack/internal/store/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var ignoreStoreFields = cmpopts.IgnoreFields(core.Module{}, "ID", "CreatedAt", "UpdatedAt")

func sampleModules() []core.Module {
	return []core.Module{
		{
			ModuleNo: "M1", Yard: "North", Location: "Bay 1", RFLODate: "2023-03-15",
			ShipmentNo: "S-100", Status: core.StatusDateConfirmed,
			YardReport: "welding done", IslandReport: "piping 80%", SignedReport: true,
		},
		{ModuleNo: "M2", Yard: "South", Location: "Bay 2", Status: core.StatusPending},
		{ModuleNo: "M3", Yard: "South", Location: "Quay", RFLODate: "2024-12-01", Status: core.StatusFirstQuarter},
	}
}

func seeded(t *testing.T, mods []core.Module) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, m := range mods {
		_, err := s.Create(context.Background(), m)
		require.NoError(t, err)
	}
	return s
}

func importXLSX(t *testing.T, store core.RecordStore, data []byte) core.ImportSummary {
	t.Helper()
	rows, err := ingest.ReadSpreadsheet(bytes.NewReader(data))
	require.NoError(t, err)
	sum, err := core.NewReconciler(store).ReconcileRows(context.Background(), core.MapRows(rows))
	require.NoError(t, err)
	return sum
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seeded(t, sampleModules())
	mods, err := src.GetAll(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, mods))

	dst := memory.New()
	sum := importXLSX(t, dst, buf.Bytes())
	assert.Equal(t, 3, sum.Created)
	assert.Empty(t, sum.Errors)

	got, err := dst.GetAll(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(mods, got, ignoreStoreFields); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Importing the export back into its source changes nothing.
	again := importXLSX(t, src, buf.Bytes())
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 3, again.Unchanged)
}

func TestWriteXLSX_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, sampleModules()[:1]))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"Modules"}, sheets)

	rows, err := f.GetRows("Modules", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	wantHeader := make([]string, len(core.ExportColumns))
	for i, col := range core.ExportColumns {
		wantHeader[i] = col.Label
	}
	assert.Equal(t, wantHeader, rows[0])
	assert.Equal(t, "M1", rows[1][0])
	assert.Equal(t, "45000", rows[1][3], "dates are written as serials")
	assert.Equal(t, "Yes", rows[1][8])
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, nil))

	rows, err := ingest.ReadSpreadsheet(&buf)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWritePDF(t *testing.T) {
	mods := sampleModules()
	mods[1].YardReport = "a very long yard report that will never fit inside one narrow table cell of the export"

	var buf bytes.Buffer
	err := export.WritePDF(&buf, mods, time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Greater(t, buf.Len(), 500)
}

func importPDF(t *testing.T, store core.RecordStore, data []byte) core.ImportSummary {
	t.Helper()
	pages, err := ingest.ReadPDF(data)
	require.NoError(t, err)
	sum, err := core.NewReconciler(store).ReconcileRows(context.Background(), core.MapPDFText(pages))
	require.NoError(t, err)
	return sum
}

func TestWritePDF_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mods := sampleModules()
	mods[1].YardReport = "a very long yard report that will never fit inside one narrow table cell of the export"
	mods[2].IslandReport = "outfitting complete, insulation pending on the upper deck and the stair towers"
	src := seeded(t, mods)
	stored, err := src.GetAll(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WritePDF(&buf, stored, time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)))

	again := importPDF(t, src, buf.Bytes())
	assert.Empty(t, again.Errors)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, len(stored), again.Unchanged)

	dst := memory.New()
	sum := importPDF(t, dst, buf.Bytes())
	assert.Equal(t, len(stored), sum.Created)
	got, err := dst.GetAll(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(stored, got, ignoreStoreFields); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValue(t *testing.T) {
	m := sampleModules()[0]
	tests := []struct {
		field core.Field
		want  string
	}{
		{core.FieldModuleNo, "M1"},
		{core.FieldStatus, "Date Confirmed"},
		{core.FieldSignedReport, "Yes"},
		{core.FieldRFLODate, "2023-03-15"},
		{core.FieldUpdatedBy, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			assert.Equal(t, tt.want, export.Value(tt.field, m))
		})
	}
}
