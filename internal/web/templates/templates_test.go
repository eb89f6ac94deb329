package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorAlert(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorAlert("Bad <input>", "Fix it", "VAL003").Render(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "Bad &lt;input&gt;")
	assert.Contains(t, out, "<code>VAL003</code>")
	assert.Contains(t, out, `role="alert"`)
}

func TestModuleTable(t *testing.T) {
	var buf bytes.Buffer
	err := ModuleTable([]core.Module{
		{ModuleNo: "M 1", Yard: "North", Status: core.StatusPending, SignedReport: true},
		{ModuleNo: "M2", Status: core.StatusDateConfirmed, IsAnomaly: true, AnomalyExplanation: `yard "X" unknown`},
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `hx-delete="/ui/modules/M%201"`)
	assert.Contains(t, out, `<tr class="anomaly" title="yard &#34;X&#34; unknown">`)
	assert.Contains(t, out, "badge badge-confirmed")
	assert.Contains(t, out, "<td>Yes</td>")
}

func TestModuleTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ModuleTable(nil).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "No modules yet.")
}

func TestDashboard_BusyAndFilter(t *testing.T) {
	anomalies := true
	var buf bytes.Buffer
	err := Dashboard(DashboardParams{
		Filter:     core.Filter{Yard: "North", Anomaly: &anomalies},
		ImportBusy: true,
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "An import is running.")
	assert.Contains(t, out, `href="/ui/export/xlsx?anomaly=true&amp;yard=North"`)
	assert.Contains(t, out, `<option value="true" selected>Anomalies</option>`)
	assert.Contains(t, out, `hx-get="/ui/modules/table?anomaly=true&amp;yard=North"`)
}

func TestDashboard_CreateForm(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dashboard(DashboardParams{}).Render(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, `<form class="fields" hx-post="/ui/modules" hx-target="#alerts">`)
	for _, col := range core.Columns {
		assert.Contains(t, out, `name="`+string(col.Field)+`"`, col.Label)
	}
	assert.Contains(t, out, `<input name="moduleNo" value="" required>`)
	assert.Contains(t, out, `<option value="Pending" selected>Pending</option>`)
	assert.Contains(t, out, `<option value="No" selected>No</option>`)
}

func TestModuleTable_EditForm(t *testing.T) {
	var buf bytes.Buffer
	err := ModuleTable([]core.Module{{
		ModuleNo: "M/7", Yard: `North "A"`, RFLODate: "2023-03-15",
		Status: core.StatusFirstQuarter, SignedReport: true,
	}}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `<summary>Edit</summary><form class="fields" hx-patch="/ui/modules/M%2F7" hx-target="#alerts">`)
	assert.Contains(t, out, `<input name="yard" value="North &#34;A&#34;">`)
	assert.Contains(t, out, `<input type="date" name="rfloDate" value="2023-03-15">`)
	assert.Contains(t, out, `<option value="1st Quarter-2026" selected>1st Quarter-2026</option>`)
	assert.Contains(t, out, `<option value="Yes" selected>Yes</option>`)
	assert.NotContains(t, out, `<option value="Pending" selected>`)
}

func TestFilterQuery(t *testing.T) {
	assert.Equal(t, "", filterQuery(core.Filter{}))
	assert.Equal(t, "?module=A%2F1&status=Pending", filterQuery(core.Filter{ModuleNo: "A/1", Status: core.StatusPending}))
}
