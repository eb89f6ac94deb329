// Package sqlutil holds the column mapping shared by the SQL-backed module
// stores.
package sqlutil

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/moduletrack/internal/core"
)

// SelectColumns is the column list every SELECT uses, in ScanArgs order.
const SelectColumns = `id, module_no, yard, location, rflo_date, shipment_no, rflo_date_status,
	yard_report, island_report, signed_report, updated_by, is_anomaly, anomaly_explanation,
	created_at, updated_at`

// InsertColumns is the column list for INSERT, in InsertArgs order.
const InsertColumns = `id, module_no, yard, location, rflo_date, shipment_no, rflo_date_status,
	yard_report, island_report, signed_report, updated_by, is_anomaly, anomaly_explanation,
	created_at, updated_at`

// ScanArgs returns destinations for a row selected with SelectColumns.
func ScanArgs(m *core.Module) []any {
	return []any{
		&m.ID, &m.ModuleNo, &m.Yard, &m.Location, &m.RFLODate, &m.ShipmentNo, &m.Status,
		&m.YardReport, &m.IslandReport, &m.SignedReport, &m.UpdatedBy, &m.IsAnomaly, &m.AnomalyExplanation,
		&m.CreatedAt, &m.UpdatedAt,
	}
}

// InsertArgs returns the values for an INSERT with InsertColumns.
func InsertArgs(m core.Module) []any {
	return []any{
		m.ID, m.ModuleNo, m.Yard, m.Location, m.RFLODate, m.ShipmentNo, string(m.Status),
		m.YardReport, m.IslandReport, m.SignedReport, m.UpdatedBy, m.IsAnomaly, m.AnomalyExplanation,
		m.CreatedAt, m.UpdatedAt,
	}
}

// PatchColumns returns the column names and values set by p, in a stable
// order.
func PatchColumns(p core.Patch) (cols []string, args []any) {
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if p.ModuleNo != nil {
		add("module_no", *p.ModuleNo)
	}
	if p.Yard != nil {
		add("yard", *p.Yard)
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.RFLODate != nil {
		add("rflo_date", *p.RFLODate)
	}
	if p.ShipmentNo != nil {
		add("shipment_no", *p.ShipmentNo)
	}
	if p.Status != nil {
		add("rflo_date_status", string(*p.Status))
	}
	if p.YardReport != nil {
		add("yard_report", *p.YardReport)
	}
	if p.IslandReport != nil {
		add("island_report", *p.IslandReport)
	}
	if p.SignedReport != nil {
		add("signed_report", *p.SignedReport)
	}
	if p.UpdatedBy != nil {
		add("updated_by", *p.UpdatedBy)
	}
	if p.IsAnomaly != nil {
		add("is_anomaly", *p.IsAnomaly)
	}
	if p.AnomalyExplanation != nil {
		add("anomaly_explanation", *p.AnomalyExplanation)
	}
	return cols, args
}

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders PostgreSQL placeholders ($1, $2, ...).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite placeholders.
func Question(int) string { return "?" }

// InsertValues renders the VALUES list for InsertColumns.
func InsertValues(ph Placeholder) string {
	n := strings.Count(InsertColumns, ",") + 1
	parts := make([]string, n)
	for i := range parts {
		parts[i] = ph(i + 1)
	}
	return strings.Join(parts, ", ")
}

// UpdateStatement builds an UPDATE for the set fields of p plus updated_at.
// The key is bound last. ok is false when p sets nothing.
func UpdateStatement(p core.Patch, ph Placeholder, updatedAt any, key string) (query string, args []any, ok bool) {
	cols, args := PatchColumns(p)
	if len(cols) == 0 {
		return "", nil, false
	}
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", c, ph(i+1)))
	}
	sets = append(sets, fmt.Sprintf("updated_at = %s", ph(len(cols)+1)))
	args = append(args, updatedAt, key)
	query = fmt.Sprintf("UPDATE modules SET %s WHERE module_no = %s", strings.Join(sets, ", "), ph(len(cols)+2))
	return query, args, true
}
