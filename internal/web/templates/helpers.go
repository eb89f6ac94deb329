// Package templates renders the dashboard and its partials. Components are
// written in the .templ files; the _templ.go files are generated from them
// with `templ generate`.
package templates

import (
	"net/url"

	"github.com/JonMunkholm/moduletrack/internal/core"
)

// uiPath prefixes the endpoints the dashboard calls.
const uiPath = "/ui"

// DashboardParams is everything the dashboard page shows.
type DashboardParams struct {
	Modules    []core.Module
	Filter     core.Filter
	Total      int
	ImportBusy bool
}

const styles = `
body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2933}
header{background:#1f2933;color:#fff;padding:12px 24px}
main{padding:16px 24px}
section{background:#fff;border:1px solid #d9dee3;border-radius:6px;padding:12px 16px;margin-bottom:16px}
table{border-collapse:collapse;width:100%;font-size:13px}
th,td{border-bottom:1px solid #e4e7eb;padding:6px 8px;text-align:left;vertical-align:top}
tr.anomaly{background:#fff4e5}
.badge{border-radius:10px;padding:2px 8px;font-size:12px;white-space:nowrap}
.badge-confirmed{background:#d1f2dc;color:#0f5132}
.badge-pending{background:#e4e7eb;color:#3e4c59}
.badge-quarter{background:#dbeafe;color:#1e3a8a}
.alert{padding:8px 12px;border-radius:4px;margin-bottom:8px}
.alert-error{background:#fde2e1;color:#8a1c1c}
.alert-ok{background:#d1f2dc;color:#0f5132}
.forms{display:grid;grid-template-columns:repeat(auto-fit,minmax(280px,1fr));gap:12px}
.fields{display:grid;grid-template-columns:repeat(auto-fit,minmax(200px,1fr));gap:8px}
.fields label{display:flex;flex-direction:column;font-size:12px}
textarea{width:100%;min-height:90px;font-family:monospace}
`

func statusClass(status core.Status) string {
	switch status {
	case core.StatusDateConfirmed:
		return "badge badge-confirmed"
	case core.StatusPending:
		return "badge badge-pending"
	default:
		return "badge badge-quarter"
	}
}

// modulePath is the dashboard endpoint for one module.
func modulePath(moduleNo string) string {
	return uiPath + "/modules/" + url.PathEscape(moduleNo)
}

func exportPath(format string, f core.Filter) string {
	return uiPath + "/export/" + format + filterQuery(f)
}

// anomalyValue is the anomaly filter as the select submits it.
func anomalyValue(f core.Filter) string {
	switch {
	case f.Anomaly == nil:
		return ""
	case *f.Anomaly:
		return "true"
	default:
		return "false"
	}
}

// filterQuery renders f as a query string for export links and table
// reloads.
func filterQuery(f core.Filter) string {
	v := url.Values{}
	if f.ModuleNo != "" {
		v.Set("module", f.ModuleNo)
	}
	if f.Yard != "" {
		v.Set("yard", f.Yard)
	}
	if f.Location != "" {
		v.Set("location", f.Location)
	}
	if f.ShipmentNo != "" {
		v.Set("shipment", f.ShipmentNo)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if a := anomalyValue(f); a != "" {
		v.Set("anomaly", a)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}
