package web

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/moduletrack/internal/core"
)

// maxJSONBody bounds JSON request bodies outside file uploads.
const maxJSONBody = 1 << 20

// moduleResponse is a module as the API returns it, with the derived
// combined report.
type moduleResponse struct {
	core.Module
	CombinedReport string `json:"combinedReport"`
}

func toModuleResponse(m core.Module) moduleResponse {
	return moduleResponse{Module: m, CombinedReport: m.CombinedReport()}
}

func toModuleResponses(mods []core.Module) []moduleResponse {
	out := make([]moduleResponse, len(mods))
	for i, m := range mods {
		out[i] = toModuleResponse(m)
	}
	return out
}

// parseFilter reads the listing filter from query parameters:
// module, yard, location, shipment, status and anomaly.
func parseFilter(r *http.Request) core.Filter {
	q := r.URL.Query()
	f := core.Filter{
		ModuleNo:   strings.TrimSpace(q.Get("module")),
		Yard:       strings.TrimSpace(q.Get("yard")),
		Location:   strings.TrimSpace(q.Get("location")),
		ShipmentNo: strings.TrimSpace(q.Get("shipment")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if st, ok := core.ParseStatus(raw); ok {
			f.Status = st
		} else {
			f.Status = core.Status(raw) // matches nothing
		}
	}
	if b, err := strconv.ParseBool(q.Get("anomaly")); err == nil {
		f.Anomaly = &b
	}
	return f
}

// isJSON reports whether the request body is JSON.
func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("invalid request: empty body")
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// formModule reads a module from form values, as the dashboard submits it.
func formModule(r *http.Request) (core.Module, error) {
	if err := r.ParseForm(); err != nil {
		return core.Module{}, fmt.Errorf("invalid request: %w", err)
	}
	signed, _ := core.ParseSigned(r.PostForm.Get("signedReport"))
	return core.Module{
		ModuleNo:     r.PostForm.Get("moduleNo"),
		Yard:         r.PostForm.Get("yard"),
		Location:     r.PostForm.Get("location"),
		RFLODate:     r.PostForm.Get("rfloDate"),
		ShipmentNo:   r.PostForm.Get("shipmentNo"),
		Status:       core.Status(strings.TrimSpace(r.PostForm.Get("rfloDateStatus"))),
		YardReport:   r.PostForm.Get("yardReport"),
		IslandReport: r.PostForm.Get("islandReport"),
		SignedReport: signed,
		UpdatedBy:    r.PostForm.Get("updatedBy"),
	}, nil
}

// formPatch reads a partial update from form values. Only submitted fields
// are set.
func formPatch(r *http.Request) (core.Patch, error) {
	if err := r.ParseForm(); err != nil {
		return core.Patch{}, fmt.Errorf("invalid request: %w", err)
	}
	field := func(name string) *string {
		if _, ok := r.PostForm[name]; !ok {
			return nil
		}
		return core.Ptr(r.PostForm.Get(name))
	}

	p := core.Patch{
		ModuleNo:     field("moduleNo"),
		Yard:         field("yard"),
		Location:     field("location"),
		RFLODate:     field("rfloDate"),
		ShipmentNo:   field("shipmentNo"),
		YardReport:   field("yardReport"),
		IslandReport: field("islandReport"),
		UpdatedBy:    field("updatedBy"),
	}
	if v := field("rfloDateStatus"); v != nil {
		p.Status = core.Ptr(core.Status(strings.TrimSpace(*v)))
	}
	if v := field("signedReport"); v != nil {
		signed, _ := core.ParseSigned(*v)
		p.SignedReport = core.Ptr(signed)
	}
	return p, nil
}

// lines splits a pasted textarea into its non-empty lines.
func lines(s string) []string {
	return core.SplitLines(s)
}
