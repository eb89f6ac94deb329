package core

import (
	"strconv"
	"strings"
	"time"
)

// SchemaVersion identifies the canonical Module shape. Legacy inputs
// (shipmentDate, surveyStatus*, combinedReport, free-text signed markers)
// are adapted to this version by the Field Mapper.
const SchemaVersion = 2

// Status is the RFLO date status of a module.
type Status string

const (
	StatusDateConfirmed Status = "Date Confirmed"
	StatusFirstQuarter  Status = "1st Quarter-2026"
	StatusPending       Status = "Pending"
)

// Statuses lists the allowed status values in display order.
var Statuses = []Status{StatusDateConfirmed, StatusFirstQuarter, StatusPending}

// ParseStatus matches s case-insensitively against the allowed statuses.
// ok is false when s is non-empty and matches none of them.
func ParseStatus(s string) (Status, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", true
	}
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// Valid reports whether st is one of the allowed statuses.
func (st Status) Valid() bool {
	for _, v := range Statuses {
		if st == v {
			return true
		}
	}
	return false
}

// Module is a trackable fabrication/shipment unit. ModuleNo is the business
// key; ID is assigned by the store and never used for matching.
type Module struct {
	ID                 string    `json:"id"`
	ModuleNo           string    `json:"moduleNo" validate:"required,max=64"`
	Yard               string    `json:"yard" validate:"required"`
	Location           string    `json:"location" validate:"required"`
	RFLODate           string    `json:"rfloDate"`
	ShipmentNo         string    `json:"shipmentNo"`
	Status             Status    `json:"rfloDateStatus" validate:"required,modulestatus"`
	YardReport         string    `json:"yardReport"`
	IslandReport       string    `json:"islandReport"`
	SignedReport       bool      `json:"signedReport"`
	UpdatedBy          string    `json:"updatedBy"`
	IsAnomaly          bool      `json:"isAnomaly"`
	AnomalyExplanation string    `json:"anomalyExplanation"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// CombinedReport joins the yard and island reports for display and for the
// annotator prompt. It is never stored.
func (m Module) CombinedReport() string {
	var parts []string
	if s := strings.TrimSpace(m.YardReport); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(m.IslandReport); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " | ")
}

// ProgressNotes is CombinedReport plus the "Updated by" marker.
func (m Module) ProgressNotes() string {
	notes := m.CombinedReport()
	if m.UpdatedBy == "" {
		return notes
	}
	if notes == "" {
		return "Updated by: " + m.UpdatedBy
	}
	return notes + " | Updated by: " + m.UpdatedBy
}

// Patch is a partial Module. A nil field is absent and is never written.
type Patch struct {
	ModuleNo     *string `json:"moduleNo,omitempty"`
	Yard         *string `json:"yard,omitempty"`
	Location     *string `json:"location,omitempty"`
	RFLODate     *string `json:"rfloDate,omitempty"`
	ShipmentNo   *string `json:"shipmentNo,omitempty"`
	Status       *Status `json:"rfloDateStatus,omitempty"`
	YardReport   *string `json:"yardReport,omitempty"`
	IslandReport *string `json:"islandReport,omitempty"`
	SignedReport *bool   `json:"signedReport,omitempty"`
	UpdatedBy    *string `json:"updatedBy,omitempty"`

	// Annotator output. Only the service sets these.
	IsAnomaly          *bool   `json:"isAnomaly,omitempty"`
	AnomalyExplanation *string `json:"anomalyExplanation,omitempty"`
}

// Key returns the trimmed moduleNo carried by the patch, or "".
func (p Patch) Key() string {
	if p.ModuleNo == nil {
		return ""
	}
	return strings.TrimSpace(*p.ModuleNo)
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Compact drops string fields that are empty after trimming. Imports never
// overwrite a stored value with a blank cell.
func (p Patch) Compact() Patch {
	for _, f := range []**string{&p.ModuleNo, &p.Yard, &p.Location, &p.RFLODate, &p.ShipmentNo,
		&p.YardReport, &p.IslandReport, &p.UpdatedBy, &p.AnomalyExplanation} {
		if *f != nil && strings.TrimSpace(**f) == "" {
			*f = nil
		}
	}
	if p.Status != nil && *p.Status == "" {
		p.Status = nil
	}
	return p
}

// Merge overlays o onto p; fields set in o win.
func (p Patch) Merge(o Patch) Patch {
	if o.ModuleNo != nil {
		p.ModuleNo = o.ModuleNo
	}
	if o.Yard != nil {
		p.Yard = o.Yard
	}
	if o.Location != nil {
		p.Location = o.Location
	}
	if o.RFLODate != nil {
		p.RFLODate = o.RFLODate
	}
	if o.ShipmentNo != nil {
		p.ShipmentNo = o.ShipmentNo
	}
	if o.Status != nil {
		p.Status = o.Status
	}
	if o.YardReport != nil {
		p.YardReport = o.YardReport
	}
	if o.IslandReport != nil {
		p.IslandReport = o.IslandReport
	}
	if o.SignedReport != nil {
		p.SignedReport = o.SignedReport
	}
	if o.UpdatedBy != nil {
		p.UpdatedBy = o.UpdatedBy
	}
	if o.IsAnomaly != nil {
		p.IsAnomaly = o.IsAnomaly
	}
	if o.AnomalyExplanation != nil {
		p.AnomalyExplanation = o.AnomalyExplanation
	}
	return p
}

// Apply writes the set fields of p onto m and returns the result.
func (p Patch) Apply(m Module) Module {
	if p.ModuleNo != nil {
		m.ModuleNo = *p.ModuleNo
	}
	if p.Yard != nil {
		m.Yard = *p.Yard
	}
	if p.Location != nil {
		m.Location = *p.Location
	}
	if p.RFLODate != nil {
		m.RFLODate = *p.RFLODate
	}
	if p.ShipmentNo != nil {
		m.ShipmentNo = *p.ShipmentNo
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.YardReport != nil {
		m.YardReport = *p.YardReport
	}
	if p.IslandReport != nil {
		m.IslandReport = *p.IslandReport
	}
	if p.SignedReport != nil {
		m.SignedReport = *p.SignedReport
	}
	if p.UpdatedBy != nil {
		m.UpdatedBy = *p.UpdatedBy
	}
	if p.IsAnomaly != nil {
		m.IsAnomaly = *p.IsAnomaly
	}
	if p.AnomalyExplanation != nil {
		m.AnomalyExplanation = *p.AnomalyExplanation
	}
	return m
}

// Diff returns the subset of p whose values differ from m. An empty result
// means applying p would change nothing.
func (p Patch) Diff(m Module) Patch {
	var d Patch
	if p.ModuleNo != nil && *p.ModuleNo != m.ModuleNo {
		d.ModuleNo = p.ModuleNo
	}
	if p.Yard != nil && *p.Yard != m.Yard {
		d.Yard = p.Yard
	}
	if p.Location != nil && *p.Location != m.Location {
		d.Location = p.Location
	}
	if p.RFLODate != nil && *p.RFLODate != m.RFLODate {
		d.RFLODate = p.RFLODate
	}
	if p.ShipmentNo != nil && *p.ShipmentNo != m.ShipmentNo {
		d.ShipmentNo = p.ShipmentNo
	}
	if p.Status != nil && *p.Status != m.Status {
		d.Status = p.Status
	}
	if p.YardReport != nil && *p.YardReport != m.YardReport {
		d.YardReport = p.YardReport
	}
	if p.IslandReport != nil && *p.IslandReport != m.IslandReport {
		d.IslandReport = p.IslandReport
	}
	if p.SignedReport != nil && *p.SignedReport != m.SignedReport {
		d.SignedReport = p.SignedReport
	}
	if p.UpdatedBy != nil && *p.UpdatedBy != m.UpdatedBy {
		d.UpdatedBy = p.UpdatedBy
	}
	if p.IsAnomaly != nil && *p.IsAnomaly != m.IsAnomaly {
		d.IsAnomaly = p.IsAnomaly
	}
	if p.AnomalyExplanation != nil && *p.AnomalyExplanation != m.AnomalyExplanation {
		d.AnomalyExplanation = p.AnomalyExplanation
	}
	return d
}

// NewModule builds a record from a create patch with the defaults applied:
// empty strings, false, and StatusPending.
func NewModule(p Patch) Module {
	m := p.Apply(Module{})
	m.ModuleNo = strings.TrimSpace(m.ModuleNo)
	if m.Status == "" {
		m.Status = StatusPending
	}
	return m
}

// PatchFrom returns a patch that sets every user-editable field of m.
func PatchFrom(m Module) Patch {
	return Patch{
		ModuleNo:     Ptr(m.ModuleNo),
		Yard:         Ptr(m.Yard),
		Location:     Ptr(m.Location),
		RFLODate:     Ptr(m.RFLODate),
		ShipmentNo:   Ptr(m.ShipmentNo),
		Status:       Ptr(m.Status),
		YardReport:   Ptr(m.YardReport),
		IslandReport: Ptr(m.IslandReport),
		SignedReport: Ptr(m.SignedReport),
		UpdatedBy:    Ptr(m.UpdatedBy),
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Filter narrows a module listing. Zero values match everything.
type Filter struct {
	ModuleNo   string // substring, case-insensitive
	Yard       string
	Location   string
	ShipmentNo string
	Status     Status
	Anomaly    *bool
}

// Match reports whether m passes the filter.
func (f Filter) Match(m Module) bool {
	if f.ModuleNo != "" && !strings.Contains(strings.ToLower(m.ModuleNo), strings.ToLower(f.ModuleNo)) {
		return false
	}
	if f.Yard != "" && !strings.EqualFold(f.Yard, m.Yard) {
		return false
	}
	if f.Location != "" && !strings.EqualFold(f.Location, m.Location) {
		return false
	}
	if f.ShipmentNo != "" && !strings.EqualFold(f.ShipmentNo, m.ShipmentNo) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(string(f.Status), string(m.Status)) {
		return false
	}
	if f.Anomaly != nil && *f.Anomaly != m.IsAnomaly {
		return false
	}
	return true
}

// ErrorKind classifies an ImportError.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindParse      ErrorKind = "parse"
	KindStore      ErrorKind = "store"
)

// ImportError describes one problem found while importing. Line is 1-based
// within the input; zero when the error is not tied to an input line.
type ImportError struct {
	Line     int       `json:"line,omitempty"`
	ModuleNo string    `json:"moduleNo,omitempty"`
	Field    string    `json:"field,omitempty"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

func (e ImportError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		b.WriteString("line ")
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(": ")
	}
	if e.ModuleNo != "" {
		b.WriteString(e.ModuleNo)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ImportSummary is the result of one import batch.
type ImportSummary struct {
	Created   int           `json:"createdCount"`
	Updated   int           `json:"updatedCount"`
	Unchanged int           `json:"unchangedCount"`
	Skipped   int           `json:"skippedCount"`
	Failed    int           `json:"failedCount"`
	Errors    []ImportError `json:"errors"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// Message renders the summary the way the dashboard toast shows it.
func (s ImportSummary) Message() string {
	msg := "Created " + strconv.Itoa(s.Created) + " and updated " + strconv.Itoa(s.Updated) + " modules."
	if s.Skipped > 0 {
		msg += " Skipped " + strconv.Itoa(s.Skipped) + "."
	}
	if s.Failed > 0 {
		msg += " " + strconv.Itoa(s.Failed) + " writes failed."
	}
	if s.Cancelled {
		msg += " Import was cancelled."
	}
	return msg
}

func (s *ImportSummary) addError(e ImportError) {
	s.Errors = append(s.Errors, e)
}
