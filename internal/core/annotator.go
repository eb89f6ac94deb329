package core

import "context"

// AnomalyInput is what the annotator sees of a module.
type AnomalyInput struct {
	Yard     string
	Location string
	ModuleNo string
	Status   string
	Notes    string
}

// AnomalyResult is the annotator's verdict.
type AnomalyResult struct {
	IsAnomaly   bool   `json:"isAnomaly"`
	Explanation string `json:"explanation"`
}

// Annotator flags records that look wrong. Implementations must not fail on
// malformed input; they return IsAnomaly=false with a neutral explanation.
// A returned error means the annotator could not be reached.
type Annotator interface {
	Evaluate(ctx context.Context, in AnomalyInput) (AnomalyResult, error)
}

// AnomalyInputFor builds the annotator input for m.
func AnomalyInputFor(m Module) AnomalyInput {
	return AnomalyInput{
		Yard:     m.Yard,
		Location: m.Location,
		ModuleNo: m.ModuleNo,
		Status:   string(m.Status),
		Notes:    m.ProgressNotes(),
	}
}
