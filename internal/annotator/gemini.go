package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// unreadable is the explanation stored when the model answer cannot be parsed.
const unreadable = "The annotator returned an unreadable answer; the record was not flagged."

// generator is the part of *genai.Models the annotator uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model whether a module record looks inconsistent.
type Gemini struct {
	models generator
	model  string
}

// NewGemini creates a Gemini annotator.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{models: client.Models, model: model}, nil
}

var promptTmpl = template.Must(template.New("prompt").Parse(`You review construction module tracking records.
Decide whether this record looks inconsistent, for example a location that does not belong to the yard,
a status that contradicts the progress notes, or notes that describe a problem.

Yard: {{.Yard}}
Location: {{.Location}}
Module No.: {{.ModuleNo}}
RFLO Date Status: {{.Status}}
Progress notes: {{if .Notes}}{{.Notes}}{{else}}(none){{end}}

Answer with isAnomaly and a one sentence explanation.`))

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isAnomaly":   {Type: genai.TypeBoolean},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"isAnomaly", "explanation"},
}

// Evaluate sends one record to the model. Transport failures are returned
// as errors; an answer that cannot be parsed is reported as no anomaly.
func (g *Gemini) Evaluate(ctx context.Context, in core.AnomalyInput) (core.AnomalyResult, error) {
	prompt, err := renderPrompt(in)
	if err != nil {
		return core.AnomalyResult{}, err
	}

	var temperature float32
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		},
	)
	if err != nil {
		return core.AnomalyResult{}, fmt.Errorf("GenAI generate failed: %w", err)
	}
	if resp == nil {
		return parseVerdict(""), nil
	}
	return parseVerdict(resp.Text()), nil
}

func renderPrompt(in core.AnomalyInput) (string, error) {
	var b strings.Builder
	if err := promptTmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// parseVerdict reads the model's JSON answer. Markdown code fences around
// the object are tolerated.
func parseVerdict(text string) core.AnomalyResult {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw struct {
		IsAnomaly   *bool  `json:"isAnomaly"`
		Explanation string `json:"explanation"`
	}
	if text == "" || json.Unmarshal([]byte(text), &raw) != nil || raw.IsAnomaly == nil {
		return core.AnomalyResult{Explanation: unreadable}
	}
	return core.AnomalyResult{
		IsAnomaly:   *raw.IsAnomaly,
		Explanation: strings.TrimSpace(raw.Explanation),
	}
}
