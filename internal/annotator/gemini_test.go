package annotator

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	text   string
	err    error
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want core.AnomalyResult
	}{
		{
			name: "flagged",
			in:   `{"isAnomaly": true, "explanation": " Location does not belong to yard. "}`,
			want: core.AnomalyResult{IsAnomaly: true, Explanation: "Location does not belong to yard."},
		},
		{
			name: "clean",
			in:   `{"isAnomaly": false, "explanation": "Looks consistent."}`,
			want: core.AnomalyResult{Explanation: "Looks consistent."},
		},
		{
			name: "code fence",
			in:   "```json\n{\"isAnomaly\": true, \"explanation\": \"x\"}\n```",
			want: core.AnomalyResult{IsAnomaly: true, Explanation: "x"},
		},
		{name: "empty", in: "", want: core.AnomalyResult{Explanation: unreadable}},
		{name: "prose", in: "I think this is fine.", want: core.AnomalyResult{Explanation: unreadable}},
		{name: "missing flag", in: `{"explanation": "hm"}`, want: core.AnomalyResult{Explanation: unreadable}},
		{name: "wrong type", in: `{"isAnomaly": "yes"}`, want: core.AnomalyResult{Explanation: unreadable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVerdict(tt.in))
		})
	}
}

func TestGeminiEvaluate(t *testing.T) {
	fake := &fakeModels{text: `{"isAnomaly": true, "explanation": "Status contradicts notes."}`}
	g := &Gemini{models: fake, model: "test-model"}

	res, err := g.Evaluate(context.Background(), core.AnomalyInput{
		Yard: "North", Location: "Bay 1", ModuleNo: "M1", Status: "Pending", Notes: "shipped",
	})
	require.NoError(t, err)

	assert.True(t, res.IsAnomaly)
	assert.Equal(t, "test-model", fake.model)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.NotNil(t, fake.config.ResponseSchema)
	assert.Contains(t, fake.prompt, "Module No.: M1")
	assert.Contains(t, fake.prompt, "Progress notes: shipped")
}

func TestGeminiEvaluate_NoNotes(t *testing.T) {
	fake := &fakeModels{text: `{"isAnomaly": false, "explanation": "ok"}`}
	g := &Gemini{models: fake, model: "m"}

	_, err := g.Evaluate(context.Background(), core.AnomalyInput{ModuleNo: "M1"})
	require.NoError(t, err)
	assert.Contains(t, fake.prompt, "Progress notes: (none)")
}

func TestGeminiEvaluate_TransportError(t *testing.T) {
	g := &Gemini{models: &fakeModels{err: errors.New("503")}, model: "m"}

	_, err := g.Evaluate(context.Background(), core.AnomalyInput{ModuleNo: "M1"})
	assert.Error(t, err)
}

func TestGeminiEvaluate_Malformed(t *testing.T) {
	g := &Gemini{models: &fakeModels{text: "not json"}, model: "m"}

	res, err := g.Evaluate(context.Background(), core.AnomalyInput{ModuleNo: "M1"})
	require.NoError(t, err)
	assert.False(t, res.IsAnomaly)
	assert.Equal(t, unreadable, res.Explanation)
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), config.AnnotatorConfig{Enabled: true})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)

	a, err = New(context.Background(), config.AnnotatorConfig{Enabled: false, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)

	res, err := Noop{}.Evaluate(context.Background(), core.AnomalyInput{})
	require.NoError(t, err)
	assert.False(t, res.IsAnomaly)
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	assert.Error(t, err)
}
