package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/SAP-F-2025/forecast-service/internal/models"
)

const systemInstruction = `You are an education analyst assisting teachers. You receive JSON with class statistics,
rule-based observations and post-test forecasts from formative assessments. Write concise, specific,
teacher-friendly insights. Respond with JSON only, in this shape:
{"summary": "...", "trends": ["..."], "actionable": ["..."], "recommendations": ["..."]}
Limit each list to 5 items.`

// Narrative is a free-text summary produced by a language model.
type Narrative struct {
	Model           string   `json:"model"`
	Summary         string   `json:"summary"`
	Trends          []string `json:"trends,omitempty"`
	Actionable      []string `json:"actionable,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	RawText         string   `json:"raw_text,omitempty"`
}

// Narrator turns rule output into a narrative.
type Narrator interface {
	Narrate(ctx context.Context, in Input, found []models.Insight) (*Narrative, error)
}

type GeminiNarrator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGeminiNarrator(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiNarrator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiNarrator{client: client, model: model, logger: logger}, nil
}

func (g *GeminiNarrator) Narrate(ctx context.Context, in Input, found []models.Insight) (*Narrative, error) {
	prompt, err := BuildPrompt(in, found)
	if err != nil {
		return nil, err
	}

	temp := float32(0.1)
	config := &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	n := ParseNarrative(result.Text())
	n.Model = g.model
	if n.RawText != "" {
		g.logger.WarnContext(ctx, "Gemini narrative was not valid JSON", "model", g.model)
	}
	return n, nil
}

type promptPayload struct {
	Document    models.DescriptiveStats `json:"document"`
	Students    int                     `json:"students"`
	Assessments []promptAssessment      `json:"assessments"`
	Insights    []models.Insight        `json:"insights"`
	Forecasts   []StudentForecast       `json:"forecasts"`
}

type promptAssessment struct {
	TestNumber  int     `json:"test_number"`
	Mean        float64 `json:"mean"`
	MaxScore    float64 `json:"max_score"`
	PassingRate float64 `json:"passing_rate"`
}

// BuildPrompt serializes the model input.
func BuildPrompt(in Input, found []models.Insight) (string, error) {
	p := promptPayload{
		Document: in.Aggregates.Document.Stats,
		Students: in.Aggregates.Document.TotalStudents,
		Insights: found,
	}
	for _, a := range in.Aggregates.Assessments {
		p.Assessments = append(p.Assessments, promptAssessment{
			TestNumber:  a.TestNumber,
			Mean:        a.Stats.Mean,
			MaxScore:    a.MaxScore,
			PassingRate: a.PassingRate,
		})
	}
	p.Forecasts = in.Forecasts
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal narrative prompt: %w", err)
	}
	return string(data), nil
}

// ParseNarrative accepts bare or fenced JSON; anything else is kept as raw text.
func ParseNarrative(text string) *Narrative {
	cleaned := strings.TrimSpace(text)
	if i := strings.Index(cleaned, "```"); i >= 0 {
		cleaned = cleaned[i+3:]
		cleaned = strings.TrimPrefix(cleaned, "json")
		if j := strings.Index(cleaned, "```"); j >= 0 {
			cleaned = cleaned[:j]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var n Narrative
	if err := json.Unmarshal([]byte(cleaned), &n); err != nil || n.Summary == "" {
		return &Narrative{Summary: "Unstructured narrative", RawText: text}
	}
	return &n
}
