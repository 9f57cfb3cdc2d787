/*
Package ai produces an optional Gemini-generated digest of a run's newly
archived announcements, appended to the run report when an API key is
configured.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// Digest is the structured summary returned by the model.
type Digest struct {
	Summary    []string            `json:"summary"`
	Highlights []TickerObservation `json:"highlights"`
}

// TickerObservation is one noteworthy item tied to a ticker.
type TickerObservation struct {
	Ticker  string `json:"ticker"`
	Details string `json:"details"`
}

// GenerateDigest summarizes the newly archived announcement titles, grouped
// by ticker, into a few report-ready bullets.
func GenerateDigest(ctx context.Context, apiKey, modelName string, titlesByTicker map[string][]string) (*Digest, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if len(titlesByTicker) == 0 {
		return nil, fmt.Errorf("nothing to summarize")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	systemContent := &genai.Content{
		Parts: []*genai.Part{{Text: systemInstruction}},
		Role:  "system",
	}
	userContent := &genai.Content{
		Parts: []*genai.Part{{Text: buildPrompt(titlesByTicker)}},
		Role:  "user",
	}
	contents := []*genai.Content{systemContent, userContent}

	resp, err := client.Models.GenerateContent(ctx, modelName, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   digestSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	respText := resp.Text()
	var digest Digest
	if err := json.Unmarshal([]byte(respText), &digest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}
	return &digest, nil
}

// Markdown renders the digest for inclusion in the run report.
func (d *Digest) Markdown() string {
	var b strings.Builder
	for _, line := range d.Summary {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if len(d.Highlights) > 0 {
		b.WriteString("\n**Highlights**\n\n")
		for _, h := range d.Highlights {
			fmt.Fprintf(&b, "- **%s**: %s\n", h.Ticker, h.Details)
		}
	}
	return b.String()
}

func buildPrompt(titlesByTicker map[string][]string) string {
	tickers := make([]string, 0, len(titlesByTicker))
	for t := range titlesByTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var b strings.Builder
	b.WriteString("Summarize the disclosure announcements archived in this run:\n\n")
	for _, t := range tickers {
		fmt.Fprintf(&b, "%s:\n", t)
		for _, title := range titlesByTicker[t] {
			fmt.Fprintf(&b, "  - %s\n", title)
		}
	}
	return b.String()
}

func digestSchema() *genai.Schema {
	highlightSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"ticker":  {Type: genai.TypeString, Description: "The security code the observation concerns."},
			"details": {Type: genai.TypeString, Description: "What makes this announcement noteworthy."},
		},
		Required: []string{"ticker", "details"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "3-5 concise bullet points describing what this run archived.",
			},
			"highlights": {
				Type:        genai.TypeArray,
				Items:       highlightSchema,
				Description: "Announcements likely to matter to an analyst, by ticker.",
			},
		},
		Required: []string{"summary", "highlights"},
	}
}
