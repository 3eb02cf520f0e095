package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/models"
	"go.uber.org/zap"
)

// Client talks to an OpenAI-compatible chat completions API in JSON mode.
// It implements Extractor, Analyzer and Generator.
type Client struct {
	cfg       *config.Config
	log       *zap.Logger
	transport http.RoundTripper
}

func NewClient(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Client {
	return &Client{cfg, log, transport}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	req := chatRequest{
		Model:       c.cfg.OpenAI.Model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	req.ResponseFormat.Type = "json_object"

	timeout := time.Duration(c.cfg.OpenAI.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp chatResponse
	err := requests.URL(c.cfg.OpenAI.BaseURL+"/chat/completions").
		Transport(c.transport).
		Bearer(c.cfg.OpenAI.APIKey).
		BodyJSON(&req).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) ExtractWatchpoints(ctx context.Context, text string, kind models.ContentKind, metadata models.JSONMap) ([]Field, error) {
	meta, _ := json.Marshal(metadata)
	prompt := fmt.Sprintf(`Analyze this content and extract 3-5 key fields that should be monitored for changes.

Content Type: %s
Metadata: %s
Content:
%s

Examples of watchpoints by content type:
- E-commerce: price, availability, rating, shipping_cost
- Article: title, publication_date, content_summary
- Job posting: status, salary, location, closing_date

For each watchpoint provide field_name (snake_case), field_value (as string),
field_type (currency, number, text, date, status, etc.) and is_primary (true
for the single most important field).

Respond in JSON format:
{"watchpoints": [{"field_name": "example", "field_value": "value", "field_type": "text", "is_primary": false}]}`,
		kind, meta, Excerpt(text, 2000))

	raw, err := c.complete(ctx,
		"You are an AI assistant that analyzes content and identifies key fields worth monitoring for changes.",
		prompt, 0.3)
	if err != nil {
		return nil, err
	}

	fields, err := parseWatchpoints(raw)
	if err != nil {
		return nil, err
	}
	c.log.Sugar().Infow("watchpoints extracted", "content_kind", kind, "count", len(fields))
	return fields, nil
}

func parseWatchpoints(raw string) ([]Field, error) {
	var parsed struct {
		Watchpoints []struct {
			FieldName  string `json:"field_name"`
			FieldValue string `json:"field_value"`
			FieldType  string `json:"field_type"`
			IsPrimary  bool   `json:"is_primary"`
		} `json:"watchpoints"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Watchpoints) == 0 {
		return nil, errors.New("extraction returned no watchpoints")
	}

	fields := make([]Field, 0, len(parsed.Watchpoints))
	for _, wp := range parsed.Watchpoints {
		if wp.FieldName == "" {
			continue
		}
		fields = append(fields, Field{
			Name:    wp.FieldName,
			Value:   wp.FieldValue,
			Type:    wp.FieldType,
			Primary: wp.IsPrimary,
		})
	}
	if len(fields) == 0 {
		return nil, errors.New("extraction returned no usable watchpoints")
	}
	return fields, nil
}

func (c *Client) AnalyzeChange(ctx context.Context, fieldName, oldValue, newValue string, kind models.ContentKind) (*Analysis, error) {
	prompt := fmt.Sprintf(`Analyze the significance of this change:

Field: %s
Old Value: %s
New Value: %s
Content Type: %s

Rate the significance from 0.0 to 1.0 where:
- 0.0 = trivial (typo fix, minor formatting)
- 0.3 = minor (small content update, minor metric change)
- 0.5 = moderate (notable content change, significant metric change)
- 0.7 = important (major update, price change, availability change)
- 1.0 = critical (sold out, massive price drop, major breaking news)

Also determine the change type: increase, decrease, modified, added, or removed.

Respond in JSON format:
{"significance_score": 0.0, "change_type": "modified", "reasoning": "brief explanation"}`,
		fieldName, Excerpt(oldValue, 500), Excerpt(newValue, 500), kind)

	raw, err := c.complete(ctx,
		"You are an AI that analyzes content changes and determines their significance.",
		prompt, 0.2)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return nil, err
	}
	c.log.Sugar().Infow("change analyzed", "field", fieldName, "significance", analysis.Score, "change_kind", analysis.Kind)
	return analysis, nil
}

func parseAnalysis(raw string) (*Analysis, error) {
	var parsed struct {
		SignificanceScore float64 `json:"significance_score"`
		ChangeType        string  `json:"change_type"`
		Reasoning         string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	return &Analysis{
		Score:     parsed.SignificanceScore,
		Kind:      parseChangeKind(parsed.ChangeType),
		Rationale: parsed.Reasoning,
	}, nil
}

func parseChangeKind(s string) models.ChangeKind {
	switch models.ChangeKind(strings.ToLower(s)) {
	case models.ChangeIncreased, models.ChangeDecreased, models.ChangeAdded, models.ChangeRemoved:
		return models.ChangeKind(strings.ToLower(s))
	default:
		return models.ChangeModified
	}
}

func (c *Client) GenerateMessage(ctx context.Context, bookmarkTitle string, deltas []FieldDelta, kind models.ContentKind) (*Message, error) {
	lines := make([]string, 0, len(deltas))
	for _, d := range deltas {
		lines = append(lines, fmt.Sprintf("- %s: %s -> %s", d.Name, Excerpt(d.OldValue, 100), Excerpt(d.NewValue, 100)))
	}

	prompt := fmt.Sprintf(`Generate a concise, user-friendly notification message for these changes:

Bookmark: %s
Content Type: %s
Changes:
%s

Create a notification with a short, attention-grabbing title (max 60
characters) and a clear message explaining what changed and why it matters
(max 200 characters).

Respond in JSON format:
{"title": "short title", "message": "clear explanation"}`,
		bookmarkTitle, kind, strings.Join(lines, "\n"))

	raw, err := c.complete(ctx,
		"You are an AI that creates helpful, concise notifications for users.",
		prompt, 0.7)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	if parsed.Title == "" {
		parsed.Title = "Bookmark Updated"
	}
	if parsed.Message == "" {
		parsed.Message = "Your bookmark has changed."
	}
	return &Message{Title: parsed.Title, Body: parsed.Message}, nil
}
