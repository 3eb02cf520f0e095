// Package ai holds the inference-backed capabilities behind the monitoring
// pipeline: watchpoint extraction, change significance analysis, and
// notification message generation. Each capability is an interface so the
// pipeline can be tested without a live backend; callers own the documented
// fallback behavior when a capability fails.
package ai

import (
	"context"

	"github.com/ticketguy/Keepshot/lib/models"
)

// Field is one extracted watchpoint.
type Field struct {
	Name    string
	Value   string
	Type    string
	Primary bool
}

// Analysis scores one field change. Score is not guaranteed in-range by the
// backend; callers clamp to [0.0, 1.0].
type Analysis struct {
	Score     float64
	Kind      models.ChangeKind
	Rationale string
}

type Message struct {
	Title string
	Body  string
}

// FieldDelta summarizes a significant change for message generation.
type FieldDelta struct {
	Name     string
	OldValue string
	NewValue string
	Score    float64
}

type Extractor interface {
	ExtractWatchpoints(ctx context.Context, text string, kind models.ContentKind, metadata models.JSONMap) ([]Field, error)
}

type Analyzer interface {
	AnalyzeChange(ctx context.Context, fieldName, oldValue, newValue string, kind models.ContentKind) (*Analysis, error)
}

type Generator interface {
	GenerateMessage(ctx context.Context, bookmarkTitle string, deltas []FieldDelta, kind models.ContentKind) (*Message, error)
}

// Excerpt truncates s to at most n bytes, used for prompt budgets and the
// extraction fallback field.
func Excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
