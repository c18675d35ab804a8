// Package summary turns lint findings into a one-line review summary,
// optionally through an LLM.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/phobologic/depprune/internal/model"
)

// Fallback summaries used when no model answer is available.
const (
	NoSummarizer = "Review done: ruff executed (no LLM key)."
	Failed       = "Review done: ruff executed (LLM failed)."
	Empty        = "Review complete: no additional comments."
)

const (
	systemPrompt = "You are a Python reviewer."
	maxSample    = 5
	noFindings   = "No lint issues found."
)

// Summarizer produces text for a prompt. A nil Summarizer is valid and
// yields the NoSummarizer fallback.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Prompt renders up to the first five findings into the review prompt.
func Prompt(findings []model.LintFinding) string {
	var lines []string
	for i, f := range findings {
		if i == maxSample {
			break
		}
		lines = append(lines, fmt.Sprintf("%s:%d %s %s", f.File, f.Line, f.Code, f.Message))
	}
	sample := strings.Join(lines, "\n")
	if sample == "" {
		sample = noFindings
	}
	return "Summarise these ruff findings in one concise sentence for a commit message.\n\n" + sample
}

// Review asks s to summarize findings and never fails: every problem maps
// to one of the fallback strings.
func Review(ctx context.Context, s Summarizer, findings []model.LintFinding) string {
	if s == nil {
		return NoSummarizer
	}
	text, err := s.Summarize(ctx, Prompt(findings))
	if err != nil {
		return Failed
	}
	if text = strings.TrimSpace(text); text == "" {
		return Empty
	}
	return text
}
