package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phobologic/depprune/internal/model"
)

type fakeSummarizer struct {
	text   string
	err    error
	prompt string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

func TestReviewFallbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.Equal(t, NoSummarizer, Review(ctx, nil, nil))
	assert.Equal(t, Failed, Review(ctx, &fakeSummarizer{err: errors.New("quota")}, nil))
	assert.Equal(t, Empty, Review(ctx, &fakeSummarizer{text: "  \n"}, nil))
	assert.Equal(t, "Removed unused os import.", Review(ctx, &fakeSummarizer{text: " Removed unused os import.\n"}, nil))
}

func TestPromptNoFindings(t *testing.T) {
	t.Parallel()
	assert.True(t, strings.HasSuffix(Prompt(nil), "\n\nNo lint issues found."))
}

func TestPromptSamplesFirstFive(t *testing.T) {
	t.Parallel()

	var findings []model.LintFinding
	for i := 1; i <= 7; i++ {
		findings = append(findings, model.LintFinding{File: "m.py", Line: i, Code: "E501", Message: "too long"})
	}

	f := &fakeSummarizer{text: "ok"}
	Review(context.Background(), f, findings)
	assert.Contains(t, f.prompt, "m.py:1 E501 too long")
	assert.Contains(t, f.prompt, "m.py:5 E501 too long")
	assert.NotContains(t, f.prompt, "m.py:6")
}
