// Package summarizer produces short plain-language summaries of legal
// documents, using an OpenAI-compatible chat model with a deterministic
// excerpt fallback. A summary is never empty for non-empty input.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
)

const (
	// maxModelInputChars bounds the content sent to the model.
	maxModelInputChars = 8000

	// excerptSentences and maxExcerptChars bound the fallback excerpt.
	excerptSentences = 5
	maxExcerptChars  = 500

	excerptPrefix = "[Auto-generated excerpt]"
)

const systemPrompt = `You are a legal analyst specializing in Indian labour law. ` +
	`Summarize the given document in 3-5 sentences. Cover: what the law or notification does, ` +
	`who it applies to, and any key obligations, dates or penalties. Write plainly, without preamble.`

// Summarizer produces a summary for a document.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) string
}

// LLM summarizes through a chat model and falls back to an excerpt when the
// model is unavailable or returns nothing usable.
type LLM struct {
	model  llms.Model
	logger *zap.Logger
}

// New builds an LLM summarizer from configuration.
func New(cfg config.SummaryConfig, logger *zap.Logger) (*LLM, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create summary client: %w", err)
	}
	return &LLM{model: client, logger: logger}, nil
}

// NewWithModel builds an LLM summarizer around an existing model.
func NewWithModel(model llms.Model, logger *zap.Logger) *LLM {
	return &LLM{model: model, logger: logger}
}

// Summarize returns a model-generated summary, or the excerpt fallback when
// generation fails.
func (l *LLM) Summarize(ctx context.Context, title, content string) string {
	summary, err := l.generate(ctx, title, content)
	if err != nil {
		l.logger.Warn("summary generation failed, using excerpt",
			zap.String("title", title),
			zap.Error(err),
		)
		return Excerpt(title, content)
	}
	return summary
}

func (l *LLM) generate(ctx context.Context, title, content string) (string, error) {
	input := content
	if len(input) > maxModelInputChars {
		input = input[:maxModelInputChars]
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf("Title: %s\n\n%s", title, input))},
		},
	}

	response, err := l.model.GenerateContent(ctx, messages, llms.WithTemperature(0.3))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("generate summary: model returned no choices")
	}
	summary := strings.TrimSpace(response.Choices[0].Content)
	if summary == "" {
		return "", fmt.Errorf("generate summary: model returned empty content")
	}
	return summary, nil
}

// Excerpt builds a deterministic summary from the first sentences of the
// content. It is used when no model is configured or generation fails.
func Excerpt(title, content string) string {
	sentences := splitSentences(content)
	if len(sentences) > excerptSentences {
		sentences = sentences[:excerptSentences]
	}
	body := strings.TrimSpace(strings.Join(sentences, " "))

	excerpt := fmt.Sprintf("%s %s: %s", excerptPrefix, title, body)
	if runes := []rune(excerpt); len(runes) > maxExcerptChars {
		excerpt = string(runes[:maxExcerptChars])
	}
	return excerpt
}

// Fallback is a Summarizer that always produces the excerpt. It serves
// deployments with no model configured.
type Fallback struct{}

// Summarize implements Summarizer.
func (Fallback) Summarize(_ context.Context, title, content string) string {
	return Excerpt(title, content)
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
