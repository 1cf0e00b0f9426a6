package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/gcp"
	"github.com/mlewis7127/specflow/internal/models"
)

// MinGeneratedLength is the smallest generated document accepted by the
// quality gate.
const MinGeneratedLength = 100

// headerMarker matches a markdown header at the start of any line.
var headerMarker = regexp.MustCompile(`(?m)^#{1,6}\s`)

// refusalPhrases flag model responses that decline the task instead of
// producing a specification. Matched case-insensitively as substrings.
var refusalPhrases = []string{
	"i cannot",
	"i am unable to",
	"unable to generate",
	"as a large language model",
	"as an ai language model",
}

// Completer is the black-box text completion capability.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (*models.CompletionOutput, error)
}

// GeneratorConfig holds the sampling parameters for specification
// generation. Low temperature favors deterministic output.
type GeneratorConfig struct {
	MaxOutputTokens int
	Temperature     float32
	Retry           RetryConfig
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxOutputTokens: 4000,
		Temperature:     0.3,
		Retry:           DefaultRetryConfig(),
	}
}

// Generator builds the specification prompt from normalized content and
// invokes the completion capability under the retrying invoker.
type Generator struct {
	completer Completer
	config    GeneratorConfig
	logger    *zap.Logger
}

func NewGenerator(completer Completer, config GeneratorConfig, logger *zap.Logger) *Generator {
	return &Generator{completer: completer, config: config, logger: logger}
}

// Process generates the specification markdown for a normalized document.
// An inherited error is returned unchanged with no completion call.
func (g *Generator) Process(ctx context.Context, doc *models.NormalizedDocument, inErr *models.ProcessingError) (*models.GenerationResult, *models.ProcessingError) {
	if inErr != nil {
		return nil, inErr
	}

	logCtx := g.logger.With(zap.String("key", doc.Key))
	logCtx.Info("Starting specification generation.", zap.Int("contentLength", len(doc.Text)))

	userPrompt := buildGenerationPrompt(doc)

	return invokeWithRetry(ctx, g.config.Retry, logCtx, "specification generation", func(ctx context.Context) (*models.GenerationResult, *models.ProcessingError) {
		start := time.Now()
		out, err := g.completer.Complete(ctx, gcp.GeneratorSystemPrompt, userPrompt, g.config.MaxOutputTokens, g.config.Temperature)
		if err != nil {
			return nil, classifyCompletionError(doc.Key, err)
		}
		if out == nil || out.Text == "" {
			return nil, models.NewGenerationError(doc.Key, "invalid response: no text content in completion", true)
		}
		if perr := validateGeneratedContent(doc.Key, out.Text); perr != nil {
			return nil, perr
		}

		duration := time.Since(start)
		logCtx.Info("Specification generated.",
			zap.Duration("duration", duration),
			zap.Int("inputTokens", out.InputTokens),
			zap.Int("outputTokens", out.OutputTokens))

		return &models.GenerationResult{
			Markdown:     out.Text,
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
			Duration:     duration,
			Key:          doc.Key,
			Bucket:       doc.Bucket,
			FileType:     doc.FileType,
			CompletedAt:  time.Now().UTC(),
		}, nil
	})
}

// buildGenerationPrompt embeds the document identity and verbatim text into
// the fixed instructional template.
func buildGenerationPrompt(doc *models.NormalizedDocument) string {
	return fmt.Sprintf(gcp.GeneratorUserPromptTemplate, doc.Key, doc.FileType, len(doc.Text), doc.Text)
}

// validateGeneratedContent enforces the quality gate: minimum length, a
// markdown header, and no refusal phrase. Violations are retryable since a
// re-attempt may produce a compliant response.
func validateGeneratedContent(key, text string) *models.ProcessingError {
	if len(text) < MinGeneratedLength {
		return models.NewGenerationError(key,
			fmt.Sprintf("generated content too short: %d characters (minimum %d)", len(text), MinGeneratedLength), true)
	}
	if !headerMarker.MatchString(text) {
		return models.NewGenerationError(key, "generated content contains no markdown header", true)
	}
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return models.NewGenerationError(key, fmt.Sprintf("model response indicates refusal (%q)", phrase), true)
		}
	}
	return nil
}

// classifyCompletionError maps provider failures onto the retry taxonomy:
// rate limiting is retryable, a malformed request is terminal, anything
// else defaults to retryable.
func classifyCompletionError(key string, err error) *models.ProcessingError {
	switch {
	case gcp.IsInvalidRequest(err):
		return models.NewGenerationError(key, "completion request rejected as malformed", false).WithDetail("cause", err.Error())
	case gcp.IsRateLimited(err):
		return models.NewGenerationError(key, "completion rate limited", true).WithDetail("cause", err.Error())
	default:
		return models.NewGenerationError(key, fmt.Sprintf("completion failed: %v", err), true)
	}
}
