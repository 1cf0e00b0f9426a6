package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/mlewis7127/specflow/internal/models"
)

// --- Specification Generator Model Prompts ---

const GeneratorSystemPrompt = "You are a senior technical writer. Your task is to analyze the content of an uploaded document and produce a complete, well-structured technical specification document in markdown format. Accuracy, completeness, and clear structure are of utmost importance."

const GeneratorUserPromptTemplate = `Analyze the document content below and write a technical specification document in markdown.

The specification must contain these sections:
1.  **# Overview**: A concise summary of what the document describes and the problem it addresses.
2.  **# Requirements**: Functional and non-functional requirements derived from the content, as a numbered list.
3.  **# Technical Details**: Architecture, data, interfaces, and constraints that can be inferred from the content.
4.  **# Additional Sections**: Any further sections the content warrants (assumptions, open questions, glossary).

Preserve every concrete detail present in the source. Do not invent requirements that have no basis in the content. Return ONLY the markdown document, without preamble or surrounding code fences.

Source file: %s
File type: %s
Content length: %d characters

Document content between the delimiter lines:
----------------------------------------
%s
----------------------------------------`

// VertexCompleter invokes a Vertex AI Gemini model as the pipeline's
// black-box text completion capability.
type VertexCompleter struct {
	client    *genai.Client
	modelName string
}

// NewVertexCompleter creates a completer bound to one model in one region.
func NewVertexCompleter(ctx context.Context, projectID, region, modelName string) (*VertexCompleter, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexCompleter: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{client: client, modelName: modelName}, nil
}

// Complete runs one completion with the given sampling parameters and
// returns the concatenated text of the first candidate plus usage counts.
func (c *VertexCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (*models.CompletionOutput, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: genai.Ptr[int32](int32(maxTokens)),
		Temperature:     genai.Ptr[float32](temperature),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	out := &models.CompletionOutput{Text: extractText(resp)}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 {
		out.StopReason = resp.Candidates[0].FinishReason.String()
	}
	return out, nil
}

// extractText robustly pulls the text content out of the model's response,
// trimming any code fence the model wrapped the document in.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}

	text := strings.TrimSpace(builder.String())
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func (c *VertexCompleter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
