package services

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/gcp"
	"github.com/mlewis7127/specflow/internal/models"
)

// outputKeyPattern is the required grammar for generated specification
// keys, validated before every write.
var outputKeyPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/.+\.md$`)

// markdownPunct strips the markdown syntax characters that would otherwise
// inflate the word count.
var markdownPunct = regexp.MustCompile("[#*_`>|~\\[\\]()=+-]")

// ObjectPutter writes an output object with metadata.
type ObjectPutter interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error
}

// PersisterConfig holds the destination for generated specifications.
type PersisterConfig struct {
	OutputBucket string
	Retry        RetryConfig
}

// Persister writes the generated markdown under a deterministic
// date-partitioned key, exactly once per invocation.
type Persister struct {
	store  ObjectPutter
	config PersisterConfig
	logger *zap.Logger

	// now is swapped in tests to pin the output key.
	now func() time.Time
}

func NewPersister(store ObjectPutter, config PersisterConfig, logger *zap.Logger) *Persister {
	return &Persister{store: store, config: config, logger: logger, now: time.Now}
}

// ComputeOutputKey derives the date-partitioned output key for an original
// key at a fixed timestamp. Same inputs always produce the same key.
func ComputeOutputKey(originalKey string, at time.Time) string {
	at = at.UTC()
	base := path.Base(originalKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	return fmt.Sprintf("%s/%s-%s.md", at.Format("2006/01/02"), base, at.Format("20060102T150405Z"))
}

// Process persists a generation result and returns the specification
// record. An inherited error is returned unchanged with no write.
func (p *Persister) Process(ctx context.Context, result *models.GenerationResult, inErr *models.ProcessingError) (*models.SpecificationRecord, *models.ProcessingError) {
	if inErr != nil {
		return nil, inErr
	}

	logCtx := p.logger.With(zap.String("key", result.Key))

	// The timestamp is fixed before the retry loop so every attempt writes
	// the same key; the store's does-not-exist precondition makes the write
	// exactly-once.
	generatedAt := p.now().UTC()
	outputKey := ComputeOutputKey(result.Key, generatedAt)
	if !outputKeyPattern.MatchString(outputKey) {
		return nil, models.NewWriteError(result.Key,
			fmt.Sprintf("computed output key %q does not match required grammar", outputKey), false, nil)
	}

	processingID := uuid.New().String()
	wordCount := countWords(result.Markdown)
	content := metadataHeader(result, generatedAt) + result.Markdown

	metadata := map[string]string{
		"original-file":      result.Key,
		"original-bucket":    result.Bucket,
		"file-type":          string(result.FileType),
		"processing-time-ms": strconv.FormatInt(result.Duration.Milliseconds(), 10),
		"input-tokens":       strconv.Itoa(result.InputTokens),
		"output-tokens":      strconv.Itoa(result.OutputTokens),
		"word-count":         strconv.Itoa(wordCount),
		"generated-at":       generatedAt.Format(time.RFC3339),
		"processing-id":      processingID,
	}

	logCtx.Info("Persisting specification.", zap.String("outputKey", outputKey), zap.Int("wordCount", wordCount))

	_, perr := invokeWithRetry(ctx, p.config.Retry, logCtx, "specification write", func(ctx context.Context) (struct{}, *models.ProcessingError) {
		err := p.store.Put(ctx, p.config.OutputBucket, outputKey, []byte(content), "text/markdown", metadata)
		if err != nil {
			return struct{}{}, classifyStoreError(result.Key, err)
		}
		return struct{}{}, nil
	})
	if perr != nil {
		return nil, perr
	}

	logCtx.Info("Specification persisted.", zap.String("outputKey", outputKey), zap.String("processingId", processingID))
	return &models.SpecificationRecord{
		Key:          result.Key,
		GeneratedAt:  generatedAt,
		OutputBucket: p.config.OutputBucket,
		OutputKey:    outputKey,
		Duration:     result.Duration,
		WordCount:    wordCount,
		FileType:     result.FileType,
		ProcessingID: processingID,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, nil
}

// metadataHeader renders the fixed front-matter block prepended to every
// generated specification.
func metadataHeader(result *models.GenerationResult, generatedAt time.Time) string {
	return fmt.Sprintf(`---
original_file: %s
generated_at: %s
processing_time_ms: %d
file_type: %s
input_tokens: %d
output_tokens: %d
---

`, result.Key, generatedAt.Format(time.RFC3339), result.Duration.Milliseconds(),
		result.FileType, result.InputTokens, result.OutputTokens)
}

// countWords strips markdown punctuation and splits on whitespace.
func countWords(markdown string) int {
	return len(strings.Fields(markdownPunct.ReplaceAllString(markdown, " ")))
}

// classifyStoreError maps store failures onto the retry taxonomy: a
// missing destination or denied access is terminal, transient
// unavailability and throttling are retryable.
func classifyStoreError(key string, err error) *models.ProcessingError {
	if gcp.IsTerminalStoreFailure(err) {
		return models.NewWriteError(key, "destination unavailable or access denied", false, err)
	}
	return models.NewWriteError(key, "transient store failure", true, err)
}
