package services

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

// Publisher delivers one notification message with attributes.
type Publisher interface {
	Publish(ctx context.Context, subject, body string, attributes map[string]string) (string, error)
}

// URLSigner mints a time-limited download reference for an output object.
type URLSigner interface {
	SignedURL(bucket, key string, ttl time.Duration, downloadFilename string) (string, error)
}

// NotifierConfig holds the notification rendering parameters.
type NotifierConfig struct {
	Environment string
	DownloadTTL time.Duration
}

func DefaultNotifierConfig(environment string) NotifierConfig {
	return NotifierConfig{
		Environment: environment,
		DownloadTTL: 24 * time.Hour,
	}
}

// Notifier renders and publishes the execution's single outcome message.
// It is not retried: a failed publish is surfaced to the caller but never
// re-runs the pipeline.
type Notifier struct {
	publisher Publisher
	signer    URLSigner
	config    NotifierConfig
	logger    *zap.Logger
}

func NewNotifier(publisher Publisher, signer URLSigner, config NotifierConfig, logger *zap.Logger) *Notifier {
	return &Notifier{publisher: publisher, signer: signer, config: config, logger: logger}
}

// Process publishes either the success or the failure rendering of the
// execution's outcome and returns the broker's message ID.
func (n *Notifier) Process(ctx context.Context, record *models.SpecificationRecord, perr *models.ProcessingError, executionID string) (string, error) {
	var subject, body, originalFile, outcome string

	if perr != nil {
		outcome = "failure"
		originalFile = perr.Key
		subject = fmt.Sprintf("Specification generation failed: %s", path.Base(perr.Key))
		body = n.renderFailure(perr, executionID)
	} else {
		outcome = "success"
		originalFile = record.Key
		subject = fmt.Sprintf("Specification generated: %s", path.Base(record.Key))
		body = n.renderSuccess(record, executionID)
	}

	attributes := map[string]string{
		"notificationType": outcome,
		"originalFile":     originalFile,
		"environment":      n.config.Environment,
	}

	messageID, err := n.publisher.Publish(ctx, subject, body, attributes)
	if err != nil {
		n.logger.Error("Failed to publish outcome notification.",
			zap.String("executionId", executionID),
			zap.String("notificationType", outcome),
			zap.Error(err))
		return "", fmt.Errorf("failed to publish %s notification: %w", outcome, err)
	}

	n.logger.Info("Outcome notification published.",
		zap.String("executionId", executionID),
		zap.String("notificationType", outcome),
		zap.String("messageId", messageID))
	return messageID, nil
}

func (n *Notifier) renderSuccess(record *models.SpecificationRecord, executionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Specification document generated successfully.\n\n")
	fmt.Fprintf(&b, "Original file:   %s\n", record.Key)
	fmt.Fprintf(&b, "Output location: gs://%s/%s\n", record.OutputBucket, record.OutputKey)
	fmt.Fprintf(&b, "Processing time: %s\n", record.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Word count:      %d\n", record.WordCount)
	fmt.Fprintf(&b, "Input tokens:    %d\n", record.InputTokens)
	fmt.Fprintf(&b, "Output tokens:   %d\n", record.OutputTokens)
	fmt.Fprintf(&b, "Execution:       %s\n", executionID)

	downloadName := path.Base(record.OutputKey)
	if url, err := n.signer.SignedURL(record.OutputBucket, record.OutputKey, n.config.DownloadTTL, downloadName); err != nil {
		// Degrade to the raw location rather than failing the notification.
		n.logger.Warn("Could not generate download URL; message will carry the raw location.",
			zap.String("outputKey", record.OutputKey), zap.Error(err))
		fmt.Fprintf(&b, "\nDownload the document from the output location above.\n")
	} else {
		fmt.Fprintf(&b, "\nDownload (valid for %s):\n%s\n", n.config.DownloadTTL, url)
	}
	return b.String()
}

func (n *Notifier) renderFailure(perr *models.ProcessingError, executionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Specification generation failed.\n\n")
	fmt.Fprintf(&b, "Original file: %s\n", perr.Key)
	fmt.Fprintf(&b, "errorType: %q\n", string(perr.Kind))
	fmt.Fprintf(&b, "Error:     %s\n", perr.Message)
	fmt.Fprintf(&b, "Time:      %s\n", perr.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Execution: %s\n", executionID)

	if len(perr.Details) > 0 {
		fmt.Fprintf(&b, "\nDetails:\n")
		keys := make([]string, 0, len(perr.Details))
		for k := range perr.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, perr.Details[k])
		}
	}

	supported := make([]string, len(models.SupportedFileTypes))
	for i, t := range models.SupportedFileTypes {
		supported[i] = string(t)
	}
	fmt.Fprintf(&b, "\nTroubleshooting:\n")
	fmt.Fprintf(&b, "  - Supported formats: %s\n", strings.Join(supported, ", "))
	fmt.Fprintf(&b, "  - Maximum file size: %d KiB per upload (%d MiB storage ceiling)\n",
		MaxTransportPayloadBytes/1024, MaxFileSizeBytes/(1<<20))
	fmt.Fprintf(&b, "  - Correct the issue and upload the file again.\n")
	return b.String()
}
