package services

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

// Size ceilings enforced by the read stage. MaxTransportPayloadBytes is
// the downstream orchestration payload limit, deliberately smaller than
// the storage ceiling and reported under its own error kind.
const (
	MaxFileSizeBytes         = 10 << 20
	MaxTransportPayloadBytes = 200 << 10
)

// ObjectGetter fetches a source object's full content.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// ReaderConfig holds the size ceilings the read stage enforces.
type ReaderConfig struct {
	MaxFileSize         int64
	MaxTransportPayload int64
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		MaxFileSize:         MaxFileSizeBytes,
		MaxTransportPayload: MaxTransportPayloadBytes,
	}
}

// Reader validates an uploaded file and produces its normalized content.
// It is not wrapped in the retrying invoker: every validation here is
// deterministic and a retry cannot change the outcome.
type Reader struct {
	store     ObjectGetter
	extractor *Extractor
	config    ReaderConfig
	logger    *zap.Logger
}

func NewReader(store ObjectGetter, extractor *Extractor, config ReaderConfig, logger *zap.Logger) *Reader {
	return &Reader{store: store, extractor: extractor, config: config, logger: logger}
}

// Process validates size, transport ceiling, and format in that order,
// each check short-circuiting, then fetches the bytes and delegates to the
// extractor.
func (r *Reader) Process(ctx context.Context, ref models.FileReference) (*models.NormalizedDocument, *models.ProcessingError) {
	logCtx := r.logger.With(zap.String("key", ref.Key), zap.String("bucket", ref.Bucket))
	logCtx.Info("Starting file read.", zap.Int64("size", ref.Size))

	if ref.Size > r.config.MaxFileSize {
		return nil, models.NewSizeLimitError(ref.Key, ref.Size, r.config.MaxFileSize)
	}
	if ref.Size > r.config.MaxTransportPayload {
		return nil, models.NewTransportLimitError(ref.Key, ref.Size, r.config.MaxTransportPayload)
	}

	fileType, ok := DetectFileType(ref.Key)
	if !ok {
		return nil, models.NewFormatError(ref.Key, extensionOf(ref.Key), models.SupportedFileTypes)
	}

	data, err := r.store.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		logCtx.Error("Failed to fetch object from store.", zap.Error(err))
		return nil, models.NewReadError(ref.Key, "failed to fetch file from object store", err)
	}

	doc, perr := r.extractor.Extract(data, fileType, ref)
	if perr != nil {
		return nil, perr
	}
	logCtx.Info("File read complete.", zap.String("fileType", string(fileType)), zap.Int("contentLength", len(doc.Text)))
	return doc, nil
}

// DetectFileType maps a key's extension onto the supported set.
func DetectFileType(key string) (models.FileType, bool) {
	candidate := models.FileType(extensionOf(key))
	for _, t := range models.SupportedFileTypes {
		if candidate == t {
			return t, true
		}
	}
	return "", false
}

func extensionOf(key string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
}
