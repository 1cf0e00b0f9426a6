package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/gcp"
	"github.com/mlewis7127/specflow/internal/models"
)

// State names one step of the in-process pipeline state machine.
type State string

const (
	StateReading    State = "READING"
	StateGenerating State = "GENERATING"
	StatePersisting State = "PERSISTING"
	StateNotifying  State = "NOTIFYING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// DefaultExecutionTimeout bounds one end-to-end execution, a small
// multiple of the per-stage timeout sum.
const DefaultExecutionTimeout = 9 * time.Minute

// Recorder is an optional execution-tracking side channel. The coordinator
// treats every recorder failure as non-fatal, so the pipeline runs
// identically with the no-op implementation.
type Recorder interface {
	Start(ctx context.Context, processingID string, ref models.FileReference) error
	Transition(ctx context.Context, processingID, state string) error
	Finish(ctx context.Context, processingID string, record *models.SpecificationRecord, perr *models.ProcessingError) error
}

// NoopRecorder is the default Recorder.
type NoopRecorder struct{}

func (NoopRecorder) Start(context.Context, string, models.FileReference) error {
	return nil
}
func (NoopRecorder) Transition(context.Context, string, string) error { return nil }
func (NoopRecorder) Finish(context.Context, string, *models.SpecificationRecord, *models.ProcessingError) error {
	return nil
}

// Coordinator drives one execution through the Reading → Generating →
// Persisting → Notifying chain. Any stage failure routes straight to the
// notify stage's failure rendering; every execution ends in exactly one
// notification.
type Coordinator struct {
	reader    *Reader
	generator *Generator
	persister *Persister
	notifier  *Notifier
	recorder  Recorder
	timeout   time.Duration
	logger    *zap.Logger
}

func NewCoordinator(reader *Reader, generator *Generator, persister *Persister, notifier *Notifier, recorder Recorder, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	return &Coordinator{
		reader:    reader,
		generator: generator,
		persister: persister,
		notifier:  notifier,
		recorder:  recorder,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run processes one uploaded file to completion. On pipeline failure the
// returned error is the *models.ProcessingError that was notified; a
// publish failure after a successful pipeline returns the record alongside
// the publish error.
func (c *Coordinator) Run(ctx context.Context, ref models.FileReference) (*models.SpecificationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	executionID := uuid.New().String()
	logCtx := c.logger.With(zap.String("executionId", executionID), zap.String("key", ref.Key))
	logCtx.Info("Starting pipeline execution.", zap.Int64("size", ref.Size))

	c.record(ctx, logCtx, func(rctx context.Context) error {
		return c.recorder.Start(rctx, executionID, ref)
	})

	var (
		doc    *models.NormalizedDocument
		result *models.GenerationResult
		record *models.SpecificationRecord
		perr   *models.ProcessingError
	)

	state := StateReading
	for state != StateNotifying {
		switch state {
		case StateReading:
			doc, perr = c.reader.Process(ctx, ref)
			state = c.advance(ctx, logCtx, executionID, StateGenerating, perr)
		case StateGenerating:
			result, perr = c.generator.Process(ctx, doc, perr)
			state = c.advance(ctx, logCtx, executionID, StatePersisting, perr)
		case StatePersisting:
			record, perr = c.persister.Process(ctx, result, perr)
			state = c.advance(ctx, logCtx, executionID, StateNotifying, perr)
		}
	}

	_, notifyErr := c.notifier.Process(ctx, record, perr, executionID)

	c.record(ctx, logCtx, func(rctx context.Context) error {
		return c.recorder.Finish(rctx, executionID, record, perr)
	})

	if perr != nil {
		logCtx.Error("Pipeline execution failed.",
			zap.String("finalState", string(StateFailed)),
			zap.String("errorType", string(perr.Kind)), zap.Error(perr))
		return nil, perr
	}
	if notifyErr != nil {
		logCtx.Warn("Pipeline succeeded but notification failed.", zap.Error(notifyErr))
		return record, fmt.Errorf("execution %s completed but notification failed: %w", executionID, notifyErr)
	}
	logCtx.Info("Pipeline execution complete.",
		zap.String("finalState", string(StateDone)),
		zap.String("outputKey", record.OutputKey))
	return record, nil
}

// advance picks the next state: the scheduled successor on success, or a
// jump to the notify stage on failure.
func (c *Coordinator) advance(ctx context.Context, logCtx *zap.Logger, executionID string, next State, perr *models.ProcessingError) State {
	if perr != nil {
		next = StateNotifying
	}
	c.record(ctx, logCtx, func(rctx context.Context) error {
		return c.recorder.Transition(rctx, executionID, string(next))
	})
	return next
}

// record runs one recorder call, keeping it best-effort. If the execution
// context is already dead, a short detached context lets the final state
// still be written.
func (c *Coordinator) record(ctx context.Context, logCtx *zap.Logger, fn func(context.Context) error) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		logCtx.Warn("Execution recorder call failed.", zap.Error(err))
	}
}

// PipelineConfig is the environment-driven configuration for a production
// pipeline instance.
type PipelineConfig struct {
	ProjectID          string
	VertexAIRegion     string
	GenerationModel    string
	OutputBucket       string
	NotificationsTopic string
	Environment        string
	KMSKeyName         string
	RecordCollection   string
}

// LoadPipelineConfig reads and validates the pipeline environment.
func LoadPipelineConfig() (*PipelineConfig, error) {
	projectID := gcp.GetEnv("GCP_PROJECT", "")
	if projectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT environment variable must be set")
	}
	outputBucket := gcp.GetEnv("SPECIFICATIONS_BUCKET", "")
	if outputBucket == "" {
		return nil, fmt.Errorf("SPECIFICATIONS_BUCKET environment variable must be set")
	}
	topic := gcp.GetEnv("NOTIFICATIONS_TOPIC", "")
	if topic == "" {
		return nil, fmt.Errorf("NOTIFICATIONS_TOPIC environment variable must be set")
	}

	return &PipelineConfig{
		ProjectID:          projectID,
		VertexAIRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		GenerationModel:    gcp.GetEnv("GENERATION_MODEL", "gemini-1.5-pro"),
		OutputBucket:       outputBucket,
		NotificationsTopic: topic,
		Environment:        gcp.GetEnv("ENVIRONMENT", "dev"),
		KMSKeyName:         gcp.GetEnv("OUTPUT_KMS_KEY", ""),
		RecordCollection:   gcp.GetEnv("EXECUTIONS_COLLECTION", ""),
	}, nil
}

// NewCoordinatorFromEnv wires a production coordinator: GCS object store,
// Vertex AI completer, Pub/Sub notifier, and, when a collection is
// configured, the Firestore execution recorder.
func NewCoordinatorFromEnv(ctx context.Context, logger *zap.Logger) (*Coordinator, error) {
	config, err := LoadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	store.KMSKeyName = config.KMSKeyName

	completer, err := gcp.NewVertexCompleter(ctx, config.ProjectID, config.VertexAIRegion, config.GenerationModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex completer: %w", err)
	}

	notifierClient, err := gcp.NewPubSubNotifier(ctx, config.ProjectID, config.NotificationsTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub notifier: %w", err)
	}

	var recorder Recorder = NoopRecorder{}
	if config.RecordCollection != "" {
		fsRecorder, err := gcp.NewFirestoreRecorder(ctx, config.ProjectID, config.RecordCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore recorder: %w", err)
		}
		recorder = fsRecorder
	}

	reader := NewReader(store, NewExtractor(logger), DefaultReaderConfig(), logger)
	generator := NewGenerator(completer, DefaultGeneratorConfig(), logger)
	persister := NewPersister(store, PersisterConfig{OutputBucket: config.OutputBucket, Retry: DefaultRetryConfig()}, logger)
	notifier := NewNotifier(notifierClient, store, DefaultNotifierConfig(config.Environment), logger)

	return NewCoordinator(reader, generator, persister, notifier, recorder, DefaultExecutionTimeout, logger), nil
}
