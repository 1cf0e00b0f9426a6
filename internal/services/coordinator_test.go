package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

func newTestCoordinator(store *fakeStore, completer *fakeCompleter, publisher *fakePublisher, recorder Recorder) *Coordinator {
	logger := zap.NewNop()
	reader := NewReader(store, NewExtractor(logger), DefaultReaderConfig(), logger)
	generatorCfg := DefaultGeneratorConfig()
	generatorCfg.Retry = quickRetry(3)
	generator := NewGenerator(completer, generatorCfg, logger)
	persister := NewPersister(store, PersisterConfig{OutputBucket: "specifications", Retry: quickRetry(3)}, logger)
	notifier := NewNotifier(publisher, store, DefaultNotifierConfig("test"), logger)
	return NewCoordinator(reader, generator, persister, notifier, recorder, time.Minute, logger)
}

func TestCoordinatorEndToEndSuccess(t *testing.T) {
	store := newFakeStore()
	store.objects["uploads/uploads/spec.txt"] = []byte("Build a login page with email+password.")
	completer := &fakeCompleter{outputs: []*models.CompletionOutput{validCompletion()}}
	publisher := &fakePublisher{}
	recorder := &fakeRecorder{}

	coordinator := newTestCoordinator(store, completer, publisher, recorder)
	record, err := coordinator.Run(context.Background(), testRef("uploads/spec.txt", 42))
	require.NoError(t, err)
	require.NotNil(t, record)

	// The completion saw the normalized text verbatim.
	assert.Contains(t, completer.lastUserPrompt, "Build a login page with email+password.")

	// The output landed under the dated key grammar.
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2}/spec-\d{8}T\d{6}Z\.md$`, record.OutputKey)
	require.Len(t, store.putCalls, 1)
	assert.Equal(t, record.OutputKey, store.putCalls[0].key)

	// Word count matches a plain split of the generated words.
	assert.Equal(t, countWords(validCompletion().Text), record.WordCount)

	// Exactly one notification, quoting the exact output path.
	require.Len(t, publisher.bodies, 1)
	assert.Contains(t, publisher.bodies[0], record.OutputKey)
	assert.Equal(t, "success", publisher.attrs[0]["notificationType"])

	// Recorder saw the full state walk.
	assert.Equal(t, []string{"GENERATING", "PERSISTING", "NOTIFYING"}, recorder.transitions)
	assert.Equal(t, 1, recorder.finished)
	assert.Nil(t, recorder.finalErr)
}

func TestCoordinatorEndToEndFailure(t *testing.T) {
	store := newFakeStore()
	completer := &fakeCompleter{}
	publisher := &fakePublisher{}
	recorder := &fakeRecorder{}

	coordinator := newTestCoordinator(store, completer, publisher, recorder)
	record, err := coordinator.Run(context.Background(), testRef("uploads/app.exe", 42))
	require.Error(t, err)
	assert.Nil(t, record)

	var perr *models.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.ErrFileRead, perr.Kind)
	assert.Equal(t, "exe", perr.Details["actualFormat"])

	// Downstream stages produced no side effects.
	assert.Zero(t, completer.calls)
	assert.Empty(t, store.putCalls)

	// Exactly one notification, on the failure path.
	require.Len(t, publisher.bodies, 1)
	assert.Contains(t, publisher.bodies[0], `errorType: "file-read"`)
	assert.Equal(t, "failure", publisher.attrs[0]["notificationType"])

	assert.Equal(t, 1, recorder.finished)
	assert.Same(t, perr, recorder.finalErr)
}

func TestCoordinatorStagesForwardErrorUnchanged(t *testing.T) {
	// The envelope rule at stage level: generate and persist hand back the
	// exact inherited error object.
	logger := zap.NewNop()
	completer := &fakeCompleter{}
	store := newFakeStore()
	generator := NewGenerator(completer, DefaultGeneratorConfig(), logger)
	persister := NewPersister(store, PersisterConfig{OutputBucket: "specifications", Retry: quickRetry(3)}, logger)

	inherited := models.NewFormatError("uploads/app.exe", "exe", models.SupportedFileTypes)

	_, afterGenerate := generator.Process(context.Background(), nil, inherited)
	assert.Same(t, inherited, afterGenerate)

	_, afterPersist := persister.Process(context.Background(), nil, afterGenerate)
	assert.Same(t, inherited, afterPersist)

	assert.Zero(t, completer.calls)
	assert.Empty(t, store.putCalls)
}

func TestCoordinatorNotifyFailureSurfacesButReturnsRecord(t *testing.T) {
	store := newFakeStore()
	store.objects["uploads/uploads/spec.txt"] = []byte("Build a login page with email+password.")
	completer := &fakeCompleter{outputs: []*models.CompletionOutput{validCompletion()}}
	publisher := &fakePublisher{err: fmt.Errorf("topic gone")}

	coordinator := newTestCoordinator(store, completer, publisher, &fakeRecorder{})
	record, err := coordinator.Run(context.Background(), testRef("uploads/spec.txt", 42))

	require.Error(t, err)
	assert.NotNil(t, record, "the specification was persisted even though the publish failed")
	assert.Contains(t, err.Error(), "notification failed")
	require.Len(t, store.putCalls, 1)
}

func TestCoordinatorDefaultsRecorderToNoop(t *testing.T) {
	store := newFakeStore()
	store.objects["uploads/uploads/spec.txt"] = []byte("Build a login page with email+password.")
	completer := &fakeCompleter{outputs: []*models.CompletionOutput{validCompletion()}}
	publisher := &fakePublisher{}

	coordinator := newTestCoordinator(store, completer, publisher, nil)
	_, err := coordinator.Run(context.Background(), testRef("uploads/spec.txt", 42))
	require.NoError(t, err)
}
