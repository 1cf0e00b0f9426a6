package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mlewis7127/specflow/internal/models"
)

// fakeStore is an in-memory ObjectGetter/ObjectPutter/URLSigner.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	getErr  error
	putErr  error
	signErr error

	getCalls  int
	putCalls  []putCall
	signCalls int
}

type putCall struct {
	bucket      string
	key         string
	data        []byte
	contentType string
	metadata    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls = append(s.putCalls, putCall{bucket: bucket, key: key, data: data, contentType: contentType, metadata: metadata})
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *fakeStore) SignedURL(bucket, key string, ttl time.Duration, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signCalls++
	if s.signErr != nil {
		return "", s.signErr
	}
	return fmt.Sprintf("https://signed.example.com/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

// fakeCompleter returns scripted completion outputs or errors, one per call.
type fakeCompleter struct {
	outputs []*models.CompletionOutput
	errs    []error
	calls   int

	lastSystemPrompt string
	lastUserPrompt   string
	lastMaxTokens    int
	lastTemperature  float32
}

func (c *fakeCompleter) Complete(_ context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (*models.CompletionOutput, error) {
	i := c.calls
	c.calls++
	c.lastSystemPrompt = systemPrompt
	c.lastUserPrompt = userPrompt
	c.lastMaxTokens = maxTokens
	c.lastTemperature = temperature
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.outputs) {
		return c.outputs[i], nil
	}
	if len(c.outputs) > 0 {
		return c.outputs[len(c.outputs)-1], nil
	}
	return nil, fmt.Errorf("fakeCompleter: no scripted output for call %d", i)
}

// fakePublisher records published notifications.
type fakePublisher struct {
	err      error
	subjects []string
	bodies   []string
	attrs    []map[string]string
}

func (p *fakePublisher) Publish(_ context.Context, subject, body string, attributes map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.subjects = append(p.subjects, subject)
	p.bodies = append(p.bodies, body)
	p.attrs = append(p.attrs, attributes)
	return fmt.Sprintf("msg-%d", len(p.bodies)), nil
}

// fakeRecorder records state transitions.
type fakeRecorder struct {
	started     []string
	transitions []string
	finished    int
	finalErr    *models.ProcessingError
}

func (r *fakeRecorder) Start(_ context.Context, processingID string, _ models.FileReference) error {
	r.started = append(r.started, processingID)
	return nil
}

func (r *fakeRecorder) Transition(_ context.Context, _ string, state string) error {
	r.transitions = append(r.transitions, state)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, _ string, _ *models.SpecificationRecord, perr *models.ProcessingError) error {
	r.finished++
	r.finalErr = perr
	return nil
}

// quickRetry keeps test retries fast while preserving attempt counts.
func quickRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialInterval: time.Millisecond, BackoffRate: 2.0}
}
