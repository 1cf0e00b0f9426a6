package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mlewis7127/specflow/internal/models"
)

// FirestoreRecorder persists per-execution state transitions as documents
// keyed by processing ID. It is an optional side channel: the coordinator
// treats recorder failures as non-fatal.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRecorder creates a recorder writing to the given collection.
func NewFirestoreRecorder(ctx context.Context, projectID, collection string) (*FirestoreRecorder, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore recorder")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreRecorder{client: client, collection: collection}, nil
}

// Start creates the execution record in its initial state.
func (r *FirestoreRecorder) Start(ctx context.Context, processingID string, ref models.FileReference) error {
	now := time.Now().UTC()
	record := models.ExecutionRecord{
		ProcessingID: processingID,
		OriginalFile: ref.Key,
		State:        "READING",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.client.Collection(r.collection).Doc(processingID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}
	return nil
}

// Transition updates the record's state.
func (r *FirestoreRecorder) Transition(ctx context.Context, processingID, state string) error {
	_, err := r.client.Collection(r.collection).Doc(processingID).Update(ctx, []firestore.Update{
		{Path: "state", Value: state},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update execution state: %w", err)
	}
	return nil
}

// Finish marks the record done or failed, with the output key or the
// rendered error for traceability.
func (r *FirestoreRecorder) Finish(ctx context.Context, processingID string, record *models.SpecificationRecord, perr *models.ProcessingError) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if perr != nil {
		updates = append(updates,
			firestore.Update{Path: "state", Value: "FAILED"},
			firestore.Update{Path: "errorDetails", Value: perr.Error()},
		)
	} else {
		updates = append(updates,
			firestore.Update{Path: "state", Value: "DONE"},
			firestore.Update{Path: "outputKey", Value: record.OutputKey},
		)
	}
	if _, err := r.client.Collection(r.collection).Doc(processingID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to finalize execution record: %w", err)
	}
	return nil
}

func (r *FirestoreRecorder) Close() error {
	return r.client.Close()
}
