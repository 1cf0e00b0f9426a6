package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
	"github.com/mlewis7127/specflow/internal/services"
)

var (
	coordinatorInstance *services.Coordinator
	logger              *zap.Logger
	once                sync.Once
	initErr             error
)

func init() {
	// Register the CloudEvent function. The framework routes the GCS
	// object-finalize event here.
	functions.CloudEvent("GenerateSpecification", generateSpecification)
}

// main is required by the Go Functions Framework.
func main() {}

// gcsEvent is the data payload of a storage object-finalize event. GCS
// serializes numeric object fields as strings.
type gcsEvent struct {
	Bucket      string    `json:"bucket"`
	Name        string    `json:"name"`
	Size        string    `json:"size"`
	ETag        string    `json:"etag"`
	TimeCreated time.Time `json:"timeCreated"`
}

// generateSpecification is the Cloud Function entry point: it turns the
// upload event into a FileReference and runs one pipeline execution.
func generateSpecification(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		logger, initErr = zap.NewProduction()
		if initErr != nil {
			return
		}
		coordinatorInstance, initErr = services.NewCoordinatorFromEnv(context.Background(), logger)
	})
	if initErr != nil {
		return fmt.Errorf("pipeline initialization failed: %w", initErr)
	}

	var event gcsEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		logger.Error("Failed to unmarshal event data.", zap.Error(err), zap.String("data", string(e.Data())))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	size, err := strconv.ParseInt(event.Size, 10, 64)
	if err != nil {
		logger.Error("Event carries a non-numeric object size.", zap.String("size", event.Size), zap.Error(err))
		return fmt.Errorf("invalid object size %q: %w", event.Size, err)
	}

	ref := models.FileReference{
		Bucket:    event.Bucket,
		Key:       event.Name,
		Size:      size,
		ETag:      event.ETag,
		EventTime: event.TimeCreated,
	}

	// Errors are logged with context inside the coordinator; returning one
	// marks the invocation failed.
	_, err = coordinatorInstance.Run(ctx, ref)
	return err
}
