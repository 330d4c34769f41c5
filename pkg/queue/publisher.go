package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher enqueues sync jobs on a stream
type Publisher struct {
	streams *redis.Streams
	stream  string
}

// NewPublisher creates a publisher for stream, defaulting to DefaultStream
func NewPublisher(streams *redis.Streams, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{streams: streams, stream: stream}
}

// Enqueue publishes a sync job for integration and returns the job id.
// The current trace context travels with the job so the worker's pass joins the same trace.
func (p *Publisher) Enqueue(ctx context.Context, integration *models.Integration, trigger models.SyncTrigger) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Publisher.Enqueue")
	defer span.End()

	job := &redis.JobMessage{
		ID:            uuid.New().String(),
		WorkspaceID:   integration.WorkspaceID.String(),
		IntegrationID: integration.ID.String(),
		Provider:      string(integration.Provider),
		Trigger:       string(trigger),
		TraceParent:   tracing.GetTraceParent(ctx),
		TraceState:    tracing.GetTraceState(ctx),
		CreatedAt:     time.Now().UTC(),
	}

	if _, err := p.streams.Publish(ctx, p.stream, job); err != nil {
		return "", err
	}
	return job.ID, nil
}
