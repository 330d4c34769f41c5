package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultDLQStream is where sync jobs land after exhausting their retries
	DefaultDLQStream = "fern:sync:dlq"

	// DLQMaxLen is the approximate cap on the dead letter stream
	DLQMaxLen = 10000
)

// ErrDLQEntryNotFound is returned when an entry id is not on the dead letter stream
var ErrDLQEntryNotFound = errors.New("dead letter entry not found")

// DLQEntry is a dead-lettered sync job
type DLQEntry struct {
	// ID is the stream entry id, assigned by redis
	ID            string      `json:"-"`
	WorkspaceID   string      `json:"workspace_id"`
	IntegrationID string      `json:"integration_id"`
	OriginalJob   *JobMessage `json:"original_job"`
	ErrorMessage  string      `json:"error_message"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	TraceID       string      `json:"trace_id,omitempty"`
}

// DeadLetterQueue keeps sync jobs the workers gave up on so an operator can inspect or replay them
type DeadLetterQueue struct {
	client *Client
	stream string
}

func NewDeadLetterQueue(client *Client, stream string) *DeadLetterQueue {
	if stream == "" {
		stream = DefaultDLQStream
	}
	return &DeadLetterQueue{client: client, stream: stream}
}

// Add appends entry and returns its stream id
func (d *DeadLetterQueue) Add(ctx context.Context, entry *DLQEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "DeadLetterQueue.Add")
	defer span.End()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.TraceID = tracing.GetTraceID(ctx)

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	id, err := d.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add DLQ entry: %w", err)
	}
	entry.ID = id

	d.client.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": entry.IntegrationID,
		"attempts":       entry.Attempts,
		"dlq_id":         id,
	}).Warnf("Sync job moved to dead letter queue: %s", entry.ErrorMessage)
	return id, nil
}

// List returns up to count entries, newest first
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	messages, err := d.client.rdb.XRevRangeN(ctx, d.stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	return d.decode(ctx, messages), nil
}

// Get loads one entry by stream id
func (d *DeadLetterQueue) Get(ctx context.Context, id string) (*DLQEntry, error) {
	messages, err := d.client.rdb.XRange(ctx, d.stream, id, id).Result()
	if err != nil {
		return nil, err
	}
	entries := d.decode(ctx, messages)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDLQEntryNotFound, id)
	}
	return &entries[0], nil
}

// Replay republishes the original job of entry id onto stream with a fresh attempt count,
// then removes the entry. Returns the new job stream id.
func (d *DeadLetterQueue) Replay(ctx context.Context, id string, streams *Streams, stream string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "DeadLetterQueue.Replay")
	defer span.End()

	entry, err := d.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if entry.OriginalJob == nil {
		return "", fmt.Errorf("dead letter entry %s has no job to replay", id)
	}

	job := *entry.OriginalJob
	job.Attempts = 0
	job.CreatedAt = time.Now().UTC()
	messageID, err := streams.Publish(ctx, stream, &job)
	if err != nil {
		return "", err
	}

	if err := d.Delete(ctx, id); err != nil {
		return messageID, err
	}
	d.client.logger.WithContext(ctx).Infof("Replayed dead letter %s for integration %s as %s", id, entry.IntegrationID, messageID)
	return messageID, nil
}

// Delete drops entry id
func (d *DeadLetterQueue) Delete(ctx context.Context, id string) error {
	n, err := d.client.rdb.XDel(ctx, d.stream, id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDLQEntryNotFound, id)
	}
	return nil
}

func (d *DeadLetterQueue) decode(ctx context.Context, messages []redis.XMessage) []DLQEntry {
	entries := make([]DLQEntry, 0, len(messages))
	for _, msg := range messages {
		raw, _ := msg.Values[payloadField].(string)
		var entry DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			d.client.logger.WithContext(ctx).WithError(err).Warnf("Skipping undecodable dead letter %s", msg.ID)
			continue
		}
		entry.ID = msg.ID
		entries = append(entries, entry)
	}
	return entries
}
