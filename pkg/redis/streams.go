package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// payloadField holds the JSON encoded JobMessage. The other fields are copies for redis-cli readers.
const payloadField = "data"

// StreamMessage is one delivered stream entry. Job is nil when the payload could not be decoded.
type StreamMessage struct {
	ID     string
	Stream string
	Job    *JobMessage
}

// JobMessage asks a worker to run one sync pass for an integration
type JobMessage struct {
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspace_id"`
	IntegrationID string    `json:"integration_id"`
	Provider      string    `json:"provider"`
	Trigger       string    `json:"trigger"`
	TraceParent   string    `json:"traceparent,omitempty"`
	TraceState    string    `json:"tracestate,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
}

// Streams runs the consumer-group operations behind the sync job queue
type Streams struct {
	client *Client
	maxLen int64
}

func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

// SetMaxLen caps every stream written through s at roughly n entries. Zero disables trimming.
func (s *Streams) SetMaxLen(n int64) {
	s.maxLen = n
}

// Publish appends job to stream and returns the stream entry id
func (s *Streams) Publish(ctx context.Context, stream string, job *JobMessage) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"job_id":         job.ID,
			"integration_id": job.IntegrationID,
			"trigger":        job.Trigger,
			payloadField:     string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.rdb.XAdd(ctx, args).Result()
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to stream %s", stream)
		return "", err
	}

	s.client.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"message_id":     id,
	}).Debugf("Published sync job to stream %s", stream)
	return id, nil
}

// CreateConsumerGroup creates group on stream, creating the stream too. An existing group is fine.
func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads up to count entries never delivered to group. block < 0 returns immediately.
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, st := range streams {
		messages = append(messages, s.decode(ctx, st.Stream, st.Messages)...)
	}
	return messages, nil
}

func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

// Pending lists entries delivered to group but not acknowledged yet, oldest first
func (s *Streams) Pending(ctx context.Context, stream, group string, count int64) ([]redis.XPendingExt, error) {
	return s.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
}

// Claim moves the given pending entries to consumer if they have been idle for minIdle
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	claimed, err := s.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, stream, claimed), nil
}

// Get loads a single entry by id. It returns nil when the entry was trimmed.
func (s *Streams) Get(ctx context.Context, stream, id string) (*StreamMessage, error) {
	entries, err := s.client.rdb.XRange(ctx, stream, id, id).Result()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &s.decode(ctx, stream, entries)[0], nil
}

// Len returns the number of entries in stream
func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}

func (s *Streams) decode(ctx context.Context, stream string, entries []redis.XMessage) []StreamMessage {
	messages := make([]StreamMessage, 0, len(entries))
	for _, entry := range entries {
		msg := StreamMessage{ID: entry.ID, Stream: stream}

		raw, _ := entry.Values[payloadField].(string)
		var job JobMessage
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.client.logger.WithContext(ctx).WithError(err).Warnf("Undecodable sync job in %s: %s", stream, entry.ID)
		} else {
			msg.Job = &job
		}
		messages = append(messages, msg)
	}
	return messages
}
