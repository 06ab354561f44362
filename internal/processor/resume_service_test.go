package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cv-match-go/internal/config"
	"cv-match-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingQueue 记录发布调用的MessageQueue桩
type recordingQueue struct {
	exchange   string
	routingKey string
	payload    interface{}
	failWith   error
}

func (q *recordingQueue) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	return q.failWith
}

func (q *recordingQueue) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	if q.failWith != nil {
		return q.failWith
	}
	q.exchange = exchangeName
	q.routingKey = routingKey
	q.payload = data
	return nil
}

func (q *recordingQueue) EnsureExchange(string, string, bool) error { return nil }
func (q *recordingQueue) EnsureQueue(string, bool) error            { return nil }
func (q *recordingQueue) BindQueue(string, string, string) error    { return nil }
func (q *recordingQueue) Close() error                              { return nil }

func newParsedEventService() *ResumeService {
	cfg := &config.Config{}
	cfg.RabbitMQ.ResumeEventsExchange = "resume_events"
	cfg.RabbitMQ.ParsedRoutingKey = "parsed"
	return &ResumeService{cfg: cfg}
}

func TestPublishParsedEvent(t *testing.T) {
	rs := newParsedEventService()
	queue := &recordingQueue{}

	msg := storage.ResumeParsedMessage{
		SubmissionUUID:    "sub-001",
		TargetJobID:       "job-001",
		ParsedTextPathOSS: "parsed/sub-001.txt",
	}
	require.NoError(t, rs.publishParsedEvent(context.Background(), queue, msg))

	assert.Equal(t, "resume_events", queue.exchange)
	assert.Equal(t, "parsed", queue.routingKey)
	assert.Equal(t, msg, queue.payload)
}

func TestPublishParsedEventFailure(t *testing.T) {
	rs := newParsedEventService()
	queue := &recordingQueue{failWith: fmt.Errorf("connection reset")}

	err := rs.publishParsedEvent(context.Background(), queue, storage.ResumeParsedMessage{
		SubmissionUUID: "sub-002",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishMessageFailed)

	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, "sub-002", pipelineErr.SubmissionUUID)
	assert.Equal(t, "publish", pipelineErr.Op)
}
