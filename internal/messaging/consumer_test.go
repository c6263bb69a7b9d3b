package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"scene-server/internal/memory"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

type fakePutter struct {
	got []memory.PutRequest
	err error
}

func (f *fakePutter) Put(_ context.Context, req memory.PutRequest) (memory.PutResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return memory.PutResult{}, f.err
	}
	return memory.PutResult{Profiles: len(req.Profiles), Events: len(req.Events)}, nil
}

func delivery(t *testing.T, task MemoryIndexTask, redelivered bool) (amqp.Delivery, *ackRecorder) {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	ack := &ackRecorder{}
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}, ack
}

func testTask() MemoryIndexTask {
	return MemoryIndexTask{
		TaskID: "t1",
		Request: memory.PutRequest{
			Events: []memory.EventInput{{ChatID: "chat-1", Content: "they met", Importance: 0.5}},
		},
		CreatedAt: time.Now(),
	}
}

func TestHandleDelivery_AcksProcessedTask(t *testing.T) {
	putter := &fakePutter{}
	c := NewMemoryIndexConsumer(nil, putter, ConsumerConfig{}, zap.NewNop())

	msg, ack := delivery(t, testTask(), false)
	c.handleDelivery(context.Background(), msg)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Len(t, putter.got, 1)
	assert.Equal(t, "they met", putter.got[0].Events[0].Content)
}

func TestHandleDelivery_MalformedGoesToDLQ(t *testing.T) {
	putter := &fakePutter{}
	c := NewMemoryIndexConsumer(nil, putter, ConsumerConfig{}, zap.NewNop())

	ack := &ackRecorder{}
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Empty(t, putter.got)
}

func TestHandleDelivery_RequeuesOnceThenDeadLetters(t *testing.T) {
	putter := &fakePutter{err: errors.New("db down")}
	c := NewMemoryIndexConsumer(nil, putter, ConsumerConfig{}, zap.NewNop())

	first, ack1 := delivery(t, testTask(), false)
	c.handleDelivery(context.Background(), first)
	assert.True(t, ack1.nacked)
	assert.True(t, ack1.requeue)

	second, ack2 := delivery(t, testTask(), true)
	c.handleDelivery(context.Background(), second)
	assert.True(t, ack2.nacked)
	assert.False(t, ack2.requeue)
}

func TestTopologyNames(t *testing.T) {
	assert.Equal(t, "memory_index_tasks_dlx", Topology{}.DLX())
	assert.Equal(t, "custom_dlq", Topology{Queue: "custom"}.DLQ())
}
