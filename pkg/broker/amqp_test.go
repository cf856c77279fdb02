package broker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	declareErr error
	published  []amqp.Publishing
	keys       []string
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	if durable {
		f.declared = append(f.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "timetable.generate")
	require.NoError(t, err)
	assert.Equal(t, []string{"timetable.generate"}, ch.declared)

	require.NoError(t, p.Publish(context.Background(), "snap-1", []byte(`{"version":1}`)))
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "/timetable.generate", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "snap-1", msg.MessageId)
	assert.JSONEq(t, `{"version":1}`, string(msg.Body))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNewPublisherClosesChannelOnDeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := NewPublisher(ch, "q")
	require.Error(t, err)
	assert.True(t, ch.closed)
}
