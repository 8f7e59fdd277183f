package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatch(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "match-results")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "run-1", Value: map[string]int{"page": 1}, Headers: map[string]string{"page": "1"}},
		{Key: "run-1", Value: map[string]int{"page": 2}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"page":1}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "page", w.msgs[0].Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishBatchEmpty(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	p := newProducer(w, "t")
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestPublishErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newProducer(w, "t")
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorContains(t, err, "broker down")

	err = newProducer(&recordingWriter{}, "t").Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	assert.ErrorContains(t, err, "marshaling")
}
