package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestPublish(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w)

	require.NoError(t, p.Publish(context.Background(), "order.created.7", map[string]int{"order_id": 7}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order.created.7", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"order_id":7}`, string(w.msgs[0].Value))

	w.err = errors.New("leader not available")
	assert.Error(t, p.Publish(context.Background(), "order.created.8", nil))

	assert.Error(t, p.Publish(context.Background(), "bad", func() {}))
}
