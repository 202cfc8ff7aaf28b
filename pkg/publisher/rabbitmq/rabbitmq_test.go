package rabbitmq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnection struct {
	err error
}

func (f *fakeConnection) Channel() (*amqp.Channel, error) {
	return nil, f.err
}

func TestNew_ChannelError_ReturnsError(t *testing.T) {
	conn := &fakeConnection{err: errors.New("dial refused")}

	p, err := New(conn, "outbox", nil)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "open channel")
}

func TestFlush_IsNoOp(t *testing.T) {
	p := &Publisher{mu: make(chan struct{}, 1)}

	err := p.Flush(context.Background())
	assert.NoError(t, err)
}
