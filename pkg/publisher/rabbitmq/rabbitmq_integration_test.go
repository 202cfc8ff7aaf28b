//go:build integration

package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/outboxtx/v2/pkg/publisher"
)

type amqpConnAdapter struct {
	conn *amqp.Connection
}

func (a *amqpConnAdapter) Channel() (*amqp.Channel, error) {
	return a.conn.Channel()
}

func TestPublisher_Publish_RoundTripsThroughRealBroker(t *testing.T) {
	ctx := context.Background()

	container, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)

	defer func() {
		_ = container.Terminate(ctx)
	}()

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	rawConn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer rawConn.Close()

	setupCh, err := rawConn.Channel()
	require.NoError(t, err)

	const queue = "outboxtx.integration.test"

	_, err = setupCh.QueueDeclare(queue, true, true, false, false, nil)
	require.NoError(t, err)

	deliveries, err := setupCh.Consume(queue, "", true, false, false, false, nil)
	require.NoError(t, err)

	pub, err := New(&amqpConnAdapter{conn: rawConn}, "", nil)
	require.NoError(t, err)

	err = pub.Publish(ctx, publisher.Message{
		Topic: queue,
		Data:  []byte(`{"hello":"world"}`),
	})
	require.NoError(t, err)

	select {
	case msg := <-deliveries:
		require.Equal(t, `{"hello":"world"}`, string(msg.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
