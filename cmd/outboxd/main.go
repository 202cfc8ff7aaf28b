// Command outboxd runs the standalone outbox sender: it scans a Postgres
// outbox table, leases and publishes rows to RabbitMQ, and reconciles the
// outcome. It carries no state-transaction surface of its own — that is a
// library concern (pkg/runner) embedded by the services that write the
// outbox rows this daemon drains.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/LerianStudio/outboxtx/v2/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.InitSenderService(ctx)
	if err != nil {
		panic(err)
	}

	svc.Run(ctx)
}
