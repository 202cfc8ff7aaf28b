package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LerianStudio/outboxtx/v2/internal/obslog"
	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/mretry"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox/postgres"
	"github.com/LerianStudio/outboxtx/v2/pkg/publisher"
	"github.com/LerianStudio/outboxtx/v2/pkg/publisher/rabbitmq"
	"github.com/LerianStudio/outboxtx/v2/pkg/runner"
	"github.com/LerianStudio/outboxtx/v2/pkg/sender"
)

// amqpConnection adapts *amqp.Connection to rabbitmq.Connection.
type amqpConnection struct{ conn *amqp.Connection }

func (a *amqpConnection) Channel() (*amqp.Channel, error) { return a.conn.Channel() }

// NewLogger builds the service-wide production zap logger tagged with the
// service name and cfg.EnvName, falling back to the zero-cost NoneLogger on
// failure rather than letting a logging misconfiguration crash the daemon.
// cfg.LogLevel is not applied; the production logger's level is used.
func NewLogger(cfg *Config) obslog.Logger {
	logger, err := obslog.NewProductionZapLogger()
	if err != nil {
		return obslog.NoneLogger{}
	}

	return logger.WithFields("service", ApplicationName, "env", cfg.EnvName)
}

// NewPostgresDB opens the primary Postgres connection pool the SQL runner
// and sender store share.
func NewPostgresDB(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.postgresDSN())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}

	if cfg.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConnections)
	}

	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}

	return db, nil
}

// NewMongoClient connects to the document backing.
func NewMongoClient(ctx context.Context, cfg *Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.mongoURI()))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
	}

	return client, nil
}

// NewRabbitMQPublisher dials the broker and wraps the channel in the
// confirm-mode publisher adapter.
func NewRabbitMQPublisher(cfg *Config, logger obslog.Logger) (*rabbitmq.Publisher, error) {
	conn, err := amqp.Dial(cfg.rabbitMQURL())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dial rabbitmq: %w", err)
	}

	return rabbitmq.New(&amqpConnection{conn: conn}, cfg.RabbitMQExchange, logger)
}

// senderConfig translates the flat env config into a sender.Config.
func senderConfig(cfg *Config) sender.Config {
	sc := sender.DefaultConfig()

	if cfg.OutboxBatchSize > 0 {
		sc.BatchSize = cfg.OutboxBatchSize
	}

	sc.PollingInterval = cfg.pollingInterval()
	sc.LeaseDuration = cfg.leaseDuration()

	if cfg.OutboxMaxPublishConcurrency > 0 {
		sc.MaxPublishConcurrency = cfg.OutboxMaxPublishConcurrency
	}

	if cfg.OutboxShardCount > 0 {
		sc.Shard = &outbox.ShardPolicy{
			Column:     "shard",
			Count:      cfg.OutboxShardCount,
			RoundRobin: cfg.OutboxShardRoundRobin,
		}
	}

	sc.RetryBackoff = mretry.DefaultMetadataOutboxConfig()

	return sc
}

// NewSender wires a Sender draining cfg's outbox table through pub,
// with entity-metadata-sync bookkeeping against the same Postgres connection.
func NewSender(db *sql.DB, pub publisher.Publisher, cfg *Config, logger obslog.Logger) *sender.Sender {
	tableName := cfg.OutboxTableName
	if tableName == "" {
		tableName = "outbox"
	}

	store := &postgres.SenderStore{DB: db, TableName: tableName}
	repo := &postgres.OutboxPostgreSQLRepository{DB: db, TableName: tableName}

	return sender.New(store, pub, repo, senderConfig(cfg), logger)
}

// NewSQLRunner wires the SQL transaction runner against db, staging events
// into cfg's outbox table through the same connection the caller's
// transaction runs in. registry must already carry the caller's entity
// definitions — this package owns infrastructure wiring only, not domain
// entity shapes. sndr may be nil when no Sender shares this process (e.g.
// the writer and the sender daemon are deployed separately); when non-nil,
// the runner wakes it, fire-and-forget, after every commit that staged events.
func NewSQLRunner(db *sql.DB, registry *entityreg.Registry, sndr *sender.Sender, cfg *Config, logger obslog.Logger) *runner.SQLRunner {
	tableName := cfg.OutboxTableName
	if tableName == "" {
		tableName = "outbox"
	}

	writer := &postgres.OutboxPostgreSQLRepository{DB: db, TableName: tableName}

	r := runner.NewSQLRunner(db, registry, writer, mretry.DefaultMetadataOutboxConfig(), logger)

	if sndr != nil {
		r = r.WithWake(sndr.Wake)
	}

	return r
}

// NewDocumentRunner wires the document transaction runner against a Mongo
// client and cfg's database name, publishing staged events through pub.
func NewDocumentRunner(client *mongo.Client, pub publisher.Publisher, cfg *Config, logger obslog.Logger) *runner.DocumentRunner {
	return runner.NewDocumentRunner(client, cfg.MongoDBName, pub, logger)
}

// Service is the wired sender daemon: cmd/outboxd's entire surface.
type Service struct {
	Sender *sender.Sender
	Logger obslog.Logger

	db     *sql.DB
	conn   *rabbitmq.Publisher
}

// InitSenderService loads Config from the environment and wires a Service
// ready to Run.
func InitSenderService(ctx context.Context) (*Service, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(cfg)

	db, err := NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}

	pub, err := NewRabbitMQPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := NewSender(db, pub, cfg, logger)

	return &Service{Sender: s, Logger: logger, db: db, conn: pub}, nil
}

// Run blocks, draining the outbox until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) {
	svc.Logger.Info("outbox sender starting")
	svc.Sender.Run(ctx)
	svc.Logger.Info("outbox sender stopped")

	_ = svc.db.Close()
	_ = svc.conn.Flush(ctx)
}
