// Package bootstrap wires the packages under pkg/ into a runnable service,
// following the same env-var Config / InitXxx / Run shape as
// components/*/internal/bootstrap in the wider codebase this module grew
// out of.
package bootstrap

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// ApplicationName identifies this service in logs and OTel resource attributes.
const ApplicationName = "outboxd"

// Config is the flat environment-variable configuration for the sender
// daemon and for any process embedding the SQL/Document runners. Fields are
// read with loadConfigFromEnv, which walks the `env:"..."` struct tags —
// there is no fetchable env-to-struct library anywhere in this codebase's
// dependency graph, so this is carried on reflection over os.Getenv rather
// than left unconfigurable.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`

	PrimaryDBHost      string `env:"DB_HOST"`
	PrimaryDBUser      string `env:"DB_USER"`
	PrimaryDBPassword  string `env:"DB_PASSWORD"`
	PrimaryDBName      string `env:"DB_NAME"`
	PrimaryDBPort      string `env:"DB_PORT"`
	MaxOpenConnections int    `env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConnections int    `env:"DB_MAX_IDLE_CONNS"`
	OutboxTableName    string `env:"OUTBOX_TABLE_NAME"`

	MongoURI    string `env:"MONGO_URI"`
	MongoDBName string `env:"MONGO_NAME"`

	RabbitURI          string `env:"RABBITMQ_URI"`
	RabbitMQHost       string `env:"RABBITMQ_HOST"`
	RabbitMQPortAMQP   string `env:"RABBITMQ_PORT_AMQP"`
	RabbitMQUser       string `env:"RABBITMQ_DEFAULT_USER"`
	RabbitMQPass       string `env:"RABBITMQ_DEFAULT_PASS"`
	RabbitMQExchange   string `env:"RABBITMQ_EXCHANGE"`

	OutboxBatchSize             int `env:"OUTBOX_BATCH_SIZE"`
	OutboxPollingIntervalMillis int `env:"OUTBOX_POLLING_INTERVAL_MS"`
	OutboxLeaseDurationSeconds  int `env:"OUTBOX_LEASE_DURATION_SECONDS"`
	OutboxMaxPublishConcurrency int `env:"OUTBOX_MAX_PUBLISH_CONCURRENCY"`
	OutboxShardCount            int `env:"OUTBOX_SHARD_COUNT"`
	OutboxShardRoundRobin       bool `env:"OUTBOX_SHARD_ROUND_ROBIN"`

	OtelServiceName         string `env:"OTEL_RESOURCE_SERVICE_NAME"`
	OtelServiceVersion      string `env:"OTEL_RESOURCE_SERVICE_VERSION"`
	OtelDeploymentEnv       string `env:"OTEL_RESOURCE_DEPLOYMENT_ENVIRONMENT"`
	OtelColExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry         bool   `env:"ENABLE_TELEMETRY"`
}

// LoadConfigFromEnv populates a Config from the process environment.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := loadConfigFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfigFromEnv walks cfg's struct tags and assigns os.Getenv values,
// converting to the field's underlying kind. Unset variables leave the
// field's zero value in place.
func loadConfigFromEnv(cfg any) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		key, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		raw, present := os.LookupEnv(key)
		if !present {
			continue
		}

		fv := v.Field(i)

		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("bootstrap: env %s: %w", key, err)
			}

			fv.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("bootstrap: env %s: %w", key, err)
			}

			fv.SetBool(b)
		default:
			return fmt.Errorf("bootstrap: env %s: unsupported field kind %s", key, fv.Kind())
		}
	}

	return nil
}

func (c *Config) pollingInterval() time.Duration {
	if c.OutboxPollingIntervalMillis <= 0 {
		return 1000 * time.Millisecond
	}

	return time.Duration(c.OutboxPollingIntervalMillis) * time.Millisecond
}

func (c *Config) leaseDuration() time.Duration {
	if c.OutboxLeaseDurationSeconds <= 0 {
		return 60 * time.Second
	}

	return time.Duration(c.OutboxLeaseDurationSeconds) * time.Second
}

func (c *Config) postgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PrimaryDBHost, c.PrimaryDBUser, c.PrimaryDBPassword, c.PrimaryDBName, c.PrimaryDBPort)
}

func (c *Config) mongoURI() string {
	if c.MongoURI != "" {
		return c.MongoURI
	}

	return "mongodb://localhost:27017"
}

func (c *Config) rabbitMQURL() string {
	if c.RabbitURI != "" {
		return c.RabbitURI
	}

	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPass, c.RabbitMQHost, c.RabbitMQPortAMQP)
}
