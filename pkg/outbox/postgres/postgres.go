package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/LerianStudio/outboxtx/v2/pkg/dbtx"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// MetadataOutboxPostgreSQLModel is the row shape of the outbox table,
// mirroring outbox.OutboxRow with column types the driver can bind directly.
type MetadataOutboxPostgreSQLModel struct {
	ID              string
	Topic           sql.NullString
	Data            []byte
	Attributes      []byte
	LeaseExpiration sql.NullTime
	PublishedAt     sql.NullTime
	Shard           sql.NullInt32

	EntityID   string
	EntityType string
	Metadata   []byte
	Status     string
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FromEntity populates m from entry, serializing the map-shaped fields.
func (m *MetadataOutboxPostgreSQLModel) FromEntity(entry *outbox.OutboxRow) error {
	m.ID = entry.ID.String()
	m.Data = entry.Data
	m.EntityID = entry.EntityID
	m.EntityType = entry.EntityType
	m.Status = string(entry.Status)
	m.RetryCount = entry.RetryCount
	m.MaxRetries = entry.MaxRetries
	m.CreatedAt = entry.CreatedAt
	m.UpdatedAt = entry.UpdatedAt

	if entry.Topic != "" {
		m.Topic = sql.NullString{String: entry.Topic, Valid: true}
	}

	if entry.LeaseExpiration != nil {
		m.LeaseExpiration = sql.NullTime{Time: *entry.LeaseExpiration, Valid: true}
	}

	if entry.PublishedAt != nil {
		m.PublishedAt = sql.NullTime{Time: *entry.PublishedAt, Valid: true}
	}

	if entry.Shard != nil {
		m.Shard = sql.NullInt32{Int32: int32(*entry.Shard), Valid: true}
	}

	if entry.Attributes != nil {
		encoded, err := json.Marshal(entry.Attributes)
		if err != nil {
			return outboxerr.InvalidArgument("marshal attributes: " + err.Error())
		}

		m.Attributes = encoded
	}

	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return outboxerr.InvalidArgument("marshal metadata: " + err.Error())
		}

		m.Metadata = encoded
	}

	return nil
}

// ToEntity reconstructs the outbox.OutboxRow carried by m.
func (m *MetadataOutboxPostgreSQLModel) ToEntity() (*outbox.OutboxRow, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, outboxerr.InvalidArgument("parse id: " + err.Error())
	}

	entry := &outbox.OutboxRow{
		ID:         id,
		Data:       m.Data,
		EntityID:   m.EntityID,
		EntityType: m.EntityType,
		Status:     outbox.OutboxStatus(m.Status),
		RetryCount: m.RetryCount,
		MaxRetries: m.MaxRetries,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}

	if m.Topic.Valid {
		entry.Topic = m.Topic.String
	}

	if m.LeaseExpiration.Valid {
		t := m.LeaseExpiration.Time
		entry.LeaseExpiration = &t
	}

	if m.PublishedAt.Valid {
		t := m.PublishedAt.Time
		entry.PublishedAt = &t
	}

	if m.Shard.Valid {
		shard := int(m.Shard.Int32)
		entry.Shard = &shard
	}

	if len(m.Attributes) > 0 {
		var attrs map[string]string
		if err := json.Unmarshal(m.Attributes, &attrs); err != nil {
			return nil, outboxerr.InvalidArgument("unmarshal attributes: " + err.Error())
		}

		entry.Attributes = attrs
	}

	if len(m.Metadata) > 0 {
		var metadata map[string]any
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, outboxerr.InvalidArgument("unmarshal metadata: " + err.Error())
		}

		entry.Metadata = metadata
	}

	return entry, nil
}

// OutboxPostgreSQLRepository is the squirrel/database-sql backed outbox.Repository.
type OutboxPostgreSQLRepository struct {
	DB        *sql.DB
	TableName string
}

var _ outbox.Repository = (*OutboxPostgreSQLRepository)(nil)

func (r *OutboxPostgreSQLRepository) tableName() string {
	if r.TableName == "" {
		return "outbox"
	}

	return r.TableName
}

// FindByEntityID returns the most recent outbox row for entityID/entityType,
// or nil when none exists.
func (r *OutboxPostgreSQLRepository) FindByEntityID(ctx context.Context, entityID, entityType string) (*outbox.OutboxRow, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, outboxerr.InvalidArgument("entityID must not be empty")
	}

	if strings.TrimSpace(entityType) == "" {
		return nil, outboxerr.InvalidArgument("entityType must not be empty")
	}

	query, args, err := squirrel.
		Select("id", "topic", "data", "attributes", "lease_expiration", "published_at", "shard",
			"entity_id", "entity_type", "metadata", "status", "retry_count", "max_retries", "created_at", "updated_at").
		From(r.tableName()).
		Where(squirrel.Eq{"entity_id": entityID, "entity_type": entityType}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument("build query: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, r.DB)

	var m MetadataOutboxPostgreSQLModel

	row := exec.QueryRowContext(ctx, query, args...)

	if err := row.Scan(&m.ID, &m.Topic, &m.Data, &m.Attributes, &m.LeaseExpiration, &m.PublishedAt, &m.Shard,
		&m.EntityID, &m.EntityType, &m.Metadata, &m.Status, &m.RetryCount, &m.MaxRetries, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, outboxerr.TemporaryBackendError(err)
	}

	return m.ToEntity()
}

// Insert stages entry into the outbox table.
func (r *OutboxPostgreSQLRepository) Insert(ctx context.Context, entry *outbox.OutboxRow) error {
	var m MetadataOutboxPostgreSQLModel
	if err := m.FromEntity(entry); err != nil {
		return err
	}

	query, args, err := squirrel.
		Insert(r.tableName()).
		Columns("id", "topic", "data", "attributes", "lease_expiration", "published_at", "shard",
			"entity_id", "entity_type", "metadata", "status", "retry_count", "max_retries", "created_at", "updated_at").
		Values(m.ID, m.Topic, m.Data, m.Attributes, m.LeaseExpiration, m.PublishedAt, m.Shard,
			m.EntityID, m.EntityType, m.Metadata, m.Status, m.RetryCount, m.MaxRetries, m.CreatedAt, m.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return outboxerr.InvalidArgument("build insert: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, r.DB)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// MarkProcessing transitions id to PROCESSING.
func (r *OutboxPostgreSQLRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, outbox.StatusProcessing, nil)
}

// MarkPublished transitions id to PUBLISHED and records publishedAt.
func (r *OutboxPostgreSQLRepository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	query, args, err := squirrel.
		Update(r.tableName()).
		Set("status", string(outbox.StatusPublished)).
		Set("published_at", publishedAt).
		Set("updated_at", publishedAt).
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return outboxerr.InvalidArgument("build update: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, r.DB)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// MarkFailed transitions id to FAILED, recording the bumped retryCount.
func (r *OutboxPostgreSQLRepository) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int) error {
	query, args, err := squirrel.
		Update(r.tableName()).
		Set("status", string(outbox.StatusFailed)).
		Set("retry_count", retryCount).
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return outboxerr.InvalidArgument("build update: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, r.DB)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// MarkDLQ transitions id to DLQ, its terminal failure state.
func (r *OutboxPostgreSQLRepository) MarkDLQ(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, outbox.StatusDLQ, nil)
}

func (r *OutboxPostgreSQLRepository) setStatus(ctx context.Context, id uuid.UUID, status outbox.OutboxStatus, extra map[string]any) error {
	builder := squirrel.
		Update(r.tableName()).
		Set("status", string(status)).
		Where(squirrel.Eq{"id": id.String()})

	for col, val := range extra {
		builder = builder.Set(col, val)
	}

	query, args, err := builder.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return outboxerr.InvalidArgument("build update: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, r.DB)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}
