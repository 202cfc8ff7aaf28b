// Package outbox is the broker-facing outbox row the sender drains, carrying
// an additional entity-metadata-sync bookkeeping shape (status/retry-count/
// DLQ) for callers that stage metadata-only events rather than full broker
// payloads. Concrete storage lives in subpackages such as pkg/outbox/postgres.
package outbox

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the bookkeeping state machine layered on top of an
// OutboxRow. It never changes the sender's "lease IS NULL OR lease < now"
// scan predicate; it is purely for operator-facing visibility and the
// failed-publish retry/DLQ routing.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "PENDING"
	StatusProcessing OutboxStatus = "PROCESSING"
	StatusPublished  OutboxStatus = "PUBLISHED"
	StatusFailed     OutboxStatus = "FAILED"
	StatusDLQ        OutboxStatus = "DLQ"
)

// ValidOutboxTransitions is the closed set of legal status transitions.
var ValidOutboxTransitions = map[OutboxStatus][]OutboxStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPublished, StatusFailed},
	StatusFailed:     {StatusProcessing, StatusDLQ},
	StatusPublished:  {},
	StatusDLQ:        {},
}

// CanTransitionTo reports whether to is a legal next state from s.
func (s OutboxStatus) CanTransitionTo(to OutboxStatus) bool {
	for _, allowed := range ValidOutboxTransitions[s] {
		if allowed == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s is a terminal state (no further transitions).
func (s OutboxStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusDLQ
}

const (
	EntityTypeTransaction = "Transaction"
	EntityTypeOperation   = "Operation"

	// MaxEntityIDLength bounds the entity id column's width.
	MaxEntityIDLength = 255
	// MaxMetadataSize bounds the serialized metadata payload, in bytes.
	MaxMetadataSize = 64 * 1024
	// DefaultMaxRetries bounds entity-metadata-sync retries before DLQ routing.
	DefaultMaxRetries = 10
)

var (
	ErrEntityIDEmpty     = errors.New("outbox: entity id must not be empty")
	ErrEntityIDTooLong   = errors.New("outbox: entity id exceeds max length")
	ErrInvalidEntityType = errors.New("outbox: invalid entity type")
	ErrMetadataNil       = errors.New("outbox: metadata must not be nil")
	ErrMetadataTooLarge  = errors.New("outbox: metadata exceeds max size")
)

// OutboxRow is persisted one-to-one with a staged event after commit. The
// broker-facing columns (Topic/Data/Attributes/LeaseExpiration/PublishedAt/
// Shard) are what the sender drains; the EntityID/EntityType/Metadata/
// Status/RetryCount/MaxRetries columns are additive bookkeeping for
// entity-metadata-sync rows and never gate the sender's candidate scan.
type OutboxRow struct {
	ID              uuid.UUID
	Topic           string
	Data            []byte
	Attributes      map[string]string
	LeaseExpiration *time.Time
	PublishedAt     *time.Time
	Shard           *int

	EntityID   string
	EntityType string
	Metadata   map[string]any
	Status     OutboxStatus
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MetadataOutbox is an alias kept for call sites that stage entity-metadata
// sync rows specifically; it is the same shape as OutboxRow.
type MetadataOutbox = OutboxRow

// NewOutboxRow builds the row for a generic staged broker event.
func NewOutboxRow(id uuid.UUID, topic string, data []byte, attributes map[string]string) *OutboxRow {
	return &OutboxRow{
		ID:         id,
		Topic:      topic,
		Data:       data,
		Attributes: attributes,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewMetadataOutbox builds a row for an entity-metadata-sync event: a
// change to entityID's metadata that must reach the downstream document
// store at least once.
func NewMetadataOutbox(entityID, entityType string, metadata map[string]any) (*OutboxRow, error) {
	if entityID == "" {
		return nil, ErrEntityIDEmpty
	}

	if len(entityID) > MaxEntityIDLength {
		return nil, ErrEntityIDTooLong
	}

	if entityType != EntityTypeTransaction && entityType != EntityTypeOperation {
		return nil, ErrInvalidEntityType
	}

	if metadata == nil {
		return nil, ErrMetadataNil
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal metadata: %w", err)
	}

	if len(encoded) > MaxMetadataSize {
		return nil, ErrMetadataTooLarge
	}

	now := time.Now()

	return &OutboxRow{
		ID:         uuid.New(),
		EntityID:   entityID,
		EntityType: entityType,
		Metadata:   metadata,
		Status:     StatusPending,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phonePattern = regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`)
	ipPattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

const maxSanitizedErrorLength = 500

// SanitizeErrorMessage redacts emails, phone numbers, and IPv4 addresses
// from a raw store/broker error message before it is logged or persisted,
// and truncates it to a bounded length.
func SanitizeErrorMessage(msg string) string {
	msg = emailPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = phonePattern.ReplaceAllString(msg, "[REDACTED]")
	msg = ipPattern.ReplaceAllString(msg, "[REDACTED]")

	if len(msg) > maxSanitizedErrorLength {
		msg = msg[:maxSanitizedErrorLength] + "...[truncated]"
	}

	return msg
}

// SecureRandomFloat64 returns a cryptographically random float64 in [0, 1),
// used for jittering retry backoff so concurrent workers don't retry in lockstep.
func SecureRandomFloat64() float64 {
	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing to read from the OS entropy source is not a
		// condition retry jitter needs to survive gracefully; a fixed
		// midpoint keeps backoff functional rather than panicking.
		return 0.5
	}

	n := binary.BigEndian.Uint64(buf[:]) >> 11

	return float64(n) / float64(uint64(1)<<53)
}

// Repository is the outbox table's persistence contract, mocked by
// generated code (pkg/outbox/mock) for sender/reconciliation unit tests.
type Repository interface {
	FindByEntityID(ctx context.Context, entityID, entityType string) (*OutboxRow, error)
	Insert(ctx context.Context, entry *OutboxRow) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int) error
	MarkDLQ(ctx context.Context, id uuid.UUID) error
}
