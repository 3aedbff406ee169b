package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veldtlabs/identity/internal/domain"
	pkgkafka "github.com/veldtlabs/identity/pkg/kafka"
)

// Kafka topic constants for identity domain events.
const (
	TopicUserRegistered = "identity.user.registered"
	TopicUserUpdated    = "identity.user.updated"
	TopicUserDeleted    = "identity.user.deleted"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the identity service.
const SourceIdentityService = "identity-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// UserUpdatedData is the payload for a user.updated event.
type UserUpdatedData struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	IsActive bool     `json:"is_active"`
	Roles    []string `json:"roles"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Producer publishes identity domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the identity service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Roles: user.Roles,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	data := UserUpdatedData{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		IsActive: user.IsActive,
		Roles:    user.Roles,
	}
	return p.publish(ctx, TopicUserUpdated, user.ID, data)
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID, email string) error {
	return p.publish(ctx, TopicUserDeleted, userID, UserDeletedData{ID: userID, Email: email})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeUser, SourceIdentityService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
