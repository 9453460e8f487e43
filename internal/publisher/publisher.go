// Package publisher emits session-completed events for downstream consumers.
// Providers: Google Cloud Pub/Sub and an in-memory publisher used in tests
// and single-process deployments.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/storage"
)

// eventSessionCompleted is the attribute value marking session events.
const eventSessionCompleted = "session.completed"

// Provider publishes session lifecycle events.
type Provider interface {
	PublishSessionCompleted(ctx context.Context, session storage.CrawlSession) error
	Close() error
}

// New builds the provider selected by configuration.
func New(ctx context.Context, cfg config.PublisherConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "pubsub":
		return NewPubSub(ctx, cfg.ProjectID, cfg.Topic)
	case "", "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown publisher provider %q", cfg.Provider)
	}
}

// PubSub publishes events to a Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub creates the client and verifies the topic exists.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &PubSub{client: client, topic: topic}, nil
}

// PublishSessionCompleted marshals the session to JSON and publishes it.
func (p *PubSub) PublishSessionCompleted(ctx context.Context, session storage.CrawlSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":      eventSessionCompleted,
			"session_id": session.SessionID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Memory retains published sessions in process.
type Memory struct {
	mu       sync.Mutex
	sessions []storage.CrawlSession
}

// NewMemory builds an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// PublishSessionCompleted implements Provider.
func (m *Memory) PublishSessionCompleted(_ context.Context, session storage.CrawlSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, session)
	return nil
}

// Published returns a copy of the events seen so far.
func (m *Memory) Published() []storage.CrawlSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.CrawlSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Close implements Provider.
func (m *Memory) Close() error {
	return nil
}
