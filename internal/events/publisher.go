// Package events publishes memory lifecycle events over NATS.
//
// Publishing is fire and forget: storing a memory must never stall or
// fail because the event bus is down, so publish failures are logged
// and the event is dropped.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

// Event is the JSON payload carried by every lifecycle event.
type Event struct {
	Scope string    `json:"scope"`
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
}

// Config configures the publisher.
type Config struct {
	// URL is the NATS server address.
	URL string

	// SubjectPrefix prefixes event subjects; "memory" yields
	// memory.stored and memory.deleted.
	SubjectPrefix string
}

// Publisher emits lifecycle events to the subject <prefix>.<event>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher connects to NATS. The connection retries in the
// background, so a bus outage at startup does not block the daemon;
// events published before the connection settles are dropped.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("events: nats url required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "memory"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("event publisher ready",
		zap.String("url", cfg.URL),
		zap.String("subject_prefix", cfg.SubjectPrefix),
	)

	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Publish implements memory.EventSink. The requester scope from ctx,
// when present, is recorded as the acting party.
func (p *Publisher) Publish(ctx context.Context, event string, s scope.Scope, key string) {
	payload := Event{
		Scope: s.String(),
		Key:   key,
		At:    time.Now().UTC(),
	}
	if requester, err := scope.FromContext(ctx); err == nil {
		payload.Actor = requester.String()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("marshal event payload failed",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	subject := p.prefix + "." + event
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("publish event failed",
			zap.String("subject", subject),
			zap.String("scope", payload.Scope),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Close drains the connection so buffered events flush before shutdown.
func (p *Publisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

var _ memory.EventSink = (*Publisher)(nil)
