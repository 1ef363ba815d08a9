package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions configures a JetStream consumer on the analyses stream.
type SubscribeOptions struct {
	Network      string // empty for every network
	Durable      bool
	ConsumerName string
}

// Subscriber consumes analysis events from JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming analysis events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := Connect(natsURL, "ptoken-subscriber")
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe delivers events to handle until ctx is cancelled. Messages that
// do not decode are acknowledged and skipped.
func (s *Subscriber) Subscribe(ctx context.Context, opts SubscribeOptions, handle func(*AnalysisEvent)) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: SubjectForNetwork(opts.Network),
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if opts.Durable {
		if opts.ConsumerName == "" {
			return fmt.Errorf("consumer name is required for durable consumers")
		}
		cfg.Durable = opts.ConsumerName
		cfg.Name = opts.ConsumerName
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		event, err := DecodeEvent(msg.Data())
		if err != nil {
			s.logger.Warn("skipping undecodable analysis event",
				"subject", msg.Subject(),
				"error", err,
			)
			_ = msg.Ack()
			return
		}
		handle(event)
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// DecodeEvent parses a published analysis event.
func DecodeEvent(data []byte) (*AnalysisEvent, error) {
	var event AnalysisEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode analysis event: %w", err)
	}
	return &event, nil
}
