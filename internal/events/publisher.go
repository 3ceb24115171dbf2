/*

This file forwards committed vault events to NATS JetStream.

Subjects follow the pattern clvault.events.{event_type}, where event_type is the event type without
the vault event prefix. Publishing is best effort: the vault state is already committed, so a failed
publish is logged and counted but never rolls anything back.

*/

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/vault"
)

const (
	StreamName    = "CLVAULT_EVENTS"
	SubjectPrefix = "clvault.events"

	publishTimeout = 5 * time.Second
)

// JetStreamPublisher is the part of jetstream.JetStream the publisher needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Recorder counts publish outcomes. Implemented by metrics.Metrics.
type Recorder interface {
	RecordPublish(eventType string, err error)
}

// Message is the JSON payload published for every vault event.
type Message struct {
	Sequence   uint64            `json:"sequence"`
	Vault      string            `json:"vault"`
	EventType  string            `json:"event_type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

var _ vault.EventSink = (*Publisher)(nil)

// Publisher implements vault.EventSink on top of JetStream.
type Publisher struct {
	js       JetStreamPublisher
	vault    string
	recorder Recorder
	now      func() time.Time
	sequence atomic.Uint64
	logger   zerolog.Logger
}

// NewPublisher creates a publisher for the events of the vault at vaultAddress. recorder may be nil.
func NewPublisher(js JetStreamPublisher, vaultAddress string, recorder Recorder) *Publisher {
	return &Publisher{
		js:       js,
		vault:    vaultAddress,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.GetForComponent("events"),
	}
}

// Publish sends every event in order. Failures are logged and do not stop the remaining events.
func (p *Publisher) Publish(ctx context.Context, events []sdk.Event) {
	for _, evt := range events {
		msg := p.message(evt)
		err := p.publish(ctx, msg)
		if p.recorder != nil {
			p.recorder.RecordPublish(evt.Type, err)
		}
		if err != nil {
			p.logger.Warn().Err(err).
				Str("event_type", evt.Type).
				Uint64("sequence", msg.Sequence).
				Msg("Outbound event publish failed")
		}
	}
}

func (p *Publisher) message(evt sdk.Event) Message {
	attrs := make(map[string]string, len(evt.Attributes))
	for _, attr := range evt.Attributes {
		attrs[attr.Key] = attr.Value
	}
	return Message{
		Sequence:   p.sequence.Add(1),
		Vault:      p.vault,
		EventType:  evt.Type,
		Attributes: attrs,
		Timestamp:  p.now().UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = p.js.Publish(ctx, Subject(msg.EventType), data)
	return err
}

// Subject maps an event type to its JetStream subject.
func Subject(eventType string) string {
	name := strings.TrimPrefix(eventType, vault.EventTypePrefix)
	// Subject tokens must not contain separators or wildcards.
	name = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(name)
	if name == "" {
		name = "unknown"
	}
	return SubjectPrefix + "." + name
}

// EnsureStream creates the vault events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	log := logger.GetForComponent("events")
	log.Info().Str("stream", StreamName).Msg("Ensured vault events stream")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := logger.GetForComponent("events")
	nc, err := nats.Connect(url,
		nats.Name("clvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
