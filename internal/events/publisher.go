// Package events publishes engine lifecycle events over NATS for
// downstream consumers (analytics, moderation tooling). Publishing is best
// effort: failures are logged and never affect the originating operation,
// and the engine runs fine with no broker configured.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veilchat/anonbot/internal/domain"
)

// NATS subjects published by the engine.
const (
	SubjectMatchFound      = "anonchat.match.found"
	SubjectSessionEnded    = "anonchat.session.ended"
	SubjectMessageRelayed  = "anonchat.message.relayed"
)

// MatchFoundEvent is the payload published when two users are paired.
type MatchFoundEvent struct {
	ChatID string `json:"chat_id"`
	UserA  int64  `json:"user_a"`
	UserB  int64  `json:"user_b"`
	Ts     int64  `json:"ts"`
}

// SessionEndedEvent is the payload published when a session ends.
type SessionEndedEvent struct {
	ChatID string `json:"chat_id"`
	Ts     int64  `json:"ts"`
}

// MessageRelayedEvent is the payload published per relayed content unit.
// It carries only the kind; content never leaves the engine.
type MessageRelayedEvent struct {
	Kind string `json:"kind"`
	Ts   int64  `json:"ts"`
}

// Publisher wraps a NATS connection. The zero-value-nil Publisher is valid
// and drops every event.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection with automatic reconnects and
// returns a ready publisher.
func Connect(url, name string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	log.Printf("[events] connected to %s", conn.ConnectedUrl())
	return &Publisher{conn: conn}, nil
}

// MatchFound publishes a pairing event.
func (p *Publisher) MatchFound(chatID string, userA, userB int64) {
	p.publish(SubjectMatchFound, MatchFoundEvent{
		ChatID: chatID,
		UserA:  userA,
		UserB:  userB,
		Ts:     time.Now().Unix(),
	})
}

// SessionEnded publishes a session termination event.
func (p *Publisher) SessionEnded(chatID string) {
	p.publish(SubjectSessionEnded, SessionEndedEvent{
		ChatID: chatID,
		Ts:     time.Now().Unix(),
	})
}

// MessageRelayed publishes a relay event for the given content kind.
func (p *Publisher) MessageRelayed(kind domain.ContentKind) {
	p.publish(SubjectMessageRelayed, MessageRelayedEvent{
		Kind: string(kind),
		Ts:   time.Now().Unix(),
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[events] publish %s: %v", subject, err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Printf("[events] drain: %v", err)
	}
}
