package ingestion

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan.
// Per doc ยง15 (Ingest APIs): NATS JetStream is the primary high-throughput
// ingestion surface. Each subject maps to an event type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
// Per doc ยง15: each event type has its own subject for independent scaling.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration for the
// custody ledger's own event types. The risk engine's instr.> subjects
// are handled separately by SubscribeInstructions — they carry wire
// instructions, not custody events, and never touch this pipeline.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perp.deposits.initiated.>", EventType: "DepositInitiated", ConsumerName: "ledger-deposit-init", StreamName: "PERP_DEPOSITS"},
		{Subject: "perp.deposits.confirmed.>", EventType: "DepositConfirmed", ConsumerName: "ledger-deposit-confirm", StreamName: "PERP_DEPOSITS"},
		{Subject: "perp.withdrawals.requested.>", EventType: "WithdrawalRequested", ConsumerName: "ledger-wd-request", StreamName: "PERP_WITHDRAWALS"},
		{Subject: "perp.withdrawals.confirmed.>", EventType: "WithdrawalConfirmed", ConsumerName: "ledger-wd-confirm", StreamName: "PERP_WITHDRAWALS"},
		{Subject: "perp.withdrawals.rejected.>", EventType: "WithdrawalRejected", ConsumerName: "ledger-wd-reject", StreamName: "PERP_WITHDRAWALS"},
	}
}

// InstructionEvent is a decoded-instruction-ready message off the
// instr.<marketID> subjects — the wire boundary ahead of
// riskengine.Dispatch. The market ID comes off the subject suffix; the
// signer and the crank-time oracle inputs ride in NATS headers because
// DecodeInstruction's wire format carries only the instruction's own
// args, never who submitted it.
type InstructionEvent struct {
	MarketID      string
	Data          []byte
	Signer        uuid.UUID
	OraclePriceE6 int64
	NowSlot       int64
	AckFunc       func()
	NakFunc       func()
}

const (
	InstructionStreamName  = "PERP_INSTR"
	InstructionSubjectWild = "instr.>"
)

// EnsureInstructionStream creates the instr.> JetStream stream if absent.
func EnsureInstructionStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      InstructionStreamName,
		Subjects:  []string{InstructionSubjectWild},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", InstructionStreamName, err)
	}
	log.Printf("INFO: ensured stream %s", InstructionStreamName)
	return nil
}

// SubscribeInstructions creates a durable consumer over instr.> and feeds
// decoded-ready InstructionEvents to instrChan. marketID is recovered
// from the subject suffix (instr.<marketID>); signer/oracle-price/slot
// come from message headers set by whatever authenticated the request
// upstream of NATS.
func (ns *NATSSubscriber) SubscribeInstructions(ctx context.Context, instrChan chan<- InstructionEvent) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, InstructionStreamName, jetstream.ConsumerConfig{
		Durable:       "riskengine-instr",
		FilterSubject: InstructionSubjectWild,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer riskengine-instr: %w", err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		marketID := strings.TrimPrefix(msg.Subject(), "instr.")

		var signer uuid.UUID
		if raw := msg.Headers().Get("Signer"); raw != "" {
			if parsed, err := uuid.Parse(raw); err == nil {
				signer = parsed
			}
		}
		var priceE6, nowSlot int64
		if raw := msg.Headers().Get("Oracle-Price-E6"); raw != "" {
			priceE6, _ = strconv.ParseInt(raw, 10, 64)
		}
		if raw := msg.Headers().Get("Now-Slot"); raw != "" {
			nowSlot, _ = strconv.ParseInt(raw, 10, 64)
		}

		evt := InstructionEvent{
			MarketID:      marketID,
			Data:          msg.Data(),
			Signer:        signer,
			OraclePriceE6: priceE6,
			NowSlot:       nowSlot,
			AckFunc:       func() { msg.Ack() },
			NakFunc:       func() { msg.Nak() },
		}

		select {
		case instrChan <- evt:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume riskengine-instr: %w", err)
	}

	ns.consumers = append(ns.consumers, consumerContext)
	log.Printf("INFO: subscribed to %s (consumer=riskengine-instr)", InstructionSubjectWild)
	return nil
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Per doc ยง15: streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "PERP_TRADES",
			Subjects:  []string{"perp.trades.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERP_DEPOSITS",
			Subjects:  []string{"perp.deposits.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERP_WITHDRAWALS",
			Subjects:  []string{"perp.withdrawals.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
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
