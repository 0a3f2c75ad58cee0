package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// StreamName holds every published operation.
	StreamName = "PLEDGER_OPERATIONS"
	// SubjectPrefix is followed by the book name.
	SubjectPrefix = "pledger.operations"
)

// Publisher is the part of jetstream.JetStream the publisher needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OperationPublisher publishes committed operations to NATS JetStream for
// downstream consumers. Subjects are pledger.operations.{book}.
type OperationPublisher struct {
	js        Publisher
	inputChan <-chan ledger.Operation
	runID     uuid.UUID
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// Message is the JSON payload of one operation.
type Message struct {
	RunID       uuid.UUID      `json:"run_id"`
	Book        string         `json:"book"`
	Index       int64          `json:"index"`
	Stamp       string         `json:"stamp"`
	Date        string         `json:"date"`
	Description string         `json:"description"`
	Entries     []MessageEntry `json:"entries"`
}

type MessageEntry struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

func NewOperationPublisher(js Publisher, inputChan <-chan ledger.Operation, runID uuid.UUID, metrics *observability.Metrics, log zerolog.Logger) *OperationPublisher {
	return &OperationPublisher{
		js:        js,
		inputChan: inputChan,
		runID:     runID,
		metrics:   metrics,
		log:       log.With().Str("worker", "publish").Logger(),
	}
}

// Run publishes until the channel is closed or ctx is cancelled. Failed
// publishes are logged and counted; consumers can rebuild from the export.
func (p *OperationPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case op, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, op); err != nil {
				p.log.Warn().Err(err).Str("book", op.Book).Int64("index", op.Index).Msg("publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.PublishedMessages.Inc()
			}
		}
	}
}

// NewMessage converts an operation into its payload.
func NewMessage(runID uuid.UUID, op ledger.Operation) Message {
	m := Message{
		RunID:       runID,
		Book:        op.Book,
		Index:       op.Index,
		Stamp:       op.Stamp.String(),
		Date:        op.Stamp.Date.String(),
		Description: op.Description(),
		Entries:     make([]MessageEntry, len(op.Entries)),
	}
	for i, e := range op.Entries {
		m.Entries[i] = MessageEntry{Account: e.Key.AccountPath(), Amount: e.Amount}
	}
	return m
}

// Subject is the subject an operation of book is published on.
func Subject(book string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, book)
}

// MsgID deduplicates republishing within the stream's duplicate window.
func MsgID(runID uuid.UUID, op ledger.Operation) string {
	return fmt.Sprintf("%s/%s/%d", runID, op.Book, op.Index)
}

func (p *OperationPublisher) publish(ctx context.Context, op ledger.Operation) error {
	data, err := json.Marshal(NewMessage(p.runID, op))
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	_, err = p.js.Publish(ctx, Subject(op.Book), data, jetstream.WithMsgID(MsgID(p.runID, op)))
	return err
}

// EnsureStream creates or updates the operations stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	log.Info().Str("stream", StreamName).Msg("ensured stream")
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("portledger"),
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
