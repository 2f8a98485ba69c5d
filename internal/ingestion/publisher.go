package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"SealedAuction/internal/core"
	"SealedAuction/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes applied engine events to sealed.events.<type>.
type OutboundPublisher struct {
	js        streamPublisher
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishedEvent is the outbound wire form of an engine event.
type PublishedEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(js streamPublisher, inputChan <-chan core.CoreOutput, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run publishes until ctx is cancelled or the channel closes. A failed
// publish is logged and skipped; consumers can read the event log directly.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out); err != nil {
				op.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.CoreOutput) error {
	env := out.Envelope
	data, err := json.Marshal(PublishedEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := EventSubject(env.EventType.String())
	_, err = op.js.Publish(ctx, subject, data, jetstream.WithMsgID(fmt.Sprintf("seq-%d", env.Sequence)))
	return err
}

// EventSubject returns the outbound subject for an event type.
func EventSubject(eventType string) string {
	return SubjectEventsPrefix + "." + eventType
}

// Tee copies every engine output to persist, which applies backpressure,
// and offers it to publish, which drops when full. It closes both outputs
// when in closes.
func Tee(in <-chan core.CoreOutput, persist, publish chan<- core.CoreOutput, metrics *observability.Metrics) {
	defer func() {
		if persist != nil {
			close(persist)
		}
		if publish != nil {
			close(publish)
		}
	}()

	for out := range in {
		if persist != nil {
			persist <- out
		}
		if publish == nil {
			continue
		}
		select {
		case publish <- out:
		default:
			if metrics != nil {
				metrics.PublishDrops.Inc()
			}
		}
	}
}
