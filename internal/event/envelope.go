package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOrderSubmitted
	EventTypeOrderCancelled
	EventTypeRoundTriggered
	EventTypeRoundSettled
	EventTypeCollateralDeposited
	EventTypeCollateralWithdrawn
	EventTypeDecryptedBatch
)

// EventEnvelope wraps every event the engine emits
type EventEnvelope struct {
	// Engine sequence, gap-free
	Sequence int64

	// Stable dedup key
	IdempotencyKey string

	EventType EventType

	// Engine clock at the time the event was applied
	Timestamp time.Time

	// JSON-encoded event body
	Payload []byte

	// Hash chain tip after this event
	StateHash [32]byte
	PrevHash  [32]byte
}

// Event is the interface all event payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeOrderSubmitted:
		return "OrderSubmitted"
	case EventTypeOrderCancelled:
		return "OrderCancelled"
	case EventTypeRoundTriggered:
		return "RoundTriggered"
	case EventTypeRoundSettled:
		return "RoundSettled"
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	case EventTypeDecryptedBatch:
		return "DecryptedBatch"
	default:
		return "Unknown"
	}
}
