package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SealedAuction/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts an inbound message into a typed event.Event.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "DecryptedBatch":
		return parseDecryptedBatch(raw.Data)
	case "CollateralDeposited":
		return parseDeposit(raw.Data)
	case "CollateralWithdrawn":
		return parseWithdrawal(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// EventTypeForSubject resolves the event type carried on subject.
func EventTypeForSubject(subject string, subjects []SubjectConfig) (string, bool) {
	for _, cfg := range subjects {
		if cfg.Subject == subject {
			return cfg.EventType, true
		}
	}
	return "", false
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

func parseDecryptedBatch(data []byte) (*event.DecryptedBatch, error) {
	var b event.DecryptedBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse DecryptedBatch: %w", err)
	}
	if b.RoundID <= 0 {
		return nil, fmt.Errorf("parse DecryptedBatch: round_id must be positive, got %d", b.RoundID)
	}
	if b.BuyCount < 0 || b.SellCount < 0 {
		return nil, errors.New("parse DecryptedBatch: negative counts")
	}
	return &b, nil
}

type collateralJSON struct {
	DepositID    string `json:"deposit_id,omitempty"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func (j *collateralJSON) parse(kind string, idField string) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(idField)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse %s id: %w", kind, err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Asset == "" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse %s: asset is required", kind)
	}
	if j.Amount <= 0 {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse %s: amount must be positive, got %d", kind, j.Amount)
	}
	return id, userID, nil
}

func parseDeposit(data []byte) (*event.CollateralDeposit, error) {
	var j collateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralDeposited: %w", err)
	}
	id, userID, err := j.parse("deposit", j.DepositID)
	if err != nil {
		return nil, err
	}
	return &event.CollateralDeposit{
		DepositID: id,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Timestamp: time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}

func parseWithdrawal(data []byte) (*event.CollateralWithdrawal, error) {
	var j collateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralWithdrawn: %w", err)
	}
	id, userID, err := j.parse("withdrawal", j.WithdrawalID)
	if err != nil {
		return nil, err
	}
	return &event.CollateralWithdrawal{
		WithdrawalID: id,
		UserID:       userID,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Timestamp:    time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}
