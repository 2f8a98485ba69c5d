package ingestion

import (
	"context"
	"errors"
	"fmt"

	"SealedAuction/internal/core"
	"SealedAuction/internal/event"

	"github.com/rs/zerolog"
)

// Engine is the part of the auction engine fed by inbound messages.
type Engine interface {
	OnDecryptedBatch(ctx context.Context, batch *event.DecryptedBatch) (*core.SettlementRecord, error)
	Deposit(ctx context.Context, evt *event.CollateralDeposit) error
	Withdraw(ctx context.Context, evt *event.CollateralWithdrawal) error
}

// Disposition is what happened to an inbound message.
type Disposition int

const (
	Acked Disposition = iota
	Nacked
	Terminated
)

func (d Disposition) String() string {
	switch d {
	case Acked:
		return "ack"
	case Nacked:
		return "nak"
	case Terminated:
		return "term"
	default:
		return "unknown"
	}
}

// Dispatcher parses inbound messages and applies them to the engine. A message
// is acknowledged only after the engine has handled it; a settlement that
// could not be logged is redelivered.
type Dispatcher struct {
	engine   Engine
	subjects []SubjectConfig
	logger   zerolog.Logger
}

func NewDispatcher(engine Engine, subjects []SubjectConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, subjects: subjects, logger: logger}
}

// Run handles messages until ctx is cancelled or rawChan closes.
func (d *Dispatcher) Run(ctx context.Context, rawChan <-chan RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-rawChan:
			if !ok {
				return nil
			}
			d.Handle(ctx, raw)
		}
	}
}

// Handle applies one message and settles its acknowledgement.
func (d *Dispatcher) Handle(ctx context.Context, raw RawEvent) Disposition {
	disp, err := d.apply(ctx, raw)
	switch disp {
	case Acked:
		call(raw.AckFunc)
	case Nacked:
		call(raw.NakFunc)
	case Terminated:
		call(raw.TermFunc)
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Str("disposition", disp.String()).Msg("inbound message not applied")
	}
	return disp
}

func (d *Dispatcher) apply(ctx context.Context, raw RawEvent) (Disposition, error) {
	eventType, ok := EventTypeForSubject(raw.Subject, d.subjects)
	if !ok {
		return Terminated, fmt.Errorf("unknown subject %s", raw.Subject)
	}
	evt, err := ParseRawEvent(raw, eventType)
	if err != nil {
		return Terminated, err
	}

	switch e := evt.(type) {
	case *event.DecryptedBatch:
		_, err = d.engine.OnDecryptedBatch(ctx, e)
	case *event.CollateralDeposit:
		err = d.engine.Deposit(ctx, e)
	case *event.CollateralWithdrawal:
		err = d.engine.Withdraw(ctx, e)
	default:
		return Terminated, fmt.Errorf("no handler for %T", evt)
	}
	return classify(err), err
}

// classify maps an engine error to a message disposition.
func classify(err error) Disposition {
	switch {
	case err == nil:
		return Acked
	case errors.Is(err, core.ErrRoundAlreadySettled):
		return Acked
	case errors.Is(err, core.ErrSettlementAborted):
		return Nacked
	default:
		return Terminated
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
