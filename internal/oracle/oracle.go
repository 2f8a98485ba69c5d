// Package oracle is the boundary to the threshold-decryption network.
package oracle

import (
	"context"
	"sync"

	"SealedAuction/internal/event"
	"SealedAuction/internal/sealed"

	"github.com/rs/zerolog"
)

// Requester hands a round's payloads to the oracle. It must not block on
// decryption; the result arrives later through the engine's callback.
type Requester interface {
	RequestDecryption(ctx context.Context, req *event.DecryptionRequest) error
}

// Callback receives a decrypted batch.
type Callback func(ctx context.Context, batch *event.DecryptedBatch) error

// Decrypt opens every payload in the request. Payloads that fail to open are
// reported as the zero pair so the round can still settle and refund them.
func Decrypt(keys *sealed.KeyPair, req *event.DecryptionRequest) *event.DecryptedBatch {
	batch := &event.DecryptedBatch{
		RoundID:   req.RoundID,
		BuyCount:  req.BuyCount,
		SellCount: req.SellCount,
		Pairs:     make([]event.DecryptedPair, len(req.Payloads)),
	}
	for i, p := range req.Payloads {
		price, qty, err := sealed.Open(keys, p)
		if err != nil {
			continue
		}
		batch.Pairs[i] = event.DecryptedPair{Price: price, Quantity: qty}
	}
	return batch
}

// Local decrypts in-process and delivers on its own goroutine. It stands in
// for the threshold network in development and tests.
type Local struct {
	keys   *sealed.KeyPair
	logger zerolog.Logger

	mu       sync.Mutex
	callback Callback
	wg       sync.WaitGroup
}

func NewLocal(keys *sealed.KeyPair, logger zerolog.Logger) *Local {
	return &Local{keys: keys, logger: logger}
}

// SetCallback wires the receiver. The engine is built after the oracle, so
// this is set once during startup.
func (l *Local) SetCallback(cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = cb
}

func (l *Local) RequestDecryption(ctx context.Context, req *event.DecryptionRequest) error {
	l.mu.Lock()
	cb := l.callback
	l.mu.Unlock()

	batch := Decrypt(l.keys, req)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if cb == nil {
			l.logger.Warn().Int64("round_id", batch.RoundID).Msg("no callback wired, dropping batch")
			return
		}
		if err := cb(context.WithoutCancel(ctx), batch); err != nil {
			l.logger.Error().Err(err).Int64("round_id", batch.RoundID).Msg("deliver decrypted batch")
		}
	}()
	return nil
}

// Wait blocks until every delivery started so far has returned.
func (l *Local) Wait() {
	l.wg.Wait()
}
