package ingestion_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"SealedAuction/internal/core"
	"SealedAuction/internal/event"
	"SealedAuction/internal/ingestion"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	batchErr   error
	depositErr error
	batches    []*event.DecryptedBatch
	deposits   []*event.CollateralDeposit
	withdraws  []*event.CollateralWithdrawal
}

func (f *fakeEngine) OnDecryptedBatch(ctx context.Context, b *event.DecryptedBatch) (*core.SettlementRecord, error) {
	f.batches = append(f.batches, b)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return &core.SettlementRecord{RoundID: b.RoundID}, nil
}

func (f *fakeEngine) Deposit(ctx context.Context, d *event.CollateralDeposit) error {
	f.deposits = append(f.deposits, d)
	return f.depositErr
}

func (f *fakeEngine) Withdraw(ctx context.Context, w *event.CollateralWithdrawal) error {
	f.withdraws = append(f.withdraws, w)
	return nil
}

// tracked wraps raw with ack callbacks that record what was called.
func tracked(raw ingestion.RawEvent, got *string) ingestion.RawEvent {
	raw.AckFunc = func() { *got = "ack" }
	raw.NakFunc = func() { *got = "nak" }
	raw.TermFunc = func() { *got = "term" }
	return raw
}

func batchMsg(t *testing.T, roundID int64) ingestion.RawEvent {
	return rawFromJSON(t, ingestion.SubjectOracleResults, event.DecryptedBatch{
		RoundID: roundID, BuyCount: 1, SellCount: 1,
		Pairs: []event.DecryptedPair{{Price: 2, Quantity: 1}, {Price: 1, Quantity: 1}},
	})
}

func TestDispatcher_Dispositions(t *testing.T) {
	cases := []struct {
		name     string
		batchErr error
		want     ingestion.Disposition
	}{
		{"settled", nil, ingestion.Acked},
		{"replay", fmt.Errorf("%w: round 1", core.ErrRoundAlreadySettled), ingestion.Acked},
		{"log down", fmt.Errorf("%w: round 1: write-ahead log", core.ErrSettlementAborted), ingestion.Nacked},
		{"mismatch", fmt.Errorf("%w: round 1", core.ErrBatchMismatch), ingestion.Terminated},
		{"unknown round", core.ErrUnknownRound, ingestion.Terminated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{batchErr: tc.batchErr}
			d := ingestion.NewDispatcher(eng, ingestion.DefaultSubjects(), zerolog.Nop())

			var got string
			disp := d.Handle(context.Background(), tracked(batchMsg(t, 1), &got))

			require.Equal(t, tc.want, disp)
			require.Equal(t, tc.want.String(), got)
			require.Len(t, eng.batches, 1)
		})
	}
}

func TestDispatcher_PoisonMessages(t *testing.T) {
	eng := &fakeEngine{}
	d := ingestion.NewDispatcher(eng, ingestion.DefaultSubjects(), zerolog.Nop())

	var got string
	disp := d.Handle(context.Background(), tracked(ingestion.RawEvent{Subject: "sealed.unknown", Data: []byte("{}")}, &got))
	require.Equal(t, ingestion.Terminated, disp)
	require.Equal(t, "term", got)

	disp = d.Handle(context.Background(), tracked(ingestion.RawEvent{Subject: ingestion.SubjectCollateralDeposits, Data: []byte("garbage")}, &got))
	require.Equal(t, ingestion.Terminated, disp)
	require.Empty(t, eng.deposits, "unparseable message must not reach the engine")
}

func TestDispatcher_RunRoutesCollateral(t *testing.T) {
	eng := &fakeEngine{depositErr: errors.New("insufficient funds")}
	d := ingestion.NewDispatcher(eng, ingestion.DefaultSubjects(), zerolog.Nop())

	in := make(chan ingestion.RawEvent, 2)
	in <- rawFromJSON(t, ingestion.SubjectCollateralDeposits, map[string]interface{}{
		"deposit_id": uuid.NewString(), "user_id": uuid.NewString(), "asset": "USDC", "amount": 5,
	})
	in <- rawFromJSON(t, ingestion.SubjectCollateralWithdrawals, map[string]interface{}{
		"withdrawal_id": uuid.NewString(), "user_id": uuid.NewString(), "asset": "USDC", "amount": 5,
	})
	close(in)

	require.NoError(t, d.Run(context.Background(), in))
	require.Len(t, eng.deposits, 1)
	require.Len(t, eng.withdraws, 1)
}

// --- Publishing ---

type published struct {
	subject string
	data    []byte
}

type fakeStream struct {
	msgs []published
	err  error
}

func (f *fakeStream) Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: payload})
	return &jetstream.PubAck{Sequence: uint64(len(f.msgs))}, nil
}

func TestNATSRequester_PublishesRequest(t *testing.T) {
	js := &fakeStream{}
	r := ingestion.NewNATSRequester(js)

	req := &event.DecryptionRequest{RoundID: 9, BuyCount: 1, SellCount: 1, Payloads: [][]byte{{1}, {2}}}
	require.NoError(t, r.RequestDecryption(context.Background(), req))

	require.Len(t, js.msgs, 1)
	require.Equal(t, ingestion.SubjectOracleRequests, js.msgs[0].subject)
	var got event.DecryptionRequest
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &got))
	require.Equal(t, int64(9), got.RoundID)
	require.Equal(t, [][]byte{{1}, {2}}, got.Payloads)

	js.err = errors.New("nats: timeout")
	require.Error(t, r.RequestDecryption(context.Background(), req))
}

func TestOutboundPublisher_Subjects(t *testing.T) {
	js := &fakeStream{}
	in := make(chan core.CoreOutput, 1)
	in <- core.CoreOutput{Envelope: &event.EventEnvelope{
		Sequence:       3,
		IdempotencyKey: "round:1:settle",
		EventType:      event.EventTypeRoundSettled,
		Timestamp:      time.Now(),
		Payload:        []byte(`{"round_id":1}`),
		StateHash:      [32]byte{0xab},
	}}
	close(in)

	p := ingestion.NewOutboundPublisher(js, in, nil, zerolog.Nop())
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, js.msgs, 1)
	require.Equal(t, "sealed.events.RoundSettled", js.msgs[0].subject)

	var got ingestion.PublishedEvent
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &got))
	require.Equal(t, int64(3), got.Sequence)
	require.JSONEq(t, `{"round_id":1}`, string(got.Payload))
	require.Equal(t, "ab", got.StateHash[:2])
}

func TestTee_PersistNeverDrops(t *testing.T) {
	in := make(chan core.CoreOutput)
	persist := make(chan core.CoreOutput, 8)
	publish := make(chan core.CoreOutput) // unbuffered and never read: every offer drops

	done := make(chan struct{})
	go func() {
		ingestion.Tee(in, persist, publish, nil)
		close(done)
	}()
	for i := 1; i <= 3; i++ {
		in <- core.CoreOutput{Envelope: &event.EventEnvelope{Sequence: int64(i)}}
	}
	close(in)
	<-done

	var seqs []int64
	for out := range persist {
		seqs = append(seqs, out.Envelope.Sequence)
	}
	require.Equal(t, []int64{1, 2, 3}, seqs)
	_, open := <-publish
	require.False(t, open, "publish channel should be closed")
}
