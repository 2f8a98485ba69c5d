package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SealedAuction/internal/event"
	"SealedAuction/internal/oracle"

	"github.com/nats-io/nats.go/jetstream"
)

// streamPublisher is the publishing half of jetstream.JetStream.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSRequester hands decryption requests to the oracle network over
// JetStream. The round id is the message id, so a re-sent request inside the
// stream's duplicate window is dropped by the server.
type NATSRequester struct {
	js      streamPublisher
	timeout time.Duration
}

var _ oracle.Requester = (*NATSRequester)(nil)

func NewNATSRequester(js streamPublisher) *NATSRequester {
	return &NATSRequester{js: js, timeout: 5 * time.Second}
}

func (r *NATSRequester) RequestDecryption(ctx context.Context, req *event.DecryptionRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.js.Publish(ctx, SubjectOracleRequests, data, jetstream.WithMsgID(roundMsgID(req.RoundID))); err != nil {
		return fmt.Errorf("publish round %d: %w", req.RoundID, err)
	}
	return nil
}

func roundMsgID(roundID int64) string {
	return fmt.Sprintf("round-%d", roundID)
}
