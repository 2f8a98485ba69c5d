package oracle_test

import (
	"context"
	"sync"
	"testing"

	"SealedAuction/internal/event"
	"SealedAuction/internal/oracle"
	"SealedAuction/internal/sealed"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDecrypt_ZeroPairForBadPayload(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(nil)
	require.NoError(t, err)
	good, err := sealed.Seal(kp.Public, 12, 10)
	require.NoError(t, err)

	batch := oracle.Decrypt(kp, &event.DecryptionRequest{
		RoundID:   3,
		BuyCount:  1,
		SellCount: 1,
		Payloads:  [][]byte{good, []byte("junk")},
	})

	require.Equal(t, int64(3), batch.RoundID)
	require.Equal(t, []event.DecryptedPair{{Price: 12, Quantity: 10}, {}}, batch.Pairs)
}

func TestLocal_DeliversAsynchronously(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	payload, _ := sealed.Seal(kp.Public, 7, 2)

	var (
		mu  sync.Mutex
		got []*event.DecryptedBatch
	)
	local := oracle.NewLocal(kp, zerolog.Nop())
	local.SetCallback(func(ctx context.Context, b *event.DecryptedBatch) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, b)
		return nil
	})

	err := local.RequestDecryption(context.Background(), &event.DecryptionRequest{
		RoundID: 1, BuyCount: 1, Payloads: [][]byte{payload},
	})
	require.NoError(t, err)
	local.Wait()

	require.Len(t, got, 1)
	require.Equal(t, int64(7), got[0].Pairs[0].Price)
}
