package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"SealedAuction/internal/core"
	"SealedAuction/internal/event"
	"SealedAuction/internal/observability"
	"SealedAuction/internal/server"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type recordingRequester struct {
	reqs []*event.DecryptionRequest
}

func (r *recordingRequester) RequestDecryption(ctx context.Context, req *event.DecryptionRequest) error {
	r.reqs = append(r.reqs, req)
	return nil
}

type fixture struct {
	engine  *core.Engine
	oracle  *recordingRequester
	srv     *server.GRPCServer
	metrics *observability.Metrics
	http    *httptest.Server
}

// newFixture serves a fresh engine at the default price scale of 100.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	oracle := &recordingRequester{}
	cfg := core.DefaultConfig()
	e, err := core.NewEngine(cfg, oracle, nil, nil, nil)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	health := observability.NewHealthChecker()
	health.SetReady(true)

	srv := server.NewGRPCServer("", "", &server.ServerDeps{
		Service:       server.NewAuctionService(e, cfg.PriceScale),
		HealthChecker: health,
		Metrics:       metrics,
		Logger:        zerolog.Nop(),
	})
	handler, err := srv.HTTPHandler()
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return &fixture{engine: e, oracle: oracle, srv: srv, metrics: metrics, http: ts}
}

// do sends a JSON request as owner (uuid.Nil sends no identity) and decodes
// the response into out when it is non-nil.
func (f *fixture) do(t *testing.T, method, path string, owner uuid.UUID, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(t, err)
	if owner != uuid.Nil {
		req.Header.Set(server.OwnerHeader, owner.String())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) deposit(t *testing.T, owner uuid.UUID, asset, amount string) {
	t.Helper()
	code := f.do(t, "POST", "/v1/collateral/deposits", owner, server.CollateralRequest{
		Ref: uuid.NewString(), Asset: asset, Amount: amount,
	}, nil)
	require.Equal(t, http.StatusOK, code)
}

func (f *fixture) submit(t *testing.T, owner uuid.UUID, side, deposit string) int64 {
	t.Helper()
	var resp server.SubmitOrderResponse
	code := f.do(t, "POST", "/v1/orders", owner, server.SubmitOrderRequest{
		Side: side, Payload: []byte("sealed"), Deposit: deposit,
	}, &resp)
	require.Equal(t, http.StatusOK, code)
	return resp.OrderID
}

// settleRound crosses one fresh buyer and seller at 12.00 / 10.00 and
// returns their order ids.
func (f *fixture) settleRound(t *testing.T) (int64, int64) {
	t.Helper()
	buyer, seller := uuid.New(), uuid.New()
	f.deposit(t, buyer, "QUOTE", "120")
	f.deposit(t, seller, "BASE", "10")
	buyID := f.submit(t, buyer, "buy", "120")
	sellID := f.submit(t, seller, "sell", "10")

	roundID, err := f.engine.Trigger(context.Background())
	require.NoError(t, err)
	_, err = f.engine.OnDecryptedBatch(context.Background(), &event.DecryptedBatch{
		RoundID: roundID, BuyCount: 1, SellCount: 1,
		Pairs: []event.DecryptedPair{{Price: 1200, Quantity: 10}, {Price: 1000, Quantity: 10}},
	})
	require.NoError(t, err)
	return buyID, sellID
}

// ============================================================================
// HTTP gateway
// ============================================================================

func TestHTTP_FullRound(t *testing.T) {
	f := newFixture(t)
	buyer, seller := uuid.New(), uuid.New()

	f.deposit(t, buyer, "QUOTE", "120")
	f.deposit(t, seller, "BASE", "10")
	buyID := f.submit(t, buyer, "buy", "120")
	sellID := f.submit(t, seller, "sell", "10")

	var pool server.PoolView
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/pool", uuid.Nil, nil, &pool))
	require.Equal(t, 1, pool.PendingBuyCount)
	require.Equal(t, "120", pool.TotalBuyDeposit)
	require.Equal(t, "idle", pool.State)

	var trig server.TriggerRoundResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/rounds", uuid.Nil, nil, &trig))
	require.Equal(t, int64(1), trig.RoundID)

	// Prices are at scale 100: bid 12.00, ask 10.00.
	_, err := f.engine.OnDecryptedBatch(context.Background(), &event.DecryptedBatch{
		RoundID: trig.RoundID, BuyCount: 1, SellCount: 1,
		Pairs: []event.DecryptedPair{{Price: 1200, Quantity: 10}, {Price: 1000, Quantity: 10}},
	})
	require.NoError(t, err)

	var rec server.SettlementView
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/settlements/1", uuid.Nil, nil, &rec))
	require.Equal(t, "11.00", rec.ClearingPrice)
	require.Equal(t, "10", rec.MatchedVolume)
	require.Len(t, rec.Trades, 1)
	require.Equal(t, buyID, rec.Trades[0].BuyOrderID)
	require.Equal(t, sellID, rec.Trades[0].SellOrderID)
	require.Len(t, rec.StateHash, 64)

	var page server.ListSettlementsResponse
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/settlements", uuid.Nil, nil, &page))
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Settlements, 1)

	var order server.OrderView
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/orders/1", uuid.Nil, nil, &order))
	require.Equal(t, "matched", order.Status)
	require.Equal(t, "11.00", order.SettledPrice)
	require.Equal(t, "10", order.Refunded)

	var bal server.BalanceView
	f.do(t, "GET", "/v1/balances/QUOTE", seller, nil, &bal)
	require.Equal(t, "110", bal.Available)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	alice, mallory := uuid.New(), uuid.New()
	f.deposit(t, alice, "QUOTE", "50")
	id := f.submit(t, alice, "buy", "50")

	cases := []struct {
		name   string
		method string
		path   string
		owner  uuid.UUID
		body   any
		want   int
	}{
		{"no identity", "POST", "/v1/orders", uuid.Nil, server.SubmitOrderRequest{Side: "buy", Payload: []byte("x"), Deposit: "1"}, http.StatusUnauthorized},
		{"fractional deposit", "POST", "/v1/orders", alice, server.SubmitOrderRequest{Side: "buy", Payload: []byte("x"), Deposit: "1.5"}, http.StatusBadRequest},
		{"bad side", "POST", "/v1/orders", alice, server.SubmitOrderRequest{Side: "hold", Payload: []byte("x"), Deposit: "1"}, http.StatusBadRequest},
		{"empty payload", "POST", "/v1/orders", alice, server.SubmitOrderRequest{Side: "buy", Deposit: "1"}, http.StatusBadRequest},
		{"unknown order", "GET", "/v1/orders/99", uuid.Nil, nil, http.StatusNotFound},
		{"non-numeric id", "GET", "/v1/orders/abc", uuid.Nil, nil, http.StatusBadRequest},
		{"not owner", "DELETE", "/v1/orders/1", mallory, nil, http.StatusForbidden},
		{"unknown settlement", "GET", "/v1/settlements/1", uuid.Nil, nil, http.StatusNotFound},
		{"unknown asset", "GET", "/v1/balances/DOGE", alice, nil, http.StatusBadRequest},
		{"one-sided trigger", "POST", "/v1/rounds", uuid.Nil, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			got := f.do(t, tc.method, tc.path, tc.owner, tc.body, &body)
			require.Equal(t, tc.want, got, "message: %s", body.Message)
			require.NotEmpty(t, body.Code)
		})
	}

	// The order is untouched by the rejected cancel.
	var cancel server.CancelOrderResponse
	require.Equal(t, http.StatusOK, f.do(t, "DELETE", "/v1/orders/1", alice, nil, &cancel))
	require.Equal(t, id, cancel.OrderID)
	require.Equal(t, "50", cancel.Refunded)

	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.APIRequests.WithLabelValues("CancelOrder", "PermissionDenied")))
}

func TestHTTP_OrderVisibility(t *testing.T) {
	f := newFixture(t)
	alice, mallory := uuid.New(), uuid.New()
	f.deposit(t, alice, "QUOTE", "50")
	pending := f.submit(t, alice, "buy", "50")
	path := fmt.Sprintf("/v1/orders/%d", pending)

	require.Equal(t, http.StatusUnauthorized, f.do(t, "GET", path, uuid.Nil, nil, nil))
	require.Equal(t, http.StatusForbidden, f.do(t, "GET", path, mallory, nil, nil))

	var view server.OrderView
	require.Equal(t, http.StatusOK, f.do(t, "GET", path, alice, nil, &view))
	require.Equal(t, "pending", view.Status)

	// Once the order is cancelled its round is over and anyone may audit it.
	require.Equal(t, http.StatusOK, f.do(t, "DELETE", path, alice, nil, nil))
	require.Equal(t, http.StatusOK, f.do(t, "GET", path, mallory, nil, &view))
	require.Equal(t, "cancelled", view.Status)

	buyID, _ := f.settleRound(t)
	require.Equal(t, http.StatusOK, f.do(t, "GET", fmt.Sprintf("/v1/orders/%d", buyID), uuid.Nil, nil, &view))
	require.Equal(t, "matched", view.Status)
}

func TestHTTP_ListSettlementsPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.settleRound(t)
	}

	cases := []struct {
		name  string
		query string
		want  int
		ids   []int64
	}{
		{"default page", "", http.StatusOK, []int64{1, 2, 3}},
		{"window", "?offset=1&limit=1", http.StatusOK, []int64{2}},
		{"huge limit", "?offset=1&limit=9223372036854775807", http.StatusOK, []int64{2, 3}},
		{"past end", "?offset=3", http.StatusOK, nil},
		{"huge offset", "?offset=9223372036854775807&limit=9223372036854775807", http.StatusOK, nil},
		{"negative offset", "?offset=-1", http.StatusBadRequest, nil},
		{"negative limit", "?limit=-1", http.StatusBadRequest, nil},
		{"non-numeric", "?limit=ten", http.StatusBadRequest, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var page server.ListSettlementsResponse
			got := f.do(t, "GET", "/v1/settlements"+tc.query, uuid.Nil, nil, &page)
			require.Equal(t, tc.want, got)
			if tc.want != http.StatusOK {
				return
			}
			require.Equal(t, 3, page.Total)
			require.Len(t, page.Settlements, len(tc.ids))
			for i, id := range tc.ids {
				require.Equal(t, id, page.Settlements[i].ID)
				require.Equal(t, "11.00", page.Settlements[i].ClearingPrice)
			}
		})
	}
}

func TestHTTP_WithdrawIsIdempotentByRef(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.deposit(t, owner, "BASE", "30")

	req := server.CollateralRequest{Ref: uuid.NewString(), Asset: "BASE", Amount: "20"}
	var bal server.BalanceView
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/collateral/withdrawals", owner, req, &bal))
	require.Equal(t, "10", bal.Available)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/v1/collateral/withdrawals", owner, req, &bal))
	require.Equal(t, "10", bal.Available, "replayed ref must not withdraw twice")

	over := server.CollateralRequest{Ref: uuid.NewString(), Asset: "BASE", Amount: "11"}
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/v1/collateral/withdrawals", owner, over, nil))
}

func TestHTTP_ListOrdersAndHealth(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.deposit(t, owner, "BASE", "10")
	f.submit(t, owner, "sell", "4")
	f.submit(t, owner, "sell", "6")

	var list server.ListOrdersResponse
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/owners/"+owner.String()+"/orders", owner, nil, &list))
	require.Len(t, list.Orders, 2)
	require.Equal(t, "6", list.Orders[1].Deposit)
	require.Equal(t, "pending", list.Orders[0].Status)

	var stranger server.ListOrdersResponse
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/v1/owners/"+owner.String()+"/orders", uuid.New(), nil, &stranger))
	require.Empty(t, stranger.Orders, "pending orders are visible to their owner only")

	require.Equal(t, http.StatusOK, f.do(t, "GET", "/healthz", uuid.Nil, nil, nil))
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/readyz", uuid.Nil, nil, nil))
}

// ============================================================================
// gRPC with the JSON codec
// ============================================================================

func dialBufconn(t *testing.T, srv *server.GRPCServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in, out any) error {
	return conn.Invoke(ctx, "/"+server.ServiceName+"/"+method, in, out, grpc.CallContentSubtype(server.CodecName))
}

func TestGRPC_SubmitAndQuery(t *testing.T) {
	f := newFixture(t)
	conn := dialBufconn(t, f.srv)

	owner := uuid.New()
	ctx := metadata.AppendToOutgoingContext(context.Background(), server.OwnerHeader, owner.String())

	var bal server.BalanceView
	require.NoError(t, invoke(ctx, conn, "Deposit", &server.CollateralRequest{Ref: uuid.NewString(), Asset: "QUOTE", Amount: "100"}, &bal))
	require.Equal(t, "100", bal.Available)

	var sub server.SubmitOrderResponse
	require.NoError(t, invoke(ctx, conn, "SubmitOrder", &server.SubmitOrderRequest{Side: "buy", Payload: []byte{1, 2, 3}, Deposit: "60"}, &sub))
	require.Equal(t, int64(1), sub.OrderID)

	err := invoke(ctx, conn, "SubmitOrder", &server.SubmitOrderRequest{Side: "buy", Payload: []byte{1}, Deposit: "60"}, &sub)
	require.Equal(t, codes.FailedPrecondition, status.Code(err), "only 40 left after escrow")

	var order server.OrderView
	require.NoError(t, invoke(ctx, conn, "GetOrder", &server.OrderRequest{OrderID: 1}, &order))
	require.Equal(t, owner.String(), order.Owner)
	require.Equal(t, "60", order.Deposit)

	err = invoke(context.Background(), conn, "GetBalance", &server.GetBalanceRequest{Asset: "QUOTE"}, &bal)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	var count server.SettlementCountResponse
	require.NoError(t, invoke(ctx, conn, "GetSettlementCount", &server.GetSettlementCountRequest{}, &count))
	require.Equal(t, 0, count.Count)

	var page server.ListSettlementsResponse
	require.NoError(t, invoke(ctx, conn, "ListSettlements", &server.ListSettlementsRequest{Limit: 10}, &page))
	require.Zero(t, page.Total)
	require.Empty(t, page.Settlements)
}

func TestGRPC_HealthServing(t *testing.T) {
	f := newFixture(t)
	conn := dialBufconn(t, f.srv)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: server.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
