package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SealedAuction/internal/core"
	"SealedAuction/internal/event"
	"SealedAuction/internal/ledger"
	fpmath "SealedAuction/internal/math"
	"SealedAuction/internal/pool"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sealedauction.v1.AuctionService"

// OwnerHeader carries the caller's participant id. Authenticating it is the
// job of whatever sits in front of this service.
const OwnerHeader = "x-owner-id"

// AuctionServer is the gRPC surface of the auction.
type AuctionServer interface {
	SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error)
	CancelOrder(context.Context, *OrderRequest) (*CancelOrderResponse, error)
	TriggerRound(context.Context, *TriggerRoundRequest) (*TriggerRoundResponse, error)
	GetOrder(context.Context, *OrderRequest) (*OrderView, error)
	ListOrdersByOwner(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetPool(context.Context, *GetPoolRequest) (*PoolView, error)
	GetSettlement(context.Context, *GetSettlementRequest) (*SettlementView, error)
	ListSettlements(context.Context, *ListSettlementsRequest) (*ListSettlementsResponse, error)
	GetSettlementCount(context.Context, *GetSettlementCountRequest) (*SettlementCountResponse, error)
	Deposit(context.Context, *CollateralRequest) (*BalanceView, error)
	Withdraw(context.Context, *CollateralRequest) (*BalanceView, error)
	GetBalance(context.Context, *GetBalanceRequest) (*BalanceView, error)
}

// AuctionService adapts the engine to the wire messages.
type AuctionService struct {
	engine   *core.Engine
	priceCfg fpmath.DecimalConfig
}

var _ AuctionServer = (*AuctionService)(nil)

func NewAuctionService(engine *core.Engine, priceScale int64) *AuctionService {
	return &AuctionService{engine: engine, priceCfg: fpmath.NewDecimalConfig(priceScale)}
}

// ServiceDesc registers AuctionService without generated stubs; messages go
// through the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuctionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitOrder", (*AuctionService).SubmitOrder),
		unary("CancelOrder", (*AuctionService).CancelOrder),
		unary("TriggerRound", (*AuctionService).TriggerRound),
		unary("GetOrder", (*AuctionService).GetOrder),
		unary("ListOrdersByOwner", (*AuctionService).ListOrdersByOwner),
		unary("GetPool", (*AuctionService).GetPool),
		unary("GetSettlement", (*AuctionService).GetSettlement),
		unary("ListSettlements", (*AuctionService).ListSettlements),
		unary("GetSettlementCount", (*AuctionService).GetSettlementCount),
		unary("Deposit", (*AuctionService).Deposit),
		unary("Withdraw", (*AuctionService).Withdraw),
		unary("GetBalance", (*AuctionService).GetBalance),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](name string, call func(*AuctionService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*AuctionService)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// ============================================================================
// Orders
// ============================================================================

func (s *AuctionService) SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	owner, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	side, err := pool.ParseSide(req.Side)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "side: %v", err)
	}
	deposit, err := parseAmount("deposit", req.Deposit)
	if err != nil {
		return nil, err
	}

	id, err := s.engine.Submit(ctx, owner, side, req.Payload, deposit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitOrderResponse{OrderID: int64(id)}, nil
}

func (s *AuctionService) CancelOrder(ctx context.Context, req *OrderRequest) (*CancelOrderResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Cancel(ctx, caller, pool.OrderID(req.OrderID)); err != nil {
		return nil, toStatus(err)
	}
	o, err := s.engine.Order(pool.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelOrderResponse{OrderID: req.OrderID, Refunded: formatAmount(o.Refunded)}, nil
}

// GetOrder shows a settled, cancelled or refunded order to anyone. While the
// order is still pending only its owner may read it.
func (s *AuctionService) GetOrder(ctx context.Context, req *OrderRequest) (*OrderView, error) {
	o, err := s.engine.Order(pool.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	if !o.Status.IsTerminal() {
		caller, err := callerID(ctx)
		if err != nil {
			return nil, err
		}
		if caller != o.Owner {
			return nil, toStatus(core.ErrNotOwner)
		}
	}
	return s.orderView(o), nil
}

func (s *AuctionService) ListOrdersByOwner(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	var owner uuid.UUID
	var err error
	if req.Owner == "" {
		owner, err = callerID(ctx)
	} else {
		owner, err = parseOwner(req.Owner)
	}
	if err != nil {
		return nil, err
	}

	// Other callers only see orders whose round is over.
	caller, callerErr := callerID(ctx)
	self := callerErr == nil && caller == owner

	orders := s.engine.OrdersByOwner(owner)
	resp := &ListOrdersResponse{Orders: make([]*OrderView, 0, len(orders))}
	for _, o := range orders {
		if !self && !o.Status.IsTerminal() {
			continue
		}
		resp.Orders = append(resp.Orders, s.orderView(o))
	}
	return resp, nil
}

// ============================================================================
// Rounds
// ============================================================================

func (s *AuctionService) TriggerRound(ctx context.Context, req *TriggerRoundRequest) (*TriggerRoundResponse, error) {
	roundID, err := s.engine.Trigger(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TriggerRoundResponse{RoundID: roundID}, nil
}

func (s *AuctionService) GetPool(ctx context.Context, req *GetPoolRequest) (*PoolView, error) {
	agg := s.engine.PoolAggregates()
	return &PoolView{
		PendingBuyCount:  agg.PendingBuyCount,
		PendingSellCount: agg.PendingSellCount,
		TotalBuyDeposit:  formatAmount(agg.TotalBuyDeposit),
		TotalSellDeposit: formatAmount(agg.TotalSellDeposit),
		State:            s.engine.State().String(),
		RoundsInFlight:   s.engine.RoundsInFlight(),
	}, nil
}

func (s *AuctionService) GetSettlement(ctx context.Context, req *GetSettlementRequest) (*SettlementView, error) {
	rec, err := s.engine.Settlement(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.settlementView(rec), nil
}

const (
	defaultSettlementPage = 50
	maxSettlementPage     = 500
)

func (s *AuctionService) ListSettlements(ctx context.Context, req *ListSettlementsRequest) (*ListSettlementsResponse, error) {
	if req.Offset < 0 || req.Limit < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "offset and limit must not be negative")
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultSettlementPage
	}
	limit = min(limit, maxSettlementPage)

	records := s.engine.Settlements(req.Offset, limit)
	resp := &ListSettlementsResponse{
		Total:       s.engine.SettlementCount(),
		Settlements: make([]*SettlementView, len(records)),
	}
	for i, rec := range records {
		resp.Settlements[i] = s.settlementView(rec)
	}
	return resp, nil
}

func (s *AuctionService) settlementView(rec *core.SettlementRecord) *SettlementView {
	view := &SettlementView{
		ID:              rec.ID,
		RoundID:         rec.RoundID,
		ClearingPrice:   fpmath.Format(rec.ClearingPrice, s.priceCfg),
		MatchedVolume:   formatAmount(rec.MatchedVolume),
		TradeCount:      rec.TradeCount,
		Timestamp:       rec.Timestamp,
		MatchedOrderIDs: make([]int64, len(rec.MatchedOrderIDs)),
		Trades:          make([]*TradeView, len(rec.Trades)),
		StateHash:       hex.EncodeToString(rec.StateHash[:]),
	}
	for i, id := range rec.MatchedOrderIDs {
		view.MatchedOrderIDs[i] = int64(id)
	}
	for i, t := range rec.Trades {
		view.Trades[i] = &TradeView{
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Price:       fpmath.Format(t.Price, s.priceCfg),
			Quantity:    formatAmount(t.Quantity),
		}
	}
	return view
}

func (s *AuctionService) GetSettlementCount(ctx context.Context, req *GetSettlementCountRequest) (*SettlementCountResponse, error) {
	return &SettlementCountResponse{Count: s.engine.SettlementCount()}, nil
}

// ============================================================================
// Collateral
// ============================================================================

func (s *AuctionService) Deposit(ctx context.Context, req *CollateralRequest) (*BalanceView, error) {
	owner, ref, assetID, amount, err := s.collateral(ctx, req)
	if err != nil {
		return nil, err
	}
	err = s.engine.Deposit(ctx, &event.CollateralDeposit{
		DepositID: ref,
		UserID:    owner,
		Asset:     req.Asset,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return s.balanceView(owner, req.Asset, assetID), nil
}

func (s *AuctionService) Withdraw(ctx context.Context, req *CollateralRequest) (*BalanceView, error) {
	owner, ref, assetID, amount, err := s.collateral(ctx, req)
	if err != nil {
		return nil, err
	}
	err = s.engine.Withdraw(ctx, &event.CollateralWithdrawal{
		WithdrawalID: ref,
		UserID:       owner,
		Asset:        req.Asset,
		Amount:       amount,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return s.balanceView(owner, req.Asset, assetID), nil
}

func (s *AuctionService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceView, error) {
	owner, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	assetID, ok := ledger.GetAssetID(req.Asset)
	if !ok {
		return nil, toStatus(fmt.Errorf("%w: %q", core.ErrUnknownAsset, req.Asset))
	}
	return s.balanceView(owner, req.Asset, assetID), nil
}

func (s *AuctionService) collateral(ctx context.Context, req *CollateralRequest) (uuid.UUID, uuid.UUID, ledger.AssetID, int64, error) {
	owner, err := callerID(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, 0, err
	}
	ref, err := uuid.Parse(req.Ref)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, 0, status.Errorf(codes.InvalidArgument, "ref must be a UUID: %v", err)
	}
	assetID, ok := ledger.GetAssetID(req.Asset)
	if !ok {
		return uuid.Nil, uuid.Nil, 0, 0, toStatus(fmt.Errorf("%w: %q", core.ErrUnknownAsset, req.Asset))
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, 0, err
	}
	return owner, ref, assetID, amount, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *AuctionService) orderView(o *pool.Order) *OrderView {
	return &OrderView{
		OrderID:       int64(o.ID),
		Owner:         o.Owner.String(),
		Side:          o.Side.String(),
		Status:        o.Status.String(),
		Deposit:       formatAmount(o.Deposit),
		RoundID:       o.RoundID,
		SettledPrice:  fpmath.Format(o.SettledPrice, s.priceCfg),
		SettledAmount: formatAmount(o.SettledAmount),
		Refunded:      formatAmount(o.Refunded),
		CreatedAt:     o.CreatedAt,
	}
}

func (s *AuctionService) balanceView(owner uuid.UUID, asset string, assetID ledger.AssetID) *BalanceView {
	return &BalanceView{
		Owner:     owner.String(),
		Asset:     asset,
		Available: formatAmount(s.engine.Balance(owner, assetID)),
	}
}

// callerID reads the participant id from incoming metadata.
func callerID(ctx context.Context) (uuid.UUID, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(OwnerHeader)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return uuid.Nil, status.Errorf(codes.Unauthenticated, "%s is required", OwnerHeader)
	}
	id, err := uuid.Parse(strings.TrimSpace(vals[0]))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.Unauthenticated, "invalid %s: %v", OwnerHeader, err)
	}
	return id, nil
}

func parseOwner(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid owner: %v", err)
	}
	return id, nil
}

// parseAmount accepts a whole, positive decimal string such as "150" or "1.5e2".
func parseAmount(field, s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	if !d.IsInteger() {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number of units: %s", field, s)
	}
	if !d.IsPositive() {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be positive: %s", field, s)
	}
	if d.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s out of range: %s", field, s)
	}
	return d.IntPart(), nil
}

const maxAmount = 1<<63 - 1

func formatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}
