package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"SealedAuction/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// httpCall serves one gateway route. Errors are gRPC statuses.
type httpCall func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

type route struct {
	method  string
	pattern string
	name    string
	call    httpCall
}

// newGateway maps the HTTP/JSON routes onto the same service methods the gRPC
// server exposes. The x-owner-id header becomes incoming metadata, so both
// transports authorize identically.
func newGateway(s *GRPCServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := s.serviceRoutes()
	if s.deps.Audit != nil {
		routes = append(routes, auditRoutes(s.deps.Audit)...)
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, s.handle(rt.name, rt.call)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func (s *GRPCServer) serviceRoutes() []route {
	svc := s.deps.Service
	return []route{
		{"POST", "/v1/orders", "SubmitOrder", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			req := &SubmitOrderRequest{}
			if err := decodeBody(r, req); err != nil {
				return nil, err
			}
			return svc.SubmitOrder(ctx, req)
		}},
		{"GET", "/v1/orders/{order_id}", "GetOrder", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			id, err := pathInt(p, "order_id")
			if err != nil {
				return nil, err
			}
			return svc.GetOrder(ctx, &OrderRequest{OrderID: id})
		}},
		{"DELETE", "/v1/orders/{order_id}", "CancelOrder", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			id, err := pathInt(p, "order_id")
			if err != nil {
				return nil, err
			}
			return svc.CancelOrder(ctx, &OrderRequest{OrderID: id})
		}},
		{"GET", "/v1/owners/{owner}/orders", "ListOrdersByOwner", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return svc.ListOrdersByOwner(ctx, &ListOrdersRequest{Owner: p["owner"]})
		}},
		{"POST", "/v1/rounds", "TriggerRound", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return svc.TriggerRound(ctx, &TriggerRoundRequest{})
		}},
		{"GET", "/v1/pool", "GetPool", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return svc.GetPool(ctx, &GetPoolRequest{})
		}},
		{"GET", "/v1/settlements", "ListSettlements", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			offset, err := queryInt(r, "offset")
			if err != nil {
				return nil, err
			}
			limit, err := queryInt(r, "limit")
			if err != nil {
				return nil, err
			}
			return svc.ListSettlements(ctx, &ListSettlementsRequest{Offset: offset, Limit: limit})
		}},
		{"GET", "/v1/settlements/{id}", "GetSettlement", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			id, err := pathInt(p, "id")
			if err != nil {
				return nil, err
			}
			return svc.GetSettlement(ctx, &GetSettlementRequest{ID: id})
		}},
		{"POST", "/v1/collateral/deposits", "Deposit", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			req := &CollateralRequest{}
			if err := decodeBody(r, req); err != nil {
				return nil, err
			}
			return svc.Deposit(ctx, req)
		}},
		{"POST", "/v1/collateral/withdrawals", "Withdraw", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			req := &CollateralRequest{}
			if err := decodeBody(r, req); err != nil {
				return nil, err
			}
			return svc.Withdraw(ctx, req)
		}},
		{"GET", "/v1/balances/{asset}", "GetBalance", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return svc.GetBalance(ctx, &GetBalanceRequest{Asset: p["asset"]})
		}},
	}
}

func auditRoutes(audit *query.AuditService) []route {
	return []route{
		{"GET", "/v1/audit/settlements/{id}", "AuditSettlement", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			id, err := pathInt(p, "id")
			if err != nil {
				return nil, err
			}
			rec, err := audit.GetSettlementRecord(ctx, id)
			return rec, auditStatus(err)
		}},
		{"GET", "/v1/audit/orders/{order_id}/trades", "AuditTradesByOrder", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			id, err := pathInt(p, "order_id")
			if err != nil {
				return nil, err
			}
			trades, err := audit.TradesByOrder(ctx, id)
			return trades, auditStatus(err)
		}},
		{"GET", "/v1/audit/integrity", "AuditIntegrity", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			report, err := audit.VerifyIntegrity(ctx)
			return report, auditStatus(err)
		}},
		{"GET", "/v1/audit/owners/{owner}/balances", "AuditBalances", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			owner, err := pathOwner(p)
			if err != nil {
				return nil, err
			}
			balances, err := audit.AccountBalances(ctx, owner)
			return balances, auditStatus(err)
		}},
		{"GET", "/v1/audit/owners/{owner}/orders", "AuditOrderHistory", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			owner, err := pathOwner(p)
			if err != nil {
				return nil, err
			}
			orders, err := audit.OrderHistory(ctx, owner)
			return orders, auditStatus(err)
		}},
	}
}

func pathOwner(p map[string]string) (uuid.UUID, error) {
	owner, err := uuid.Parse(p["owner"])
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "owner: %v", err)
	}
	return owner, nil
}

func (s *GRPCServer) handle(method string, call httpCall) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		ctx := r.Context()
		if owner := r.Header.Get(OwnerHeader); owner != "" {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(OwnerHeader, owner))
		}

		resp, err := call(ctx, r, params)
		s.record(method, start, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func auditStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, query.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.InvalidArgument, "decode body: %v", err)
	}
	return nil
}

func pathInt(params map[string]string, name string) (int64, error) {
	v, err := strconv.ParseInt(params[name], 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer: %q", name, params[name])
	}
	return v, nil
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer: %q", name, raw)
	}
	return v, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{Code: st.Code().String(), Message: st.Message()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
