package server

import (
	"context"
	"errors"

	"SealedAuction/internal/core"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{core.ErrInvalidPayload, codes.InvalidArgument},
	{core.ErrInvalidDeposit, codes.InvalidArgument},
	{core.ErrInvalidSide, codes.InvalidArgument},
	{core.ErrInvalidAmount, codes.InvalidArgument},
	{core.ErrUnknownAsset, codes.InvalidArgument},
	{core.ErrNotOwner, codes.PermissionDenied},
	{core.ErrOrderNotFound, codes.NotFound},
	{core.ErrSettlementNotFound, codes.NotFound},
	{core.ErrTooManyOrders, codes.ResourceExhausted},
	{core.ErrOrderNotPending, codes.FailedPrecondition},
	{core.ErrOrderInRound, codes.FailedPrecondition},
	{core.ErrAlreadyMatching, codes.FailedPrecondition},
	{core.ErrNoPendingOrders, codes.FailedPrecondition},
	{core.ErrInsufficientFunds, codes.FailedPrecondition},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// toStatus maps an engine error to a gRPC status. Errors that already carry a
// status pass through; anything unrecognized is Unavailable, which is what a
// failed hand-off to the decryption oracle looks like to a caller.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range codeOf {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Unavailable, err.Error())
}
