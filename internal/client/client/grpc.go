package client

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/lecom/internal/common"
)

var authorizationMetadataKey = strings.ToLower(common.AuthorizationHeaderName)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(authorizationMetadataKey)
	if token != "" {
		md.Set(authorizationMetadataKey, common.BearerValue(token))
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// UnaryClientInterceptor authenticates unary gRPC calls with the shared
// credential store. An Unauthenticated status triggers one refresh through
// the same coordinator as Send, then one retry.
func (p *Pipeline) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		err := invoker(withAccessToken(ctx, p.store.Get().AccessToken), method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return MapRPCError(err)
		}

		fresh, rerr := p.refresher.Refresh(ctx)
		if rerr == nil && fresh == "" {
			rerr = common.ErrUnauthenticated
		}
		if rerr != nil {
			p.logger.Info(ctx, "pipeline.refresh_failed", "rpc", method, "error", rerr)
			return fmt.Errorf("%w: %w", MapRPCError(err), rerr)
		}

		p.metrics.Retry()
		return MapRPCError(invoker(withAccessToken(ctx, fresh), method, req, reply, cc, opts...))
	}
}

// MapRPCError wraps a gRPC status error with the matching sentinel. The
// status stays reachable through status.FromError.
func MapRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}

	var sentinel error
	switch st.Code() {
	case codes.Unauthenticated:
		sentinel = common.ErrUnauthenticated
	case codes.PermissionDenied:
		sentinel = common.ErrForbidden
	case codes.Unavailable, codes.DeadlineExceeded:
		sentinel = common.ErrUnavailable
	default:
		sentinel = common.ErrRequestFailed
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
