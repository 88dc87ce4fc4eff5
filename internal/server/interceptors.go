package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// RequestIDHeader carries the caller's request id. One is generated when absent.
const RequestIDHeader = "x-request-id"

// UnaryLogging tags the context with a request id and logs each call.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDHeader); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID))

		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logger.Warn("rpc.error", "req_id", reqID, "method", info.FullMethod, "code", status.Code(err).String(), "error", err, "elapsed_ms", elapsed)
			return resp, err
		}
		logger.Info("rpc.ok", "req_id", reqID, "method", info.FullMethod, "elapsed_ms", elapsed)
		return resp, nil
	}
}
