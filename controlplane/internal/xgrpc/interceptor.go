package xgrpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LogValuer is implemented by requests that control their own access log
// representation, for example to hide bulky payloads.
type LogValuer interface {
	AsLogValue() any
}

// AccessLogInterceptor returns a gRPC unary server interceptor that logs
// requests and responses.
//
// The interceptor logs:
// - Debug: method entry with the request
// - Info: successful completion with duration and status
// - Warn: calls rejected with a client-side status
// - Error: other failed calls with duration, status and error message
func AccessLogInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		now := time.Now()

		fields := []any{zap.String("method", info.FullMethod)}
		if service, method, err := ParseFullMethod(info.FullMethod); err == nil {
			fields = []any{zap.String("service", service), zap.String("method", method)}
		}

		if log.Level().Enabled(zap.DebugLevel) {
			log.Debugw("started gRPC execution", append(fields, requestField(req))...)
		}

		resp, err := handler(ctx, req)
		duration := time.Since(now)
		st, _ := status.FromError(err)

		fields = append(fields,
			zap.String("status", st.Code().String()),
			zap.Duration("duration", duration),
		)

		switch {
		case err == nil:
			log.Infow("completed gRPC execution", fields...)
		case isClientError(st.Code()):
			log.Warnw("rejected gRPC execution", append(fields, zap.Error(err))...)
		default:
			log.Errorw("failed to execute gRPC", append(fields, zap.Error(err))...)
		}

		return resp, err
	}
}

func requestField(req any) zap.Field {
	if v, ok := req.(LogValuer); ok {
		return zap.Any("request", v.AsLogValue())
	}

	return zap.Any("request", req)
}

func isClientError(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.PermissionDenied,
		codes.FailedPrecondition,
		codes.ResourceExhausted,
		codes.Unimplemented:
		return true
	default:
		return false
	}
}
