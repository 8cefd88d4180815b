package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor logs, recovers panics and adds a deadline when the
// caller did not set one.
func UnaryServerInterceptor(log *slog.Logger, guard time.Duration) grpc.UnaryServerInterceptor {
	if guard <= 0 {
		guard = 10 * time.Second
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, guard)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc unary panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, log, "grpc unary", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc stream panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ss.Context(), log, "grpc stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

func logCall(ctx context.Context, log *slog.Logger, msg, method string, start time.Time, err error) {
	code := status.Code(err)
	level := slog.LevelInfo
	switch code {
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
		level = slog.LevelError
	}
	args := append([]any{
		slog.String("method", method),
		slog.String("code", code.String()),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		slog.String("err", errString(err)),
	}, logger.ArgsFromCtx(ctx)...)
	log.Log(ctx, level, msg, args...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
