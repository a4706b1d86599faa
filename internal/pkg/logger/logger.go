// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 初始化全局 zerolog Logger，所有服务在启动时调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 从 context 中取出 Logger。如果 context 中携带了有效的 Span，
// 会自动附加 trace_id 字段，便于日志与链路互查。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traced := l.With().Str("trace_id", spanCtx.TraceID().String()).Logger()
		return &traced
	}
	return l
}

// WithContext 将指定 Logger 存入 context，下游通过 Ctx 取用。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
