// Package logger はJSON構造化ログの初期化を行う。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// ServiceName は全ログに付与するserviceフィールドの値。
const ServiceName = "habits"

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。不明な値はInfo。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はwへJSONを書き出すロガーを返す。
// *Context系のメソッドでスパン付きのコンテキストを渡すと、trace_idとspan_idが付く。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	h := &traceHandler{Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}
	return slog.New(h).With(slog.String("service", ServiceName))
}

// SetupDefault はSetupのロガーをslogのデフォルトにする。wがnilならos.Stdout。
func SetupDefault(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, ParseLevel(level)))
}

// traceHandler はレコードにOpenTelemetryのトレース情報を追加する。
// 呼び出し側がtrace_idを明示している場合はそちらを優先する。
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() && !hasAttr(r, "trace_id") {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
		if sc.HasSpanID() {
			r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}
