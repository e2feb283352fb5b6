package logging

import "context"

type ctxKey struct{}

var fallback = New("agora", nil)

// NewContext returns a copy of ctx carrying l. The agent runtime stamps
// its logger onto the context every policy hook receives.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger carried by ctx. When none is present a
// shared local-only logger comes back, so call sites never nil-check.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return fallback
}
