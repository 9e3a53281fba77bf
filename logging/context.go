package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type requestIDContextKey struct{}

// GenerateRequestID returns a random UUID used as trace id for one request.
func GenerateRequestID() string {
	return uuid.New().String()
}

// MaxRequestIDLen bounds a caller supplied request id.
const MaxRequestIDLen = 128

// AcceptRequestID returns incoming when it is a usable request id and a fresh
// one otherwise. Usable ids are 1 to MaxRequestIDLen bytes of letters,
// digits and ".", "_", ":", "-".
func AcceptRequestID(incoming string) string {
	if validRequestID(incoming) {
		return incoming
	}
	return GenerateRequestID()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == ':', c == '-':
		default:
			return false
		}
	}
	return true
}

// ContextWithRequestID attaches id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// Ctx returns the global logger with request_id added when ctx carries one.
//
//	logging.Ctx(ctx).Info().Str("use_case", uc).Msg("request denied")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}
