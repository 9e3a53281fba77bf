package middleware

import (
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/logging"
	"github.com/rs/zerolog"
)

// RequestLogger returns a step that logs method, path, status and duration
// once the response is complete. Server errors log at error level, client
// errors at warn and everything else at info.
func RequestLogger() goGate.Descriptor {
	return goGate.Pre("request-logger", OrderRequestLogger, func(rc *goGate.RequestContext) error {
		rc.AfterResponse(func(status int, elapsed time.Duration) {
			l := logging.Ctx(rc.Request.Context())
			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = l.Error()
			case status >= 400:
				ev = l.Warn()
			default:
				ev = l.Info()
			}
			ev = ev.Str("method", rc.Request.Method).
				Str("path", rc.UseCase).
				Int("status", status).
				Dur("duration", elapsed).
				Str("ip", goGate.ClientIP(rc.Request.Context()))
			if p, ok := rc.Principal(); ok {
				ev = ev.Str("principal_id", p.ID)
			}
			ev.Msg("request")
		})
		return nil
	})
}
