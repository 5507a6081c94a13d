package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/ridekit/pkg/httpserver"
	"github.com/dmitrymomot/ridekit/pkg/requestid"
)

// RouterOptions configures the realtime router
type RouterOptions struct {
	// WebSocket serves /ws; the route is omitted when nil
	WebSocket http.Handler
	// Checks back /readyz
	Checks []httpserver.Check
	// ReadinessTimeout bounds all readiness checks of one probe
	ReadinessTimeout time.Duration
	Logger           *slog.Logger
}

// NewRouter mounts the health probes and the websocket endpoint.
//
//	r := realtime.NewRouter(realtime.RouterOptions{
//		WebSocket: realtime.NewWSHandler(gateway, nil, cfg, log),
//		Checks:    []httpserver.Check{pg.Healthcheck(pool)},
//	})
func NewRouter(opts RouterOptions) chi.Router {
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = 3 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(opts.Logger, opts.ReadinessTimeout, opts.Checks...))

	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket.ServeHTTP)
	}

	return r
}
