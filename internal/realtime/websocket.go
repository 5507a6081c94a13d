package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// Config holds websocket settings
type Config struct {
	// WriteWait is the time allowed to write a frame to the peer
	WriteWait time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	// PongWait is the time allowed to read the next pong from the peer
	PongWait time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	// MaxMessageSize bounds inbound commands
	MaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`
	// AllowedOrigins lists accepted Origin hosts; empty means same host only
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// pingPeriod must be shorter than PongWait
func (c Config) pingPeriod() time.Duration { return c.PongWait * 9 / 10 }

// WSHandler upgrades requests and bridges websocket frames to a gateway session
type WSHandler struct {
	gateway  *fanout.Gateway
	auth     Authenticator
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates the websocket endpoint. A nil authenticator falls back
// to HeaderAuthenticator.
func NewWSHandler(gateway *fanout.Gateway, auth Authenticator, cfg Config, log *slog.Logger) *WSHandler {
	if auth == nil {
		auth = HeaderAuthenticator()
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &WSHandler{
		gateway: gateway,
		auth:    auth,
		cfg:     cfg,
		logger:  log.With(logger.Component("realtime.ws")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(cfg.AllowedOrigins)
	}
	return h
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	session, err := h.gateway.Open(subject)
	if err != nil {
		h.logger.WarnContext(r.Context(), "gateway session rejected", logger.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
			time.Now().Add(h.cfg.WriteWait))
		_ = ws.Close()
		return
	}

	c := &client{ws: ws, cfg: h.cfg}
	defer func() { _ = ws.Close() }()
	h.serve(r.Context(), c, session)
}

// serve blocks until the peer goes away or the hub drops the session
func (h *WSHandler) serve(ctx context.Context, c *client, session *fanout.Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.Close()

	log := h.logger.With(logger.ConnID(session.ID()))
	log.DebugContext(ctx, "websocket connected")

	sub := fanout.NewSubscription(session.Events(), func(ev fanout.Event) {
		if err := c.writeJSON(fanout.EventFrame(ev)); err != nil {
			log.DebugContext(ctx, "event write failed", logger.Error(err))
		}
	})
	go sub.Run(ctx)

	// The hub closes the event channel on shutdown; that ends the connection
	go func() {
		<-sub.Done()
		c.close(websocket.CloseGoingAway, "server shutting down")
	}()

	go c.pingLoop(ctx)

	c.readLoop(ctx, session, log)

	log.DebugContext(ctx, "websocket disconnected", slog.Uint64("dropped_events", session.Dropped()))
}

type client struct {
	ws  *websocket.Conn
	cfg Config

	// gorilla/websocket allows one concurrent writer
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *client) readLoop(ctx context.Context, session *fanout.Session, log *slog.Logger) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.DebugContext(ctx, "websocket read failed", logger.Error(err))
			}
			return
		}

		frame := session.Handle(ctx, data)
		if err := c.writeJSON(frame); err != nil {
			return
		}
	}
}

func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		err := c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(c.cfg.WriteWait))
		c.writeMu.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			_ = c.ws.Close()
			return
		}
		// give the peer a moment to answer the close frame before dropping
		time.AfterFunc(c.cfg.WriteWait, func() { _ = c.ws.Close() })
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	hosts := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			hosts = append(hosts, o)
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(hosts, strings.ToLower(u.Host))
	}
}
