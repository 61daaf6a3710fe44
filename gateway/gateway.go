package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/channeled/core/channel"
)

// Channel names the gateway publishes to and the reply channel prefix it
// mints new channels from.
const (
	ChannelConnect    = "websocket.connect"
	ChannelReceive    = "websocket.receive"
	ChannelDisconnect = "websocket.disconnect"
	ReplyPrefix       = "websocket.send!"
)

// fieldBinary marks a message body as a binary frame rather than text.
const fieldBinary = "binary"

// Layer is the subset of channel layer behavior the gateway needs.
type Layer interface {
	channel.Sender
	channel.Receiver
	NewChannel(ctx context.Context, prefix string) (string, error)
}

// Gateway is an http.Handler that upgrades requests to WebSocket and bridges
// frames onto a channel layer.
type Gateway struct {
	layer          Layer
	upgrader       *websocket.Upgrader
	responseHeader http.Header
	writeTimeout   time.Duration
	logger         *slog.Logger

	connected    atomic.Int64
	active       atomic.Int64
	framesIn     atomic.Int64
	framesOut    atomic.Int64
	backpressure atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithReadBuffer sets the upgrader's read buffer size.
func WithReadBuffer(size int) Option {
	return func(g *Gateway) {
		g.upgrader.ReadBufferSize = size
	}
}

// WithWriteBuffer sets the upgrader's write buffer size.
func WithWriteBuffer(size int) Option {
	return func(g *Gateway) {
		g.upgrader.WriteBufferSize = size
	}
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.upgrader.HandshakeTimeout = timeout
	}
}

// WithOriginCheck sets a custom origin check for the handshake.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = fn
	}
}

// WithAllowAnyOrigin disables origin checking. Use behind a trusted proxy or
// in development only.
func WithAllowAnyOrigin() Option {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithSubprotocols advertises the supported subprotocols during handshake.
func WithSubprotocols(protocols ...string) Option {
	return func(g *Gateway) {
		g.upgrader.Subprotocols = protocols
	}
}

// WithUpgradeHeaders adds response headers to the upgrade response.
func WithUpgradeHeaders(header http.Header) Option {
	return func(g *Gateway) {
		g.responseHeader = header
	}
}

// WithWriteTimeout bounds each write to the client socket.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.writeTimeout = timeout
		}
	}
}

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a WebSocket gateway backed by the given channel layer.
func New(layer Layer, opts ...Option) (*Gateway, error) {
	if layer == nil {
		return nil, ErrLayerNil
	}

	g := &Gateway{
		layer: layer,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: 10 * time.Second,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, g.responseHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.logger.DebugContext(r.Context(), "websocket upgrade rejected", slog.Any("error", err))
		return
	}

	g.connected.Add(1)
	g.active.Add(1)
	defer g.active.Add(-1)

	g.serve(r.Context(), conn, r.URL.Path)
}

// serve owns the connection: it mints the reply channel, announces the
// connect, forwards frames both ways, and announces the disconnect.
func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn, path string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	reply, err := g.layer.NewChannel(ctx, ReplyPrefix)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to mint reply channel", slog.Any("error", err))
		g.closeWith(conn, websocket.CloseInternalServerErr, "no reply channel")
		return
	}

	fields := map[string]string{
		channel.FieldPath:         path,
		channel.FieldReplyChannel: reply,
	}

	if err := g.layer.Send(ctx, ChannelConnect, channel.NewMessage(nil, fields)); err != nil {
		if errors.Is(err, channel.ErrChannelFull) {
			g.backpressure.Add(1)
			g.closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		g.logger.ErrorContext(ctx, "failed to announce connect", slog.Any("error", err))
		g.closeWith(conn, websocket.CloseInternalServerErr, "send failed")
		return
	}

	go g.forward(ctx, cancel, conn, reply)

	g.readLoop(ctx, conn, fields)

	// Disconnect runs on a detached context so a closed request context does
	// not drop the announcement.
	dctx, dcancel := context.WithTimeout(context.Background(), g.writeTimeout)
	defer dcancel()
	if err := g.layer.Send(dctx, ChannelDisconnect, channel.NewMessage(nil, fields)); err != nil {
		g.logger.WarnContext(dctx, "failed to announce disconnect",
			slog.String("reply_channel", reply),
			slog.Any("error", err))
	}
}

// readLoop pumps client frames into the layer until the socket closes or the
// layer pushes back.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, fields map[string]string) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.DebugContext(ctx, "websocket read failed", slog.Any("error", err))
			}
			return
		}

		frameFields := fields
		if msgType == websocket.BinaryMessage {
			frameFields = make(map[string]string, len(fields)+1)
			for k, v := range fields {
				frameFields[k] = v
			}
			frameFields[fieldBinary] = "true"
		}

		if err := g.layer.Send(ctx, ChannelReceive, channel.NewMessage(data, frameFields)); err != nil {
			if errors.Is(err, channel.ErrChannelFull) {
				g.backpressure.Add(1)
				g.closeWith(conn, websocket.CloseTryAgainLater, "server busy")
				return
			}
			g.logger.ErrorContext(ctx, "failed to forward frame", slog.Any("error", err))
			return
		}
		g.framesIn.Add(1)
	}
}

// forward pumps reply-channel messages back to the client socket. A message
// carrying the close field shuts the connection down after any payload is
// written.
func (g *Gateway) forward(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, reply string) {
	// Closing the socket unblocks the read loop when the forwarder exits
	// first.
	defer conn.Close()
	defer cancel()

	for {
		_, msg, err := g.layer.Receive(ctx, []string{reply}, true)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				g.logger.ErrorContext(ctx, "reply channel receive failed",
					slog.String("reply_channel", reply),
					slog.Any("error", err))
			}
			return
		}

		if len(msg.Body) > 0 {
			msgType := websocket.TextMessage
			if msg.Field(fieldBinary) == "true" {
				msgType = websocket.BinaryMessage
			}
			_ = conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
			if err := conn.WriteMessage(msgType, msg.Body); err != nil {
				g.logger.DebugContext(ctx, "websocket write failed", slog.Any("error", err))
				return
			}
			g.framesOut.Add(1)
		}

		if msg.Field(channel.FieldCloseConnection) != "" {
			g.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

// closeWith sends a close frame with the given code, then closes the socket.
func (g *Gateway) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(g.writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// Stats is a snapshot of gateway counters.
type Stats struct {
	Connected    int64
	Active       int64
	FramesIn     int64
	FramesOut    int64
	Backpressure int64
}

// Stats returns current gateway statistics for observability and monitoring.
func (g *Gateway) Stats() Stats {
	return Stats{
		Connected:    g.connected.Load(),
		Active:       g.active.Load(),
		FramesIn:     g.framesIn.Load(),
		FramesOut:    g.framesOut.Load(),
		Backpressure: g.backpressure.Load(),
	}
}
