// Package reactor wires internal/conn's per-connection state machine to
// gnet's multi-reactor event loop, realizing §4.A/§4.H: one acceptor plus a
// fixed worker pool of event-loop goroutines, each owning a disjoint subset
// of connections for their entire lifetime. Grounded on
// other_examples/FumingPower3925-celeris__server.go's gnet.EventHandler
// implementation (OnBoot/OnOpen/OnTraffic/OnClose, gnet.Run with
// WithMulticore/WithNumEventLoop/WithReusePort) and gnet's own documented
// contract that OnTraffic runs on the event-loop goroutine owning that fd,
// so all of Conn's state transitions are single-threaded per connection by
// construction.
package reactor

import (
	"sync/atomic"

	"github.com/panjf2000/gnet/v2"
	"github.com/s00inx/zhttp/internal/conn"
	"github.com/s00inx/zhttp/internal/middleware"
	"github.com/s00inx/zhttp/internal/router"
	"github.com/s00inx/zhttp/internal/tlsengine"
	"go.uber.org/zap"
)

// Handler is the gnet.EventHandler that drives every connection's
// internal/conn.Conn. It carries no per-connection state itself — each
// gnet.Conn gets its own conn.Conn stashed via SetContext, per §5's
// "one allocation per accepted connection, freed on close" resource model.
type Handler struct {
	gnet.BuiltinEventEngine

	router       *router.Router
	chain        *middleware.Chain
	useTLS       bool
	tlsCtx       *tlsengine.SharedContext
	serverOrigin string
	log          *zap.Logger

	engine gnet.Engine
	nextID atomic.Uint64
	active atomic.Int64
}

// Options configures a Handler.
type Options struct {
	Router       *router.Router
	Chain        *middleware.Chain
	UseTLS       bool
	TLSContext   *tlsengine.SharedContext
	ServerOrigin string
	Logger       *zap.Logger
}

// New returns a Handler ready to be passed to gnet.Run.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		router:       opts.Router,
		chain:        opts.Chain,
		useTLS:       opts.UseTLS,
		tlsCtx:       opts.TLSContext,
		serverOrigin: opts.ServerOrigin,
		log:          logger,
	}
}

// ActiveConnections reports the current live connection count, for the
// health/metrics surface of §7.
func (h *Handler) ActiveConnections() int64 {
	return h.active.Load()
}

// OnBoot captures the gnet.Engine handle so Shutdown can later stop it.
func (h *Handler) OnBoot(eng gnet.Engine) gnet.Action {
	h.engine = eng
	h.log.Info("reactor booted")
	return gnet.None
}

// gnetTransport adapts a gnet.Conn to conn.Transport. AsyncWrite is used
// rather than a direct Write so the call never blocks the event-loop
// goroutine on a slow client, matching §4.A's non-blocking send contract.
type gnetTransport struct {
	c gnet.Conn
}

func (t gnetTransport) Send(p []byte) error {
	return t.c.AsyncWrite(p, nil)
}

func (t gnetTransport) Close() error {
	return t.c.Close()
}

// OnOpen creates the connection's state machine and stores it in gnet's
// per-connection context slot.
func (h *Handler) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	id := h.nextID.Add(1)
	cn := conn.New(conn.Options{
		ID:           id,
		Transport:    gnetTransport{c: c},
		Logger:       h.log,
		UseTLS:       h.useTLS,
		TLSContext:   h.tlsCtx,
		Router:       h.router,
		Chain:        h.chain,
		ServerOrigin: h.serverOrigin,
	})
	c.SetContext(cn)
	h.active.Add(1)
	cn.OnConnected()
	return nil, gnet.None
}

// OnTraffic hands all newly-available bytes to the connection in one shot;
// gnet guarantees this runs on the event-loop goroutine that owns c, so
// Conn never needs internal locking.
func (h *Handler) OnTraffic(c gnet.Conn) gnet.Action {
	cn, ok := c.Context().(*conn.Conn)
	if !ok || cn == nil {
		return gnet.Close
	}
	data, err := c.Next(-1)
	if err != nil {
		h.log.Debug("reactor read failed", zap.Error(err))
		return gnet.Close
	}
	// Conn.OnReadable may already have closed the transport (e.g. on a
	// malformed request); gnet notices via the subsequent OnClose callback
	// once the underlying fd actually goes away, so no extra state is kept
	// here to avoid double-closing.
	cn.OnReadable(data)
	return gnet.None
}

// OnClose releases the connection's state machine.
func (h *Handler) OnClose(c gnet.Conn, err error) gnet.Action {
	if cn, ok := c.Context().(*conn.Conn); ok && cn != nil {
		cn.OnDisconnected()
	}
	h.active.Add(-1)
	if err != nil {
		h.log.Debug("connection closed with error", zap.Error(err))
	}
	return gnet.None
}

// Engine returns the gnet.Engine captured in OnBoot, so server.Server can
// call Engine().Stop(ctx) during graceful shutdown.
func (h *Handler) Engine() gnet.Engine {
	return h.engine
}
