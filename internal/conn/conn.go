// Package conn implements the per-connection state machine of §4.F, tying
// together internal/buf, internal/tlsengine, internal/httpproto,
// internal/router, and internal/middleware. Grounded on
// server/engine/session.go's one-Session-per-fd arena (§3's Connection
// lifecycle maps onto Conn's state field) and on
// original_source/source/http/http_server.cpp's on_connection/on_message
// event shape.
package conn

import (
	"time"

	"github.com/s00inx/zhttp/internal/buf"
	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/s00inx/zhttp/internal/middleware"
	"github.com/s00inx/zhttp/internal/router"
	"github.com/s00inx/zhttp/internal/tlsengine"
	"go.uber.org/zap"
)

// State is the connection lifecycle of §3:
// Accepted -> (TlsHandshaking)? -> ReadingRequest -> Dispatching -> Writing
// -> (ReadingRequest | Closing).
type State uint8

const (
	Accepted State = iota
	TlsHandshaking
	ReadingRequest
	Dispatching
	Writing
	Closing
)

// Transport is the minimal capability Conn needs from whatever owns the
// socket — the reactor package's gnet.Conn wrapper implements this. Conn
// never calls net syscalls directly; Send is the only I/O primitive,
// matching §4.A's "explicit send(bytes) operation; the core never blocks".
type Transport interface {
	Send(p []byte) error
	Close() error
}

// Conn is one connection's full state: its decoder, optional TLS engine,
// and the response currently being produced. All of its methods run on the
// single reactor worker goroutine that owns this connection — per §5, no
// field here is ever touched from another goroutine, so no locking is
// needed inside Conn itself. (The TLS engine's internal handshake goroutine
// is the one exception, and it communicates back only through the
// concurrency-safe Engine methods.)
type Conn struct {
	id        uint64
	transport Transport
	log       *zap.Logger

	useTLS bool
	tlsCtx *tlsengine.SharedContext
	tlsEng *tlsengine.Engine

	state   State
	readBuf *buf.Buffer
	decoder *httpproto.Decoder

	router *router.Router
	chain  *middleware.Chain

	serverOrigin string
}

// Options configures a new Conn.
type Options struct {
	ID           uint64
	Transport    Transport
	Logger       *zap.Logger
	UseTLS       bool
	TLSContext   *tlsengine.SharedContext
	Router       *router.Router
	Chain        *middleware.Chain
	ServerOrigin string
}

// New returns a Conn in the Accepted state.
func New(opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		id:           opts.ID,
		transport:    opts.Transport,
		log:          logger,
		useTLS:       opts.UseTLS,
		tlsCtx:       opts.TLSContext,
		state:        Accepted,
		readBuf:      buf.New(),
		decoder:      httpproto.NewDecoder(),
		router:       opts.Router,
		chain:        opts.Chain,
		serverOrigin: opts.ServerOrigin,
	}
}

// OnConnected fires the *connected* event of §4.F.
func (c *Conn) OnConnected() {
	if c.useTLS {
		c.state = TlsHandshaking
		c.tlsEng = tlsengine.New(c.tlsCtx, "")
		c.tlsEng.BeginHandshake()
		return
	}
	c.state = ReadingRequest
}

// OnDisconnected fires the *disconnected* event of §4.F, dropping any TLS
// engine associated with this connection.
func (c *Conn) OnDisconnected() {
	if c.tlsEng != nil {
		c.tlsEng.Close()
		c.tlsEng = nil
	}
	c.state = Closing
}

// OnReadable fires the *readable* event of §4.F: raw is whatever bytes the
// reactor just read off the socket. In TLS mode they are ciphertext routed
// through the TLS engine first; in plaintext mode they feed the decoder
// directly.
func (c *Conn) OnReadable(raw []byte) {
	if c.useTLS {
		c.tlsEng.OnCiphertextReceived(raw)
		if out := c.tlsEng.DrainCiphertext(); len(out) > 0 {
			if err := c.transport.Send(out); err != nil {
				c.log.Debug("tls ciphertext send failed", zap.Error(err))
				c.teardown()
				return
			}
		}
		if !c.tlsEng.HandshakeCompleted() {
			return
		}
		if c.state == TlsHandshaking {
			c.state = ReadingRequest
		}
		plaintext := c.tlsEng.TakePlaintext()
		if len(plaintext) == 0 {
			return
		}
		c.readBuf.Append(plaintext)
	} else {
		c.readBuf.Append(raw)
	}

	c.drainRequests()
}

func (c *Conn) drainRequests() {
	for {
		status := c.decoder.Feed(c.readBuf, time.Now())
		switch status {
		case httpproto.NeedMore:
			return
		case httpproto.Malformed:
			c.sendRaw([]byte(httpproto.BadRequestWire))
			c.teardown()
			return
		case httpproto.Complete:
			req := c.decoder.Request().Clone()
			c.decoder.Reset()
			keepAlive := !c.dispatch(req)
			if c.state == Closing {
				return
			}
			if !keepAlive {
				c.teardown()
				return
			}
			c.state = ReadingRequest
			// loop again: the buffer may hold a pipelined next request.
		}
	}
}

// dispatch is the *dispatch* event of §4.F. It returns true if the
// connection should be torn down after the response is written (i.e. the
// response is NOT keep-alive).
func (c *Conn) dispatch(req *httpproto.Request) bool {
	c.state = Dispatching

	resp := httpproto.NewResponse(200, httpproto.StatusText(200))
	resp.Protocol = req.Protocol
	resp.KeepAlive = keepAlive(req)
	resp.RequestOrigin = req.Header("Origin")

	c.runPipeline(req, resp)

	c.state = Writing
	wire := resp.Serialize(time.Now())
	c.sendRaw(wire)

	return !resp.KeepAlive
}

func (c *Conn) runPipeline(req *httpproto.Request, resp *httpproto.Response) {
	outcome := c.chain.ProcessBefore(req)
	switch outcome.Kind() {
	case middleware.ShortCircuit:
		copyInto(resp, outcome.Response())
		return
	case middleware.Failure:
		writeFailure(resp, outcome.Err())
		return
	}

	routePath := req.Path
	if req.Method == httpproto.MethodOPTIONS {
		routePath = optionsDefaultPath
	}
	lookup := req
	if routePath != req.Path {
		lookup = req.Clone()
		lookup.Path = routePath
	}

	if !c.router.Route(lookup, resp) {
		writeNotFound(resp)
	}

	for _, err := range c.chain.ProcessAfter(resp) {
		c.log.Warn("middleware after hook failed", zap.Error(err))
	}
}

func (c *Conn) sendRaw(p []byte) {
	if c.useTLS {
		if err := c.tlsEng.WritePlaintext(p); err != nil {
			c.log.Debug("tls plaintext write failed", zap.Error(err))
			c.teardown()
			return
		}
		if out := c.tlsEng.DrainCiphertext(); len(out) > 0 {
			if err := c.transport.Send(out); err != nil {
				c.log.Debug("send failed", zap.Error(err))
				c.teardown()
			}
		}
		return
	}
	if err := c.transport.Send(p); err != nil {
		c.log.Debug("send failed", zap.Error(err))
		c.teardown()
	}
}

func (c *Conn) teardown() {
	c.state = Closing
	_ = c.transport.Close()
}

func keepAlive(req *httpproto.Request) bool {
	connHeader := req.Header("Connection")
	if connHeader == "close" {
		return false
	}
	if req.Protocol == "HTTP/1.0" {
		return connHeader == "keep-alive"
	}
	return true
}

// OptionsDefaultPath is the synthetic route that answers OPTIONS requests
// when no user-registered OPTIONS handler exists for the requested path.
// Exported so callers (e.g. server.Builder.Options) can register a global
// fallback at this path.
const OptionsDefaultPath = "/options/method"

const optionsDefaultPath = OptionsDefaultPath

func copyInto(dst, src *httpproto.Response) {
	dst.Protocol = src.Protocol
	if dst.Protocol == "" {
		dst.Protocol = "HTTP/1.1"
	}
	dst.StatusCode = src.StatusCode
	dst.StatusMessage = src.StatusMessage
	dst.Headers = src.Headers
	dst.Body = src.Body
	dst.KeepAlive = dst.KeepAlive && src.StatusCode != 0
}

func writeFailure(resp *httpproto.Response, err error) {
	resp.StatusCode = 500
	resp.StatusMessage = httpproto.StatusText(500)
	resp.SetBody([]byte(err.Error()))
}

func writeNotFound(resp *httpproto.Response) {
	resp.StatusCode = 404
	resp.StatusMessage = httpproto.StatusText(404)
	resp.SetBody([]byte("404 Not Found"))
}
