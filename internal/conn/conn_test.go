package conn

import (
	"errors"
	"testing"

	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/s00inx/zhttp/internal/middleware"
	"github.com/s00inx/zhttp/internal/router"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every Send call and whether Close was invoked, so
// tests can assert on the exact bytes a Conn would have written to the
// socket without a real network round trip.
type fakeTransport struct {
	sent    [][]byte
	closed  bool
	sendErr error
}

func (f *fakeTransport) Send(p []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func newTestConn(t *testing.T, rt *router.Router, chain *middleware.Chain) (*Conn, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	c := New(Options{
		ID:        1,
		Transport: transport,
		Router:    rt,
		Chain:     chain,
	})
	c.OnConnected()
	require.Equal(t, ReadingRequest, c.state)
	return c, transport
}

func TestConn_PlaintextRoundTrip(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodGET, "/hello", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.SetBody([]byte("world"))
	})
	chain := middleware.NewChain()

	c, transport := newTestConn(t, rt, chain)
	c.OnReadable([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "200 OK")
	require.Contains(t, string(transport.sent[0]), "world")
	require.False(t, transport.closed)
	require.Equal(t, ReadingRequest, c.state)
}

func TestConn_MalformedRequestClosesConnection(t *testing.T) {
	rt := router.New()
	chain := middleware.NewChain()
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("NOTAMETHOD /x HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "400")
	require.True(t, transport.closed)
	require.Equal(t, Closing, c.state)
}

func TestConn_ConnectionCloseHeaderTearsDownAfterResponse(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodGET, "/x", func(req *httpproto.Request, resp *httpproto.Response) {})
	chain := middleware.NewChain()
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("GET /x HTTP/1.1\r\nConnection: close\r\n\r\n"))

	require.True(t, transport.closed)
}

func TestConn_PipelinedRequestsBothAnswered(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodGET, "/a", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.SetBody([]byte("a"))
	})
	rt.RegisterExactCallback(httpproto.MethodGET, "/b", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.SetBody([]byte("b"))
	})
	chain := middleware.NewChain()
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 2)
	require.Contains(t, string(transport.sent[0]), "a")
	require.Contains(t, string(transport.sent[1]), "b")
}

func TestConn_NoRouteMatchReturns404(t *testing.T) {
	rt := router.New()
	chain := middleware.NewChain()
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("GET /missing HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "404")
}

// refusingMiddleware short-circuits every request with a fixed response, to
// exercise dispatch's ShortCircuit path.
type refusingMiddleware struct{}

func (refusingMiddleware) Before(req *httpproto.Request) middleware.Outcome {
	resp := httpproto.NewResponse(403, httpproto.StatusText(403))
	resp.SetBody([]byte("forbidden"))
	return middleware.ShortCircuitWith(resp)
}
func (refusingMiddleware) After(resp *httpproto.Response) {}

func TestConn_MiddlewareShortCircuit(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodGET, "/x", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.SetBody([]byte("should not run"))
	})
	chain := middleware.NewChain()
	chain.Use(refusingMiddleware{})
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("GET /x HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "403")
	require.Contains(t, string(transport.sent[0]), "forbidden")
}

// failingMiddleware always returns a Failure outcome, to exercise dispatch's
// Failure->500 conversion.
type failingMiddleware struct{}

func (failingMiddleware) Before(req *httpproto.Request) middleware.Outcome {
	return middleware.FailureOutcome(errors.New("boom"))
}
func (failingMiddleware) After(resp *httpproto.Response) {}

func TestConn_MiddlewareFailureBecomes500(t *testing.T) {
	rt := router.New()
	chain := middleware.NewChain()
	chain.Use(failingMiddleware{})
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("GET /x HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "500")
	require.Contains(t, string(transport.sent[0]), "boom")
}

func TestConn_OptionsWithoutHandlerUsesDefaultRoute(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodOPTIONS, optionsDefaultPath, func(req *httpproto.Request, resp *httpproto.Response) {
		resp.SetHeader("Allow", "GET,POST")
	})
	chain := middleware.NewChain()
	c, transport := newTestConn(t, rt, chain)

	c.OnReadable([]byte("OPTIONS /anything HTTP/1.1\r\n\r\n"))

	require.Len(t, transport.sent, 1)
	require.Contains(t, string(transport.sent[0]), "Allow: GET,POST")
}

func TestConn_SendFailureTearsDownConnection(t *testing.T) {
	rt := router.New()
	rt.RegisterExactCallback(httpproto.MethodGET, "/x", func(req *httpproto.Request, resp *httpproto.Response) {})
	chain := middleware.NewChain()
	transport := &fakeTransport{sendErr: errors.New("broken pipe")}
	c := New(Options{ID: 1, Transport: transport, Router: rt, Chain: chain})
	c.OnConnected()

	c.OnReadable([]byte("GET /x HTTP/1.1\r\n\r\n"))

	require.True(t, transport.closed)
	require.Equal(t, Closing, c.state)
}
