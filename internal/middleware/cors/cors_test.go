package cors

import (
	"testing"

	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/s00inx/zhttp/internal/middleware"
	"github.com/stretchr/testify/require"
)

func preflightReq(origin string) *httpproto.Request {
	return &httpproto.Request{
		Method:      httpproto.MethodOPTIONS,
		Path:        "/foo",
		Headers:     map[string]string{"Origin": origin},
		PathParams:  map[string]string{},
		QueryParams: map[string]string{},
	}
}

func TestCors_PreflightAllowed(t *testing.T) {
	m := New(Config{
		AllowOrigins: []string{"https://example.com"},
		AllowMethods: []string{"GET", "POST"},
		ServerOrigin: "https://server.internal",
		MaxAge:       600,
	})

	outcome := m.Before(preflightReq("https://example.com"))
	require.Equal(t, middleware.ShortCircuit, outcome.Kind())
	resp := outcome.Response()
	require.Equal(t, 204, resp.StatusCode)
	require.Equal(t, "https://example.com", resp.Headers["Access-Control-Allow-Origin"])
	require.Equal(t, "GET,POST", resp.Headers["Access-Control-Allow-Methods"])
	require.Equal(t, "600", resp.Headers["Access-Control-Max-Age"])
}

func TestCors_PreflightForbidden(t *testing.T) {
	m := New(Config{
		AllowOrigins: []string{"https://allowed.com"},
		ServerOrigin: "https://server.internal",
	})

	outcome := m.Before(preflightReq("https://evil.example"))
	require.Equal(t, middleware.ShortCircuit, outcome.Kind())
	require.Equal(t, 403, outcome.Response().StatusCode)
}

func TestCors_SameOriginContinues(t *testing.T) {
	m := New(Config{AllowOrigins: []string{"*"}, ServerOrigin: "https://server.internal"})
	req := preflightReq("https://server.internal")
	outcome := m.Before(req)
	require.Equal(t, middleware.Continue, outcome.Kind())
}

func TestCors_AfterAddsHeaderOnWildcard(t *testing.T) {
	m := New(Config{AllowOrigins: []string{"*"}, ServerOrigin: "https://server.internal"})
	resp := httpproto.NewResponse(200, "OK")
	resp.RequestOrigin = "https://example.com"
	m.After(resp)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestCors_AfterSkipsSameOrigin(t *testing.T) {
	m := New(Config{AllowOrigins: []string{"*"}, ServerOrigin: "https://server.internal"})
	resp := httpproto.NewResponse(200, "OK")
	resp.RequestOrigin = "https://server.internal"
	m.After(resp)
	_, ok := resp.Headers["Access-Control-Allow-Origin"]
	require.False(t, ok)
}
