package server

import (
	"testing"

	"github.com/s00inx/zhttp/internal/conn"
	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/stretchr/testify/require"
)

func TestBuilder_RejectsInvalidPort(t *testing.T) {
	_, err := NewBuilder().Port(0).Build()
	require.Error(t, err)

	_, err = NewBuilder().Port(99999).Build()
	require.Error(t, err)
}

func TestBuilder_RejectsNonPositiveThreadNum(t *testing.T) {
	_, err := NewBuilder().Port(8080).ThreadNum(0).Build()
	require.Error(t, err)
}

func TestBuilder_RejectsMalformedRegexRoute(t *testing.T) {
	_, err := NewBuilder().
		Port(8080).
		HandleRegex(httpproto.MethodGET, "/user/(bad", func(req *httpproto.Request, resp *httpproto.Response) {}).
		Build()
	require.Error(t, err)
}

func TestBuilder_RejectsMissingTLSFiles(t *testing.T) {
	_, err := NewBuilder().
		Port(8443).
		UseTLS("/nonexistent/cert.pem", "/nonexistent/key.pem", "").
		Build()
	require.Error(t, err)
}

func TestBuilder_BuildsWithDefaults(t *testing.T) {
	srv, err := NewBuilder().
		Port(8080).
		Get("/hello", func(req *httpproto.Request, resp *httpproto.Response) {
			resp.SetBody([]byte("world"))
		}).
		Build()
	require.NoError(t, err)
	require.NotNil(t, srv)
	require.Equal(t, int64(0), srv.ActiveConnections())
}

func TestNewBuilder_RegistersDefaultOptionsRoute(t *testing.T) {
	b := NewBuilder()
	resp := httpproto.NewResponse(200, "OK")
	matched := b.router.Route(&httpproto.Request{
		Method: httpproto.MethodOPTIONS,
		Path:   conn.OptionsDefaultPath,
	}, resp)

	require.True(t, matched)
	require.Equal(t, 204, resp.StatusCode)
	require.Equal(t, defaultAllowedMethods, resp.Headers["Allow"])
}
