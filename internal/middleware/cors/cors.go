// Package cors implements the reference CORS middleware of §4.E: preflight
// short-circuiting for cross-origin OPTIONS requests, and
// Access-Control-Allow-* header injection for other cross-origin requests.
// Grounded on original_source/source/middleware/cors/cors_middle.cpp (the
// is_origin_allowed/join/add_cors_headers shape), adapted to the spec's
// precise cross-origin classification against a configured server_origin.
package cors

import (
	"strconv"
	"strings"

	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/s00inx/zhttp/internal/middleware"
)

// Config configures the CORS middleware.
type Config struct {
	AllowOrigins     []string // "*" acts as a wildcard
	AllowMethods     []string
	AllowHeaders     []string
	ServerOrigin     string // used to classify same-origin requests
	AllowCredentials bool
	MaxAge           int // seconds
}

// Middleware is the CORS reference implementation.
type Middleware struct {
	cfg Config
}

// New returns a CORS middleware with cfg.
func New(cfg Config) *Middleware {
	return &Middleware{cfg: cfg}
}

var _ middleware.Middleware = (*Middleware)(nil)

func (m *Middleware) isCrossOrigin(req *httpproto.Request) (origin string, crossOrigin bool) {
	origin = req.Header("Origin")
	if origin == "" {
		return "", false
	}
	return origin, origin != m.cfg.ServerOrigin
}

func (m *Middleware) originAllowed(origin string) bool {
	for _, o := range m.cfg.AllowOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Before short-circuits cross-origin OPTIONS requests with a preflight
// response, per §4.E. All other requests continue unchanged — the origin
// permission check for non-preflight requests happens in After.
func (m *Middleware) Before(req *httpproto.Request) middleware.Outcome {
	origin, crossOrigin := m.isCrossOrigin(req)
	if !crossOrigin || req.Method != httpproto.MethodOPTIONS {
		return middleware.ContinueOutcome()
	}

	if !m.originAllowed(origin) {
		resp := httpproto.NewResponse(403, httpproto.StatusText(403))
		return middleware.ShortCircuitWith(resp)
	}

	resp := httpproto.NewResponse(204, httpproto.StatusText(204))
	m.addCorsHeaders(resp, origin)
	return middleware.ShortCircuitWith(resp)
}

// After adds the Access-Control-Allow-* headers to cross-origin,
// non-preflight responses whose request origin was permitted. After has no
// Request in scope, so it reads only resp.RequestOrigin, which the
// connection state machine stamps from the request before invoking the
// chain.
func (m *Middleware) After(resp *httpproto.Response) {
	origin := resp.RequestOrigin
	if origin == "" || origin == m.cfg.ServerOrigin {
		return
	}
	if !m.originAllowed(origin) {
		return
	}
	m.addCorsHeaders(resp, origin)
}

func (m *Middleware) addCorsHeaders(resp *httpproto.Response, origin string) {
	if m.hasWildcard() {
		resp.SetHeader("Access-Control-Allow-Origin", "*")
	} else {
		resp.SetHeader("Access-Control-Allow-Origin", origin)
	}
	if m.cfg.AllowCredentials {
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
	}
	if len(m.cfg.AllowMethods) > 0 {
		resp.SetHeader("Access-Control-Allow-Methods", strings.Join(m.cfg.AllowMethods, ","))
	}
	if len(m.cfg.AllowHeaders) > 0 {
		resp.SetHeader("Access-Control-Allow-Headers", strings.Join(m.cfg.AllowHeaders, ","))
	}
	resp.SetHeader("Access-Control-Max-Age", strconv.Itoa(m.cfg.MaxAge))
}

func (m *Middleware) hasWildcard() bool {
	for _, o := range m.cfg.AllowOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
