// Package router implements the exact + regex-parameter router of §4.D:
// four tables (exact handlers, exact callbacks, regex handlers, regex
// callbacks), with exact routes taking priority over regex routes and regex
// routes tried in registration order.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/s00inx/zhttp/internal/httpproto"
)

// Handler is a registered route target that receives the matched request and
// fills in the response.
type Handler interface {
	Handle(req *httpproto.Request, resp *httpproto.Response)
}

// Callback is the functional form of Handler, grounded on the source's
// HandlerCallback alternative to a Handler object.
type Callback func(req *httpproto.Request, resp *httpproto.Response)

// HandlerFunc adapts a plain func to the Handler interface.
type HandlerFunc func(req *httpproto.Request, resp *httpproto.Response)

// Handle implements Handler.
func (f HandlerFunc) Handle(req *httpproto.Request, resp *httpproto.Response) {
	f(req, resp)
}

type routeKey struct {
	method httpproto.Method
	path   string
}

type regexRoute struct {
	method  httpproto.Method
	pattern *regexp.Regexp
	handler Handler
}

type regexCallbackRoute struct {
	method   httpproto.Method
	pattern  *regexp.Regexp
	callback Callback
}

// Router is mutated only during setup (§5): the RegisterExact*/RegisterRegex*
// calls must complete before the server enters its serving phase, after which
// Route is read-only and safe for concurrent use across worker reactors
// without locking.
type Router struct {
	exactHandlers  map[routeKey]Handler
	exactCallbacks map[routeKey]Callback
	regexHandlers  []regexRoute
	regexCallbacks []regexCallbackRoute
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		exactHandlers:  make(map[routeKey]Handler),
		exactCallbacks: make(map[routeKey]Callback),
	}
}

// RegisterExactHandler registers a Handler for an exact (method, path) pair.
func (r *Router) RegisterExactHandler(method httpproto.Method, path string, h Handler) {
	r.exactHandlers[routeKey{method, path}] = h
}

// RegisterExactCallback registers a Callback for an exact (method, path) pair.
func (r *Router) RegisterExactCallback(method httpproto.Method, path string, cb Callback) {
	r.exactCallbacks[routeKey{method, path}] = cb
}

// RegisterRegexHandler registers a Handler for a path pattern containing
// ":name" segments, per §4.D's conversion grammar. It returns an error if the
// path contains any other regex metacharacter.
func (r *Router) RegisterRegexHandler(method httpproto.Method, path string, h Handler) error {
	pattern, err := compilePattern(path)
	if err != nil {
		return err
	}
	r.regexHandlers = append(r.regexHandlers, regexRoute{method, pattern, h})
	return nil
}

// RegisterRegexCallback registers a Callback for a ":name" path pattern.
func (r *Router) RegisterRegexCallback(method httpproto.Method, path string, cb Callback) error {
	pattern, err := compilePattern(path)
	if err != nil {
		return err
	}
	r.regexCallbacks = append(r.regexCallbacks, regexCallbackRoute{method, pattern, cb})
	return nil
}

// Route performs the lookup of §4.D: exact handlers, then exact callbacks,
// then regex handlers in insertion order, then regex callbacks in insertion
// order. On a regex match it clones req and sets param1..paramK from the
// numbered capture groups before invoking the target. matched is false if
// nothing matched (the caller emits 404).
func (r *Router) Route(req *httpproto.Request, resp *httpproto.Response) bool {
	key := routeKey{req.Method, req.Path}
	if h, ok := r.exactHandlers[key]; ok {
		h.Handle(req, resp)
		return true
	}
	if cb, ok := r.exactCallbacks[key]; ok {
		cb(req, resp)
		return true
	}
	for _, rr := range r.regexHandlers {
		if rr.method != req.Method {
			continue
		}
		if m := rr.pattern.FindStringSubmatch(req.Path); m != nil {
			matched := req.Clone()
			applyCaptures(matched, m)
			rr.handler.Handle(matched, resp)
			return true
		}
	}
	for _, rc := range r.regexCallbacks {
		if rc.method != req.Method {
			continue
		}
		if m := rc.pattern.FindStringSubmatch(req.Path); m != nil {
			matched := req.Clone()
			applyCaptures(matched, m)
			rc.callback(matched, resp)
			return true
		}
	}
	return false
}

func applyCaptures(req *httpproto.Request, m []string) {
	for i := 1; i < len(m); i++ {
		req.PathParams[fmt.Sprintf("param%d", i)] = m[i]
	}
}

// compilePattern converts a registered path such as "/user/:id" into the
// anchored regex "^/user/([^/]+)$", rejecting any other regex metacharacter
// as out of scope per §4.D. Grounded on
// original_source/source/router/router.cpp's convert_to_regex.
func compilePattern(path string) (*regexp.Regexp, error) {
	segments := strings.Split(path, "/")
	var b strings.Builder
	b.WriteByte('^')
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('/')
		}
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			b.WriteString("([^/]+)")
			continue
		}
		if containsMetachar(seg) {
			return nil, fmt.Errorf("router: path %q contains a regex metacharacter outside :name segments", path)
		}
		b.WriteString(regexp.QuoteMeta(seg))
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

const metachars = `.*+?()[]{}|^$\`

func containsMetachar(seg string) bool {
	return strings.ContainsAny(seg, metachars)
}
