// Package middleware implements the before/after chain of §4.E: an ordered
// sequence of middlewares, each exposing Before and After hooks, where a
// Before hook may short-circuit the entire pipeline by returning a
// ready-to-send Response instead of a generic error. Grounded on
// original_source/source/middleware/middleware_chain.cpp (forward Before,
// reverse After, thrown-response-as-short-circuit) and §9's design note,
// which models the C++ source's thrown-response control flow as a Go sum
// type instead of hidden exception-based control flow.
package middleware

import "github.com/s00inx/zhttp/internal/httpproto"

// Kind distinguishes the three outcomes a Before hook can produce.
type Kind uint8

const (
	// Continue means dispatch should proceed to the next middleware, and
	// finally to routing.
	Continue Kind = iota
	// ShortCircuit means the middleware has supplied a ready-to-send
	// Response; the dispatcher uses it verbatim and skips routing and any
	// remaining Before hooks.
	ShortCircuit
	// Failure means the hook failed for a reason that is not a short
	// circuit; the dispatcher converts it to a 500 response carrying the
	// error's message in the body.
	Failure
)

// Outcome is the sum type returned by a Before hook, per §9's design note.
type Outcome struct {
	kind     Kind
	response *httpproto.Response
	err      error
}

// ContinueOutcome lets dispatch proceed unchanged.
func ContinueOutcome() Outcome { return Outcome{kind: Continue} }

// ShortCircuitWith surfaces resp as the final response, skipping routing.
func ShortCircuitWith(resp *httpproto.Response) Outcome {
	return Outcome{kind: ShortCircuit, response: resp}
}

// FailureOutcome surfaces err as a non-short-circuiting failure.
func FailureOutcome(err error) Outcome {
	return Outcome{kind: Failure, err: err}
}

// Kind reports which of Continue/ShortCircuit/Failure this outcome carries.
func (o Outcome) Kind() Kind { return o.kind }

// Response returns the carried response; only meaningful when Kind ==
// ShortCircuit.
func (o Outcome) Response() *httpproto.Response { return o.response }

// Err returns the carried error; only meaningful when Kind == Failure.
func (o Outcome) Err() error { return o.err }

// Middleware is a before/after hook pair applied around route dispatch.
type Middleware interface {
	Before(req *httpproto.Request) Outcome
	After(resp *httpproto.Response)
}

// Chain is mutated only during setup (§5): Use must complete before the
// server enters its serving phase, after which ProcessBefore/ProcessAfter are
// read-only and safe for concurrent use across worker reactors.
type Chain struct {
	middlewares []Middleware
}

// NewChain returns an empty Chain.
func NewChain() *Chain {
	return &Chain{}
}

// Use appends a middleware to the chain.
func (c *Chain) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// ProcessBefore iterates the chain forward, invoking Before on each
// middleware in turn. It stops and returns the first non-Continue outcome.
func (c *Chain) ProcessBefore(req *httpproto.Request) Outcome {
	for _, m := range c.middlewares {
		if outcome := m.Before(req); outcome.Kind() != Continue {
			return outcome
		}
	}
	return ContinueOutcome()
}

// ProcessAfter iterates the chain in exact reverse of the Before order. A
// panicking After hook is recovered, logged by the caller (via the returned
// error), and does not prevent subsequent After hooks from running —
// best-effort semantics per §4.E.
func (c *Chain) ProcessAfter(resp *httpproto.Response) []error {
	var errs []error
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		if err := runAfter(c.middlewares[i], resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runAfter(m Middleware, resp *httpproto.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	m.After(resp)
	return nil
}
