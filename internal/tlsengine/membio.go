package tlsengine

import (
	"errors"
	"net"
	"sync"
	"time"
)

// queue is an unbounded byte queue with blocking reads, playing the role of
// one direction of a BIO pair: bytes pushed by push() are the bytes a
// subsequent read() call returns, in order, with push() never blocking.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(p []byte) {
	if len(p) == 0 {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// read blocks until at least one byte is available or the queue is closed,
// then copies into p and returns the count. It has no deadline.
func (q *queue) read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 && q.closed {
		return 0, errClosedQueue
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// drain returns and clears everything currently buffered, without blocking.
func (q *queue) drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

var errClosedQueue = errors.New("tlsengine: queue closed")

// bioConn is a net.Conn backed by two in-process queues: it stands in for
// the pair of memory BIOs of §4.B. inbound holds ciphertext pushed by
// Engine.OnCiphertextReceived, which crypto/tls.Conn.Read drains as if
// reading from the socket; outbound receives whatever crypto/tls.Conn.Write
// produces, which Engine.DrainCiphertext extracts for actual socket
// transmission. Deadlines are accepted but not enforced — the surrounding
// Engine governs the connection's lifetime, not this shim.
type bioConn struct {
	inbound  *queue
	outbound *queue
}

func newBioConn() *bioConn {
	return &bioConn{inbound: newQueue(), outbound: newQueue()}
}

func (c *bioConn) Read(p []byte) (int, error)  { return c.inbound.read(p) }
func (c *bioConn) Write(p []byte) (int, error) { c.outbound.push(p); return len(p), nil }
func (c *bioConn) Close() error {
	c.inbound.close()
	c.outbound.close()
	return nil
}
func (c *bioConn) LocalAddr() net.Addr                { return bioAddr{} }
func (c *bioConn) RemoteAddr() net.Addr               { return bioAddr{} }
func (c *bioConn) SetDeadline(_ time.Time) error      { return nil }
func (c *bioConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *bioConn) SetWriteDeadline(_ time.Time) error { return nil }

type bioAddr struct{}

func (bioAddr) Network() string { return "membio" }
func (bioAddr) String() string  { return "membio" }
