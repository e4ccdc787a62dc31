package tlsengine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the Handshaking -> Established -> Errored state machine of §4.B.
type State uint8

const (
	Handshaking State = iota
	Established
	Errored
)

// Engine is the per-connection TLS record engine of §4.B. It is driven
// entirely by its exported methods — OnCiphertextReceived feeds inbound
// bytes, DrainCiphertext extracts outbound bytes for the caller to transmit,
// WritePlaintext/TakePlaintext are the application-data side. All TLS
// protocol errors and underlying I/O errors are terminal (State becomes
// Errored); want-read/want-write are transient and never surface as errors
// to the caller.
type Engine struct {
	conn *bioConn
	tls  *tls.Conn

	state atomic.Int32 // State

	plaintextMu  sync.Mutex
	plaintextBuf []byte

	handshakeDone chan struct{}
	handshakeErr  error

	closeOnce sync.Once
	cancel    context.CancelFunc
}

// New constructs an engine with server-accept state, ready for
// BeginHandshake. shared is the process-wide TLS context; socketHint is an
// opaque label that the engine accepts and does not use (the engine never
// touches the real socket directly — all transmission is mediated by
// DrainCiphertext).
func New(shared *SharedContext, socketHint string) *Engine {
	conn := newBioConn()
	e := &Engine{
		conn:          conn,
		tls:           tls.Server(conn, shared.tlsConfig()),
		handshakeDone: make(chan struct{}),
	}
	e.state.Store(int32(Handshaking))
	_ = socketHint
	return e
}

// BeginHandshake starts the server-side handshake on a dedicated goroutine,
// parked off the reactor's event-loop goroutine so crypto/tls's synchronous
// Handshake/Read calls never block I/O dispatch for other connections.
func (e *Engine) BeginHandshake() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	err := e.tls.HandshakeContext(ctx)
	e.handshakeErr = err
	if err != nil {
		e.fail(err)
		close(e.handshakeDone)
		return
	}
	e.state.Store(int32(Established))
	close(e.handshakeDone)

	buf := make([]byte, 16*1024)
	for {
		n, err := e.tls.Read(buf)
		if n > 0 {
			e.appendPlaintext(buf[:n])
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.fail(err)
			return
		}
	}
}

func (e *Engine) appendPlaintext(p []byte) {
	e.plaintextMu.Lock()
	e.plaintextBuf = append(e.plaintextBuf, p...)
	e.plaintextMu.Unlock()
}

func (e *Engine) fail(err error) {
	e.state.Store(int32(Errored))
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		_ = e.conn.Close()
	})
}

// OnCiphertextReceived feeds bytes read from the socket into the inbound
// BIO. It never blocks: the queue backing the bioConn absorbs the bytes and
// the handshake/read goroutine drains them asynchronously.
func (e *Engine) OnCiphertextReceived(p []byte) {
	if e.State() == Errored {
		return
	}
	e.conn.inbound.push(p)
}

// WritePlaintext encrypts p, writing the resulting record(s) into the
// outbound BIO; it does not perform socket I/O. It is only valid once the
// handshake has completed.
func (e *Engine) WritePlaintext(p []byte) error {
	if e.State() != Established {
		return errors.New("tlsengine: write before handshake completed")
	}
	if _, err := e.tls.Write(p); err != nil {
		e.fail(err)
		return fmt.Errorf("tlsengine: write: %w", err)
	}
	return nil
}

// DrainCiphertext extracts and returns any bytes crypto/tls has queued onto
// the outbound BIO — handshake flights as well as encrypted application
// data. The caller is responsible for actually transmitting them.
func (e *Engine) DrainCiphertext() []byte {
	return e.conn.outbound.drain()
}

// HandshakeCompleted reports whether the handshake has finished
// successfully. It does not block.
func (e *Engine) HandshakeCompleted() bool {
	return State(e.state.Load()) == Established
}

// TakePlaintext extracts and returns any decrypted application bytes
// accumulated since the last call.
func (e *Engine) TakePlaintext() []byte {
	e.plaintextMu.Lock()
	defer e.plaintextMu.Unlock()
	if len(e.plaintextBuf) == 0 {
		return nil
	}
	out := e.plaintextBuf
	e.plaintextBuf = nil
	return out
}

// HandshakeDone returns a channel that is closed once the handshake has
// finished, successfully or not; check HandshakeCompleted/State afterward to
// distinguish the two.
func (e *Engine) HandshakeDone() <-chan struct{} {
	return e.handshakeDone
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Close tears down the engine and the handshake/read goroutine.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		_ = e.conn.Close()
	})
}
