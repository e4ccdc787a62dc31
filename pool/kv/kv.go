// Package kv adapts go-redis's own connection pool to the pool.Pool
// contract, grounded on original_source/source/db_pool/redis_pool.cpp's
// get_connection/ping+reconnect shape and its check_connections background
// health-check loop, here delegated to redis.Client.Conn (a single
// connection pinned from the client's pool) plus a ticking PING goroutine.
package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool is a pool.Pool[*redis.Conn] wrapping a *redis.Client.
type Pool struct {
	client *redis.Client

	mu     sync.Mutex
	closed bool

	stopHealthCheck chan struct{}
}

// Options configures Open.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// HealthCheckInterval mirrors redis_pool.cpp's check_connections
	// interval; defaults to one minute.
	HealthCheckInterval time.Duration
}

// Open validates connectivity and starts the background health-check
// goroutine, per §4.J/§5's "initialization validates" contract.
func Open(opts Options) (*Pool, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: initial ping: %w", err)
	}

	interval := opts.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	p := &Pool{client: client, stopHealthCheck: make(chan struct{})}
	go p.healthCheckLoop(interval)
	return p, nil
}

// Client exposes the underlying *redis.Client for commands that don't need
// a pinned connection (the common case for session.KVStore).
func (p *Pool) Client() *redis.Client {
	return p.client
}

// Acquire pins a single connection from the client's own pool, for callers
// that need connection affinity (e.g. WATCH/MULTI transactions).
func (p *Pool) Acquire(ctx context.Context) (*redis.Conn, error) {
	conn := p.client.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("kv: acquire: %w", err)
	}
	return conn, nil
}

// Release returns the pinned connection to the pool.
func (p *Pool) Release(conn *redis.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close()
}

// Healthy returns the number of connections go-redis currently has open.
func (p *Pool) Healthy() int {
	stats := p.client.PoolStats()
	return int(stats.TotalConns)
}

// Idle returns the number of idle connections in go-redis's pool.
func (p *Pool) Idle() int {
	stats := p.client.PoolStats()
	return int(stats.IdleConns)
}

// Close stops the health-check goroutine and closes the client.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopHealthCheck)
	return p.client.Close()
}

func (p *Pool) healthCheckLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopHealthCheck:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = p.client.Ping(ctx).Err()
			cancel()
		}
	}
}
