// Package rdbms adapts database/sql plus the MySQL driver to the pool.Pool
// contract, grounded on original_source/source/db_pool/mysql_pool.cpp:
// Acquire borrows a connection (mysql_pool.cpp's get_connection), Release
// rolls back any connection-scoped transaction before returning it
// (mysql_pool.cpp's custom deleter calling conn->cleanup()), and a
// background goroutine pings idle connections on a fixed interval the way
// MysqlConnectionPool::check_connections does.
package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Conn wraps a borrowed *sql.Conn, tracking whether the caller opened a
// transaction on it so Release can roll back anything left uncommitted.
type Conn struct {
	raw *sql.Conn
	tx  *sql.Tx
}

// Raw exposes the underlying *sql.Conn for running queries.
func (c *Conn) Raw() *sql.Conn { return c.raw }

// BeginTx starts a transaction scoped to this connection, remembering it so
// Release can roll it back if the caller forgets to commit.
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := c.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

// Pool is a pool.Pool[*Conn] backed by database/sql's own MySQL connection
// management; Acquire/Release add the rollback-on-release and health-check
// semantics of §4.J/§5 on top of it.
type Pool struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool

	stopHealthCheck chan struct{}
}

// Options configures Open.
type Options struct {
	// DSN is a go-sql-driver/mysql data source name, e.g.
	// "user:pass@tcp(host:3306)/dbname?parseTime=true".
	DSN string
	// MaxOpenConns bounds the pool size (mysql_pool.cpp's pool_size).
	MaxOpenConns int
	// HealthCheckInterval is how often the background goroutine pings the
	// pool; mysql_pool.cpp's check_connections uses 60s.
	HealthCheckInterval time.Duration
}

// Open validates the DSN, establishes the pool, and starts the background
// health-check goroutine.
func Open(opts Options) (*Pool, error) {
	db, err := sql.Open("mysql", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("rdbms: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("rdbms: initial ping: %w", err)
	}

	interval := opts.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	p := &Pool{db: db, stopHealthCheck: make(chan struct{})}
	go p.healthCheckLoop(interval)
	return p, nil
}

// Acquire borrows a connection, reconnecting transparently if the driver's
// own pool handed back a stale one — database/sql already retries dead
// connections internally, so this mirrors mysql_pool.cpp's ping+reconnect
// at the database/sql abstraction level rather than duplicating it.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("rdbms: acquire: %w", err)
	}
	return &Conn{raw: raw}, nil
}

// Release rolls back any open transaction, then returns the connection to
// database/sql's own pool via Close.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	_ = c.raw.Close()
}

// Healthy returns the number of currently open connections.
func (p *Pool) Healthy() int {
	return p.db.Stats().OpenConnections
}

// Idle returns the number of connections sitting idle in the pool.
func (p *Pool) Idle() int {
	return p.db.Stats().Idle
}

// Close stops the health-check goroutine and closes the underlying pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopHealthCheck)
	return p.db.Close()
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
			_ = p.db.PingContext(ctx)
			cancel()
		}
	}
}
