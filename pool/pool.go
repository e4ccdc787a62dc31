// Package pool defines the generic connection-pool contract of §4.J:
// Acquire/Release plus health introspection, implemented by pool/rdbms
// (MySQL) and pool/kv (Redis). Grounded on
// original_source/include/db_pool/db_pool.h's queue+condition-variable
// acquire/release shape and mysql_pool.cpp's custom-deleter release pattern,
// translated into Go's context-based blocking and explicit Release call.
package pool

import "context"

// Pool is a generic borrow/return contract over a connection type T. Acquire
// blocks (respecting ctx) until a connection is available or ctx is done;
// Release returns it for reuse, running any type-specific cleanup first
// (e.g. rolling back an open transaction).
type Pool[T any] interface {
	Acquire(ctx context.Context) (T, error)
	Release(conn T)
	Healthy() int
	Idle() int
	Close() error
}
