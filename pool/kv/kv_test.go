package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_RejectsUnreachableServer(t *testing.T) {
	// Port 1 is reserved and nothing listens there, so the connection is
	// refused immediately rather than timing out.
	_, err := Open(Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
