package rdbms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_RejectsInvalidDSN(t *testing.T) {
	_, err := Open(Options{DSN: "not a valid dsn \x00"})
	require.Error(t, err)
}
