package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_StatementOrder(t *testing.T) {
	r := NewRunner()
	stmts := r.Statements()
	require.Len(t, stmts, 6)

	tables := []string{"projects", "experiments", "cells", "cycle_records", "cell_analyses"}
	for i, table := range tables {
		assert.Contains(t, stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.True(t, strings.Contains(stmts[5], "CREATE INDEX"))
	assert.Equal(t, "1.0.0", r.Version())
}
