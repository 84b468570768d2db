package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_Flags(t *testing.T) {
	cmd := newSearchCmd()

	limit := cmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "10", limit.DefValue)
	assert.Equal(t, "n", limit.Shorthand)

	symbols := cmd.Flags().Lookup("symbols")
	require.NotNil(t, symbols)
	assert.Equal(t, "false", symbols.DefValue)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	cmd := newSearchCmd()
	cmd.SetArgs([]string{})
	require.Error(t, cmd.Args(cmd, []string{}))
}
