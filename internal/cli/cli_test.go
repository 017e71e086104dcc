package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()

	for _, path := range [][]string{
		{"start"},
		{"worker", "run"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"sync", "backfill"},
		{"sync", "incremental"},
		{"sync", "now"},
		{"orders", "count"},
		{"stores", "list"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestSyncBackfillRejectsBadSince(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"sync", "backfill", "--store", "1", "--since", "yesterday"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC 3339")
}

func TestSyncNowRejectsBadSelector(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"sync", "now", "--store", "first"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"all"`)
}

func TestSyncBackfillRequiresStore(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"sync", "backfill"})

	require.Error(t, root.Execute())
}

func TestParseSince(t *testing.T) {
	got, err := parseSince("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseSince("2024-05-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)))
}

func TestValidateSelector(t *testing.T) {
	assert.NoError(t, validateSelector("ALL"))
	assert.NoError(t, validateSelector(" 3 "))
	assert.Error(t, validateSelector("0"))
	assert.Error(t, validateSelector(""))
}
