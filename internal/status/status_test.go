package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRunningThenStopped(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "status.json")

	require.NoError(t, Write(path, Running, 4242))
	doc, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Running, doc.Status)
	require.NotNil(t, doc.PID)
	assert.Equal(t, 4242, *doc.PID)

	require.NoError(t, Write(path, Stopped, 4242))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"stopped","pid":null`)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
