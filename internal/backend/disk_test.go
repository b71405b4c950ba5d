package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskBackend_WritesShardedLogFile(t *testing.T) {
	dir := t.TempDir()
	uuid := "564d9c8e123456789abcdeadbeef0001"

	d, err := NewDiskBackend(dir, uuid)
	require.NoError(t, err)

	require.NoError(t, d.ReceiveBytes([]byte("hello ")))
	require.NoError(t, d.ReceiveBytes([]byte("world")))
	require.NoError(t, d.Close())

	path := filepath.Join(dir, uuid[:2], uuid[:4], uuid+".log")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(contents))
}

func TestDiskBackend_RejectsShortUUID(t *testing.T) {
	_, err := NewDiskBackend(t.TempDir(), "abc")
	require.Error(t, err)
}
