package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/scheduler/internal/ports"
)

func TestFilesystemGateway(t *testing.T) {
	gw, err := NewFilesystemGateway(t.TempDir())
	require.NoError(t, err)
	exerciseGateway(t, gw)
}

func TestFilesystemGateway_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "blobs")

	gw, err := NewFilesystemGateway(dir)
	require.NoError(t, err)
	assert.NoError(t, gw.Ping(context.Background()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFilesystemGateway_RejectsPathsOutsideDir(t *testing.T) {
	dir := t.TempDir()
	gw, err := NewFilesystemGateway(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = gw.Put(ctx, "../escape.json", []byte("{}"), ports.PutOptions{})
	assert.Error(t, err)
	_, err = gw.Put(ctx, "", []byte("{}"), ports.PutOptions{})
	assert.Error(t, err)

	_, err = gw.Fetch(ctx, "file://"+filepath.Join(filepath.Dir(dir), "secret.json"))
	assert.Error(t, err)
	assert.Error(t, gw.Delete(ctx, "memory://a.json"))
}

func TestFilesystemGateway_IgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	gw, err := NewFilesystemGateway(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheduler-data-9.json.tmp"), []byte("{"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scheduler-data-dir"), 0o755))

	objects, err := gw.List(context.Background(), ports.ListOptions{Prefix: "scheduler-data"})
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestFilesystemGateway_PingFailsWhenDirRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	gw, err := NewFilesystemGateway(dir)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, gw.Ping(context.Background()))
}
