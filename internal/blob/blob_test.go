package blob_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/blob"
)

// runContract exercises the behaviour every Store must share.
func runContract(t *testing.T, s blob.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "backups/u1/b.json", strings.NewReader(`{"n":2}`), "application/json"))
	require.NoError(t, s.Put(ctx, "backups/u1/a.json", strings.NewReader(`{"n":1}`), "application/json"))
	require.NoError(t, s.Put(ctx, "backups/u2/c.json", strings.NewReader(`{}`), "application/json"))

	rc, err := s.Get(ctx, "backups/u1/a.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"n":1}`, string(body))

	require.NoError(t, s.Put(ctx, "backups/u1/a.json", strings.NewReader(`{"n":3}`), "application/json"))
	rc, err = s.Get(ctx, "backups/u1/a.json")
	require.NoError(t, err)
	body, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, `{"n":3}`, string(body), "put replaces")

	infos, err := s.List(ctx, "backups/u1/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "backups/u1/a.json", infos[0].Key)
	assert.Equal(t, "backups/u1/b.json", infos[1].Key)
	assert.EqualValues(t, 7, infos[1].Size)

	_, err = s.Get(ctx, "backups/u1/missing.json")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "backups/u1/b.json"))
	require.NoError(t, s.Delete(ctx, "backups/u1/b.json"))
	infos, err = s.List(ctx, "backups/u1/")
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	for _, bad := range []string{"", "/etc/passwd", "../escape", "a/../../b"} {
		assert.Error(t, s.Put(ctx, bad, strings.NewReader("x"), ""), bad)
	}
}

func TestMemory(t *testing.T) {
	runContract(t, blob.NewMemory())
}

func TestFilesystem(t *testing.T) {
	root := t.TempDir()
	s, err := blob.NewFilesystem(filepath.Join(root, "nested"))
	require.NoError(t, err)
	runContract(t, s)

	_, err = os.Stat(filepath.Join(root, "nested", "backups", "u1", "a.json"))
	assert.NoError(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := blob.Open(ctx, blob.Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, s.Driver())

	s, err = blob.Open(ctx, blob.Config{Driver: blob.DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverMemory, s.Driver())

	_, err = blob.Open(ctx, blob.Config{Driver: blob.DriverS3})
	assert.ErrorContains(t, err, "bucket required")

	_, err = blob.Open(ctx, blob.Config{Driver: blob.DriverGCS})
	assert.ErrorContains(t, err, "bucket required")

	_, err = blob.Open(ctx, blob.Config{Driver: "ftp"})
	assert.Error(t, err)
}
