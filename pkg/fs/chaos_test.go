package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sharedmap.dev/sharedmap/pkg/fs"
)

func TestChaos_FailAlways(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	injected := os.ErrPermission
	chaos.FailAlways(fs.OpOpenFile, injected)

	path := filepath.Join(t.TempDir(), "x")

	_, err := chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.ErrorIs(t, err, injected)
}

func TestChaos_FailOnCall(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	chaos.FailOnCall(fs.OpOpenFile, 2)

	path := filepath.Join(t.TempDir(), "x")

	f1, err := chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	_, err = chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.Error(t, err)

	f3, err := chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f3.Close())
}

func TestChaos_WriteFailure(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	chaos.FailOnCall(fs.OpWrite, 1)

	path := filepath.Join(t.TempDir(), "x")

	f, err := chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("hello"))
	require.Error(t, err)
}

func TestReal_RemoveMissing(t *testing.T) {
	t.Parallel()

	real := fs.NewReal()
	err := real.Remove(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
}
