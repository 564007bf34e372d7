package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFSRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")

	f, err := Default.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)

	n, err := f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, f.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, f.Close())
	require.NoError(t, Default.Remove(path))
}

func TestFaultyFSFailAfterBytes(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.SetFault(Fault{FailAfterBytes: 4})

	path := filepath.Join(t.TempDir(), "faulty.bin")
	f, err := ffs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("cde"), 2)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFSFailOnSync(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.SetFault(Fault{FailAfterBytes: -1, FailOnSync: true})

	path := filepath.Join(t.TempDir(), "faulty.bin")
	f, err := ffs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), ErrInjected)
}
