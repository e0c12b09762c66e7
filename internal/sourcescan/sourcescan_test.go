// SPDX-License-Identifier: Apache-2.0

package sourcescan

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBlobMatchesGitConvention(t *testing.T) {
	// The empty blob's well-known Git hash.
	got := HashBlob(nil)
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", got.String())
}

func TestScanGroupsDuplicateContent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("world"), 0o644))

	table, err := Scan(root)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	idx, ok := table.IndexOf(HashBlob([]byte("hello")))
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a.txt", filepath.Join("sub", "b.txt")}, table.At(idx).Paths)
}

func TestScanSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}

	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("content"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))

	table, err := Scan(root)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"real.txt"}, table.At(0).Paths)
}

func TestScanEmptyDirectory(t *testing.T) {
	table, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestScanUnreadableFileIsFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root ignores file permissions")
	}

	root := t.TempDir()
	path := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("classified"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	_, err := Scan(root)
	assert.Error(t, err)
}
