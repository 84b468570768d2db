package hashpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes_IsDeterministic(t *testing.T) {
	a := HashBytes([]byte("package main\n"))
	b := HashBytes([]byte("package main\n"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // 32-byte blake3 sum, hex-encoded
}

func TestHashBytes_DiffersOnContentChange(t *testing.T) {
	a := HashBytes([]byte("content a"))
	b := HashBytes([]byte("content b"))
	assert.NotEqual(t, a, b)
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	content := []byte("package main\n\nfunc main() {}\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	fromFile, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(content), fromFile)
}

func TestHashFile_MissingFileReturnsError(t *testing.T) {
	_, err := HashFile("/nonexistent/file.go")
	assert.Error(t, err)
}

func TestCanonicalPath_StripsRootAndConvertsSlashes(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	file := filepath.Join(sub, "file.go")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	rel, err := CanonicalPath(root, file)
	require.NoError(t, err)
	assert.Equal(t, "pkg/sub/file.go", rel)
}

func TestCanonicalPath_RejectsPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	file := filepath.Join(outside, "file.go")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := CanonicalPath(root, file)
	assert.Error(t, err)
}

func TestCanonicalPath_ResolvesSymlinkedRoot(t *testing.T) {
	realRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(realRoot, "a.go"), []byte("x"), 0644))

	linkRoot := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(realRoot, linkRoot); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	rel, err := CanonicalPath(linkRoot, filepath.Join(linkRoot, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "a.go", rel)
}

func TestCanonicalPath_ToleratesDanglingDeleteEvent(t *testing.T) {
	root := t.TempDir()
	// File doesn't exist (delete event): EvalSymlinks fails, the
	// canonicaliser falls back to the unresolved absolute path rather
	// than rejecting the event outright.
	rel, err := CanonicalPath(root, filepath.Join(root, "gone.go"))
	require.NoError(t, err)
	assert.Equal(t, "gone.go", rel)
}
