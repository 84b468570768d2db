// Package hashpath is C1: content hashing and path canonicalisation for
// the watcher and incremental indexer. Every database write and lookup
// keyed by file path goes through CanonicalPath first, so a file is
// addressed the same way regardless of which symlink or working
// directory the watcher happened to observe it through.
package hashpath

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/anortham/julie-go/internal/errors"
)

// HashFile returns the hex-encoded blake3 hash of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashBytes returns the hex-encoded blake3 hash of in-memory content, for
// callers that already hold the file bytes (e.g. a watcher debounce
// buffer) and don't want a second read.
func HashBytes(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the hex-encoded blake3 hash of r's contents, without
// buffering the whole stream into memory.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(errors.ErrCodeFileCorrupt, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalPath turns an absolute, OS-native path the watcher observed
// into the workspace-relative, forward-slash form the store keys files
// by: filepath.EvalSymlinks (so macOS's /var<->/private/var aliasing
// doesn't split one file into two store rows), filepath.Rel against
// workspaceRoot, then filepath.ToSlash. A path that cannot be made
// workspace-relative (outside the root, or a dangling symlink) returns
// ErrCodeHashPathDenorm so the caller can log and skip the event rather
// than writing a row the store can never look up again consistently.
func CanonicalPath(workspaceRoot, path string) (string, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeHashPathDenorm, err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeHashPathDenorm, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeHashPathDenorm, err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// A path that no longer exists (e.g. a delete event racing the
		// watcher) still needs a canonical form: fall back to the
		// unresolved absolute path rather than failing the whole event.
		resolvedPath = absPath
	}

	rel, err := filepath.Rel(resolvedRoot, resolvedPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeHashPathDenorm, err)
	}
	if rel == ".." || (len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeHashPathDenorm,
			"path escapes workspace root: "+path, nil)
	}

	return filepath.ToSlash(rel), nil
}
