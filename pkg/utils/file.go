package utils

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic writes data plus a trailing newline to a temp file next to
// path and renames it into place. Readers see the old or the new file, never
// a partial one.
func WriteFileAtomic(path string, data []byte, mode fs.FileMode) error {
	return WriteFileAtomicContext(context.Background(), path, data, mode)
}

// WriteFileAtomicContext is WriteFileAtomic with ctx checked before the
// rename. If ctx ends while the temp file is written or synced, path keeps its
// previous content and ctx's error is returned.
func WriteFileAtomicContext(ctx context.Context, path string, data []byte, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, ".tmp_"+strings.TrimSuffix(base, ext)+"_*"+ext)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
