package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// Lock serializes indexing runs across processes. Acquisition is a single
// exclusive file create, so two runs can never both hold it.
type Lock struct {
	path string
}

// AcquireLock takes the lock at path, failing with types.ErrIndexLocked
// when another run already holds it.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s exists; another indexing run is active (delete it if that run crashed)", types.ErrIndexLocked, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Must only be called by the run that
// acquired it.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}
