package acquisition

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/RyanBlaney/sonido-emotion/logging"
)

// Workspace is a request-scoped temporary directory. Everything created under
// it is removed by Close, which runs at most once.
type Workspace struct {
	root   string
	once   sync.Once
	logger logging.Logger
}

// NewWorkspace creates a fresh directory under parent (os.TempDir when empty).
func NewWorkspace(parent, pattern string) (*Workspace, error) {
	root, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{
		root: root,
		logger: logging.WithFields(logging.Fields{
			"component": "workspace",
			"path":      root,
		}),
	}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// NewDir creates a fresh subdirectory so a strategy never sees another
// strategy's files.
func (w *Workspace) NewDir(name string) (string, error) {
	dir, err := os.MkdirTemp(w.root, name+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", name, err)
	}
	return dir, nil
}

// Files lists every regular file currently in the workspace.
func (w *Workspace) Files() []string {
	var files []string
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// Close removes the workspace and all of its contents. Errors are logged.
func (w *Workspace) Close() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.root); err != nil {
			w.logger.Warn("Failed to remove workspace", logging.Fields{"error": err.Error()})
			return
		}
		w.logger.Debug("Workspace removed")
	})
}
