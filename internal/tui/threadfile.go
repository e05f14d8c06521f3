package tui

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

// LoadOrCreateThreadID returns the thread id stored at path. A missing or
// invalid file is replaced with a freshly generated id.
func LoadOrCreateThreadID(path string) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); domain.ValidThreadID(id) {
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read thread file: %w", err)
	}
	return ResetThreadID(path)
}

// ResetThreadID writes a new thread id to path and returns it.
func ResetThreadID(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create thread file dir: %w", err)
	}
	id := domain.NewThreadID()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write thread file: %w", err)
	}
	return id, nil
}
