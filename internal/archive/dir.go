package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirDestination writes each object as a file under a local directory.
type DirDestination struct {
	dir string
}

func NewDirDestination(dir string) *DirDestination {
	return &DirDestination{dir: dir}
}

// Write creates dir/key, replacing any earlier file of that name.
func (d *DirDestination) Write(ctx context.Context, key string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	filePath := filepath.Join(d.dir, key)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
