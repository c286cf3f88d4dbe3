package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Local reads log streams from a directory on the local filesystem.
type Local struct {
	base string
}

// NewLocal returns an adapter rooted at base.
func NewLocal(base string) *Local {
	return &Local{base: base}
}

func (l *Local) ListFiles(_ context.Context, extFilter []string) ([]FileInfo, error) {
	if extFilter == nil {
		extFilter = DefaultExtensions
	}

	entries, err := os.ReadDir(l.base)
	if os.IsNotExist(err) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.base, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !matchesExtension(e.Name(), extFilter) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     e.Name(),
			Path:     filepath.Join(l.base, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
			Type:     fileType(e.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	return files, nil
}

func (l *Local) ReadFile(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

func (l *Local) FileExists(_ context.Context, path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Local) GetFileInfo(_ context.Context, path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &FileInfo{
		Name:     filepath.Base(path),
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime().UTC().Format(time.RFC3339),
		Type:     fileType(filepath.Base(path)),
	}, nil
}

func (l *Local) TestConnection(_ context.Context) TestResult {
	info, err := os.Stat(l.base)
	if err == nil && info.IsDir() {
		return TestResult{Success: true, Message: "Local directory accessible"}
	}
	return TestResult{Success: false, Message: fmt.Sprintf("Directory not found: %s", l.base)}
}

func (l *Local) Close() error { return nil }

// Base returns the directory this adapter reads from.
func (l *Local) Base() string { return l.base }
