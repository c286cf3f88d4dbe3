package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectoryEntry is one subdirectory in a browse listing.
type DirectoryEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	HasLogs bool   `json:"has_logs"`
}

// DirectoryListing is the browse response for one directory.
type DirectoryListing struct {
	Path        string           `json:"path"`
	Parent      string           `json:"parent"`
	Directories []DirectoryEntry `json:"directories"`
	LogFiles    []string         `json:"log_files"`
}

// browseDirectory lists a directory's subdirectories and log files.
// Hidden entries are skipped.
func browseDirectory(path string) (*DirectoryListing, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", abs, err)
	}

	listing := &DirectoryListing{
		Path:        abs,
		Parent:      filepath.Dir(abs),
		Directories: []DirectoryEntry{},
		LogFiles:    []string{},
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			sub := filepath.Join(abs, name)
			listing.Directories = append(listing.Directories, DirectoryEntry{
				Name:    name,
				Path:    sub,
				HasLogs: containsLogs(sub),
			})
			continue
		}
		if strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".log") {
			listing.LogFiles = append(listing.LogFiles, name)
		}
	}

	sort.Slice(listing.Directories, func(i, j int) bool {
		return listing.Directories[i].Name < listing.Directories[j].Name
	})
	sort.Strings(listing.LogFiles)
	return listing, nil
}

// containsLogs reports whether dir has at least one log file at its top
// level. Read errors count as no.
func containsLogs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".jsonl") || strings.HasSuffix(e.Name(), ".log") {
			return true
		}
	}
	return false
}
