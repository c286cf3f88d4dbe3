package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLocalListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all_events.jsonl", "{}\n")
	writeFile(t, dir, "summary.log", "text\n")
	writeFile(t, dir, "notes.txt", "skip me\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sessions"), 0o755))

	l := NewLocal(dir)
	files, err := l.ListFiles(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"all_events.jsonl", "summary.log"}, names)

	for _, f := range files {
		assert.NotZero(t, f.Size)
		assert.NotEmpty(t, f.Modified)
	}
}

func TestLocalListFilesMissingDir(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "nope"))
	files, err := l.ListFiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalReadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "all_events.jsonl", `{"category":"prompt"}`+"\n")

	l := NewLocal(dir)
	text, err := l.ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, `"prompt"`)

	_, err = l.ReadFile(context.Background(), filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}

func TestLocalFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "prompt.jsonl", "{}\n")

	l := NewLocal(dir)
	assert.True(t, l.FileExists(context.Background(), path))
	assert.False(t, l.FileExists(context.Background(), filepath.Join(dir, "nope.jsonl")))

	info, err := l.GetFileInfo(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "prompt.jsonl", info.Name)
	assert.Equal(t, "jsonl", info.Type)

	info, err = l.GetFileInfo(context.Background(), filepath.Join(dir, "nope.jsonl"))
	require.NoError(t, err, "a missing file is not an error")
	assert.Nil(t, info)
}

func TestLocalTestConnection(t *testing.T) {
	dir := t.TempDir()
	ok := NewLocal(dir).TestConnection(context.Background())
	assert.True(t, ok.Success)

	bad := NewLocal(filepath.Join(dir, "missing")).TestConnection(context.Background())
	assert.False(t, bad.Success)
}

func TestManagerConfigureAndReset(t *testing.T) {
	defaultDir := t.TempDir()
	otherDir := t.TempDir()
	writeFile(t, otherDir, "all_events.jsonl", "{}\n")

	swaps := 0
	m := NewManager(defaultDir, func() { swaps++ }, nil)

	assert.Equal(t, KindLocal, m.CurrentConfig().Type)
	assert.Equal(t, defaultDir, m.CurrentConfig().Path)

	// A failing configure leaves the active adapter untouched.
	result := m.Configure(context.Background(), Config{
		Type: KindLocal,
		Path: filepath.Join(otherDir, "does-not-exist"),
	})
	assert.False(t, result.Success)
	assert.Equal(t, defaultDir, m.CurrentConfig().Path)
	assert.Zero(t, swaps)

	result = m.Configure(context.Background(), Config{Type: KindLocal, Path: otherDir})
	assert.True(t, result.Success)
	assert.Equal(t, otherDir, m.CurrentConfig().Path)
	assert.Equal(t, 1, swaps)

	files, err := m.Current().ListFiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	result = m.Reset()
	assert.True(t, result.Success)
	assert.Equal(t, defaultDir, m.CurrentConfig().Path)
	assert.Equal(t, 2, swaps)
}

func TestManagerTestIsSideEffectFree(t *testing.T) {
	defaultDir := t.TempDir()
	m := NewManager(defaultDir, nil, nil)

	result := m.Test(context.Background(), Config{Type: KindLocal, Path: t.TempDir()})
	assert.True(t, result.Success)
	assert.Equal(t, defaultDir, m.CurrentConfig().Path)

	result = m.Test(context.Background(), Config{Type: "carrier-pigeon"})
	assert.False(t, result.Success)
}

func TestManagerBackends(t *testing.T) {
	m := NewManager(t.TempDir(), nil, nil)
	backends := m.Backends()
	assert.True(t, backends["local"])
	assert.True(t, backends["s3"])
	assert.True(t, backends["azure"])
}

func TestConfigKindValid(t *testing.T) {
	assert.True(t, KindLocal.Valid())
	assert.True(t, KindS3.Valid())
	assert.True(t, KindAzure.Valid())
	assert.False(t, Kind("ftp").Valid())
}

func TestKeyParsing(t *testing.T) {
	assert.True(t, matchesExtension("all_events.jsonl", DefaultExtensions))
	assert.True(t, matchesExtension("summary.log", DefaultExtensions))
	assert.False(t, matchesExtension("notes.txt", DefaultExtensions))

	assert.Equal(t, "jsonl", fileType("a.jsonl"))
	assert.Equal(t, "unknown", fileType("README"))
}
