package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/tree"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newProjectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "main.server.lua", "print('server')")
	writeFile(t, dir, "ui.client.luau", "print('client')")
	writeFile(t, dir, "README.md", "# docs")
	writeFile(t, dir, filepath.Join("lib", "util.lua"), "return {}")
	writeFile(t, dir, filepath.Join(".git", "config"), "[core]")
	return dir
}

func TestScriptClassesBySuffix(t *testing.T) {
	dir := newProjectDir(t)

	root, err := Root(dir)
	require.NoError(t, err)
	assert.Equal(t, "Folder", root.ClassName())

	children, err := root.Children()
	require.NoError(t, err)

	byName := map[string]tree.Instance{}
	for _, child := range children {
		byName[child.Name()] = child
	}

	// Dotfiles are invisible; the rest is sorted by filename.
	require.Len(t, children, 4)

	assert.Equal(t, "Script", byName["main"].ClassName())
	assert.Equal(t, "LocalScript", byName["ui"].ClassName())
	assert.Equal(t, "Folder", byName["lib"].ClassName())

	// Non-script files keep their full name and carry no source.
	readme := byName["README.md"]
	assert.Equal(t, "File", readme.ClassName())
	_, ok := readme.Source()
	assert.False(t, ok)

	source, ok := byName["main"].Source()
	assert.True(t, ok)
	assert.Equal(t, "print('server')", source)
}

func TestExtractionOverProjectDirectory(t *testing.T) {
	dir := newProjectDir(t)

	root, err := Root(dir)
	require.NoError(t, err)
	roots, err := root.Children()
	require.NoError(t, err)

	extractor := tree.NewExtractor(0)

	scripts := extractor.Scripts(roots)
	assert.Equal(t, domain.ScriptMap{
		"main": "print('server')",
		"ui":   "print('client')",
		"util": "return {}",
	}, scripts)

	nodes := extractor.HierarchyAll(roots)
	require.Len(t, nodes, 4)

	var lib *domain.HierarchyNode
	for i := range nodes {
		if nodes[i].Name == "lib" {
			lib = &nodes[i]
		}
	}
	require.NotNil(t, lib)
	require.Len(t, lib.Children, 1)
	assert.Equal(t, "util", lib.Children[0].Name)
	assert.True(t, lib.Children[0].IsScript)
}

func TestRootRejectsMissingDirectory(t *testing.T) {
	_, err := Root(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.server.lua", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func() { changes <- struct{}{} })
	}()

	// Give the watcher a moment to install before mutating the tree.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "main.server.lua", "v2")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change event after write")
	}

	// New subdirectories are picked up as they appear.
	writeFile(t, dir, filepath.Join("lib", "util.lua"), "return {}")
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change event after mkdir")
	}

	cancel()
	require.NoError(t, <-done)
}
