// Package project exposes a project directory as the producer's object
// graph: directories become folders, Luau sources become scripts. It backs
// the standalone sync agent, which plays the role of the editor plugin.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/tree"
)

// Suffix precedence matters: ".server.lua" must match before ".lua".
var scriptClasses = []struct {
	suffix string
	class  string
}{
	{".server.lua", "Script"},
	{".server.luau", "Script"},
	{".client.lua", "LocalScript"},
	{".client.luau", "LocalScript"},
	{".lua", "ModuleScript"},
	{".luau", "ModuleScript"},
}

// Node is a directory entry viewed as a tree.Instance.
type Node struct {
	path  string
	name  string
	isDir bool
}

// Root opens a project directory as a graph root.
func Root(dir string) (*Node, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Node{path: abs, name: filepath.Base(abs), isDir: info.IsDir()}, nil
}

func (n *Node) Name() string {
	if !n.isDir {
		if _, class := scriptClass(n.name); class != "" {
			return trimScriptSuffix(n.name)
		}
	}
	return n.name
}

func (n *Node) ClassName() string {
	if n.isDir {
		return "Folder"
	}
	if _, class := scriptClass(n.name); class != "" {
		return class
	}
	return "File"
}

func (n *Node) Source() (string, bool) {
	if n.isDir {
		return "", false
	}
	if _, class := scriptClass(n.name); class == "" {
		return "", false
	}
	data, err := os.ReadFile(n.path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (n *Node) Children() ([]tree.Instance, error) {
	if !n.isDir {
		return nil, nil
	}
	entries, err := os.ReadDir(n.path)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	children := make([]tree.Instance, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		children = append(children, &Node{
			path:  filepath.Join(n.path, name),
			name:  name,
			isDir: entry.IsDir(),
		})
	}
	return children, nil
}

func scriptClass(name string) (suffix, class string) {
	lower := strings.ToLower(name)
	for _, sc := range scriptClasses {
		if strings.HasSuffix(lower, sc.suffix) {
			return sc.suffix, sc.class
		}
	}
	return "", ""
}

func trimScriptSuffix(name string) string {
	suffix, _ := scriptClass(name)
	return name[:len(name)-len(suffix)]
}
