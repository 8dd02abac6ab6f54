// Package tree walks the producer's object graph and turns it into the
// wire hierarchy plus a flat script map. The graph is abstract: anything
// implementing Instance can be extracted, whether a live editor DOM or a
// project directory.
package tree

import (
	"fmt"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
)

// Instance is one node of the producer's object graph. Children may fail
// transiently (permission errors, objects vanishing mid-walk); the
// extractor degrades such nodes to leaves instead of aborting.
type Instance interface {
	Name() string
	ClassName() string
	// Source returns the script source text and true for source-bearing
	// nodes, regardless of their position in the tree.
	Source() (string, bool)
	Children() ([]Instance, error)
}

// DefaultMaxDepth bounds the hierarchy walk. Nodes beyond the cap are
// dropped silently, not errored.
const DefaultMaxDepth = 20

// Classes that exist only for the editor itself and are filtered from the
// reported hierarchy.
var editorOnlyClasses = map[string]struct{}{
	"Camera": {},
}

var classIcons = map[string]string{
	"Folder":       "folder",
	"Script":       "script",
	"LocalScript":  "script",
	"ModuleScript": "module",
	"Model":        "model",
	"Part":         "part",
	"Workspace":    "workspace",
}

// Extractor builds hierarchy trees and script maps from an object graph.
type Extractor struct {
	maxDepth int
}

func NewExtractor(maxDepth int) *Extractor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Extractor{maxDepth: maxDepth}
}

// Hierarchy converts a root into a HierarchyNode tree, or nil when the
// root itself is filtered out.
func (e *Extractor) Hierarchy(root Instance) *domain.HierarchyNode {
	return e.buildNode(root, 0)
}

// HierarchyAll converts a list of roots, skipping filtered ones.
func (e *Extractor) HierarchyAll(roots []Instance) []domain.HierarchyNode {
	nodes := make([]domain.HierarchyNode, 0, len(roots))
	for _, root := range roots {
		if node := e.buildNode(root, 0); node != nil {
			nodes = append(nodes, *node)
		}
	}
	return nodes
}

func (e *Extractor) buildNode(inst Instance, depth int) *domain.HierarchyNode {
	className := inst.ClassName()
	if _, filtered := editorOnlyClasses[className]; filtered {
		return nil
	}

	_, isScript := inst.Source()
	node := &domain.HierarchyNode{
		Name:      inst.Name(),
		ClassName: className,
		Icon:      classIcons[className],
		IsScript:  isScript,
	}

	// Depth cap reached: the node survives, its subtree is dropped.
	if depth+1 >= e.maxDepth {
		return node
	}

	children, err := inst.Children()
	if err != nil {
		// A broken subtree degrades to a leaf; the rest of the snapshot
		// stays intact.
		return node
	}

	for _, child := range children {
		if childNode := e.buildNode(child, depth+1); childNode != nil {
			node.Children = append(node.Children, *childNode)
		}
	}
	return node
}

// Scripts collects every source-bearing node into a flat map keyed by
// script name. Colliding names get an incrementing suffix (name, name_1,
// name_2, ...) assigned in pre-order walk order, so the numbering is
// deterministic for a fixed root list.
func (e *Extractor) Scripts(roots []Instance) domain.ScriptMap {
	scripts := domain.ScriptMap{}
	for _, root := range roots {
		e.collectScripts(root, 0, scripts)
	}
	return scripts
}

func (e *Extractor) collectScripts(inst Instance, depth int, scripts domain.ScriptMap) {
	if source, ok := inst.Source(); ok {
		scripts[uniqueName(scripts, inst.Name())] = source
	}

	if depth+1 >= e.maxDepth {
		return
	}

	children, err := inst.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		e.collectScripts(child, depth+1, scripts)
	}
}

func uniqueName(scripts domain.ScriptMap, name string) string {
	if _, taken := scripts[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, taken := scripts[candidate]; !taken {
			return candidate
		}
	}
}
