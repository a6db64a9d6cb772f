package data

import (
	"strings"
	"sync"

	"github.com/mbocsi/simbridge/proto"
)

// FlatTreeItem is one row of the flattened model tree.
type FlatTreeItem struct {
	Name        string `json:"name"`
	FullPath    string `json:"fullPath"`
	Level       int    `json:"level"`
	HasChildren bool   `json:"hasChildren"`
	Expanded    bool   `json:"expanded"`
	Visible     bool   `json:"visible"`
}

// Flatten walks the tree depth-first in pre-order, keeping sibling order. Only
// root-level items start visible and nothing starts expanded.
func Flatten(tree proto.ModelTree) []FlatTreeItem {
	items := []FlatTreeItem{}
	var walk func(nodes []proto.ModelNode, parent string, level int)
	walk = func(nodes []proto.ModelNode, parent string, level int) {
		for _, n := range nodes {
			fullPath := n.Name
			if parent != "" {
				fullPath = parent + "." + n.Name
			}
			hasChildren := n.Kind == proto.Branch
			items = append(items, FlatTreeItem{
				Name:        n.Name,
				FullPath:    fullPath,
				Level:       level,
				HasChildren: hasChildren,
				Visible:     level == 0,
			})
			if hasChildren {
				walk(n.Children, fullPath, level+1)
			}
		}
	}
	walk(tree.Roots, "", 0)
	return items
}

// TreeFlattener holds the most recent flattened model tree. Every Replace discards
// the previous list entirely, including any expansion state.
type TreeFlattener struct {
	mu    sync.RWMutex
	items []FlatTreeItem
	index map[string]int
}

func NewTreeFlattener() *TreeFlattener {
	return &TreeFlattener{index: make(map[string]int)}
}

// Replace flattens tree, makes it the current list and returns a copy of it.
func (f *TreeFlattener) Replace(tree proto.ModelTree) []FlatTreeItem {
	items := Flatten(tree)
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.FullPath] = i
	}

	f.mu.Lock()
	f.items = items
	f.index = index
	f.mu.Unlock()

	return cloneItems(items)
}

func (f *TreeFlattener) Items() []FlatTreeItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneItems(f.items)
}

// Visible returns the items a collapsed-by-default tree view should render.
func (f *TreeFlattener) Visible() []FlatTreeItem {
	f.mu.RLock()
	defer f.mu.RUnlock()

	visible := []FlatTreeItem{}
	for _, it := range f.items {
		if it.Visible {
			visible = append(visible, it)
		}
	}
	return visible
}

func (f *TreeFlattener) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// SetExpanded expands or collapses the item at fullPath. Expanding shows the direct
// children; collapsing hides and collapses every descendant. It returns false when
// no item has that path or the item has no children.
func (f *TreeFlattener) SetExpanded(fullPath string, expanded bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, ok := f.index[fullPath]
	if !ok || !f.items[i].HasChildren {
		return false
	}
	f.items[i].Expanded = expanded

	// Descendants follow their parent contiguously in pre-order.
	level := f.items[i].Level
	for j := i + 1; j < len(f.items) && f.items[j].Level > level; j++ {
		if expanded {
			if f.items[j].Level == level+1 {
				f.items[j].Visible = true
			}
			continue
		}
		f.items[j].Visible = false
		f.items[j].Expanded = false
	}
	return true
}

// Children returns the direct children of fullPath in order. An empty fullPath
// returns the root items.
func (f *TreeFlattener) Children(fullPath string) []FlatTreeItem {
	f.mu.RLock()
	defer f.mu.RUnlock()

	children := []FlatTreeItem{}
	if fullPath == "" {
		for _, it := range f.items {
			if it.Level == 0 {
				children = append(children, it)
			}
		}
		return children
	}

	i, ok := f.index[fullPath]
	if !ok {
		return children
	}
	level := f.items[i].Level
	for j := i + 1; j < len(f.items) && f.items[j].Level > level; j++ {
		if f.items[j].Level == level+1 {
			children = append(children, f.items[j])
		}
	}
	return children
}

// ParentPath returns the fullPath of an item's parent, or "" for root items.
func ParentPath(fullPath string) string {
	i := strings.LastIndex(fullPath, ".")
	if i < 0 {
		return ""
	}
	return fullPath[:i]
}

func cloneItems(items []FlatTreeItem) []FlatTreeItem {
	out := make([]FlatTreeItem, len(items))
	copy(out, items)
	return out
}
