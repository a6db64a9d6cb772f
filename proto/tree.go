package proto

import "fmt"

type NodeKind int

const (
	Leaf NodeKind = iota
	Branch
)

func (k NodeKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Branch:
		return "branch"
	default:
		return "unknown"
	}
}

// ModelNode is one entry of the engine's model hierarchy. Children is only
// populated for Branch nodes.
type ModelNode struct {
	Name     string
	Kind     NodeKind
	Children []ModelNode
}

type ModelTree struct {
	Roots []ModelNode
}

// DecodeModelTree decodes a MODEL_TREE payload.
func DecodeModelTree(data []byte) (ModelTree, error) {
	v, err := DecodeValue(data)
	if err != nil {
		return ModelTree{}, err
	}
	return ModelTreeFromValue(v)
}

// ModelTreeFromValue converts the wire form, a mapping of name to either an empty
// sequence (leaf) or a sequence of further mappings (branch), into ModelNodes. A
// non-empty sequence makes a branch; any other value makes a leaf. Inside a branch
// only mapping elements contribute children.
func ModelTreeFromValue(v any) (ModelTree, error) {
	switch t := v.(type) {
	case Object:
		return ModelTree{Roots: nodesFromObject(t)}, nil
	case []any:
		return ModelTree{Roots: nodesFromSequence(t)}, nil
	default:
		return ModelTree{}, fmt.Errorf("model tree must be an object, got %T", v)
	}
}

func nodesFromObject(o Object) []ModelNode {
	nodes := make([]ModelNode, 0, len(o))
	index := make(map[string]int, len(o))
	for _, m := range o {
		node := ModelNode{Name: m.Key, Kind: Leaf}
		if seq, ok := m.Value.([]any); ok && len(seq) > 0 {
			node.Kind = Branch
			node.Children = nodesFromSequence(seq)
		}
		// A repeated key keeps its first position and its last value.
		if i, seen := index[m.Key]; seen {
			nodes[i] = node
			continue
		}
		index[m.Key] = len(nodes)
		nodes = append(nodes, node)
	}
	return nodes
}

// nodesFromSequence treats the members of every mapping in seq as one set of
// siblings, so a name repeated across elements still yields a single node.
func nodesFromSequence(seq []any) []ModelNode {
	var merged Object
	for _, item := range seq {
		if obj, ok := item.(Object); ok {
			merged = append(merged, obj...)
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return nodesFromObject(merged)
}

// Value converts the tree back to its wire form, one single-member mapping per child.
func (t ModelTree) Value() Object {
	return nodesToObject(t.Roots)
}

func nodesToObject(nodes []ModelNode) Object {
	obj := make(Object, 0, len(nodes))
	for _, n := range nodes {
		children := []any{}
		for _, c := range n.Children {
			children = append(children, nodesToObject([]ModelNode{c}))
		}
		obj = append(obj, Member{Key: n.Name, Value: children})
	}
	return obj
}
