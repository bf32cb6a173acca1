package dwarf

// None marks an absent node index.
const None = -1

// Node one entry of a Tree with the indices of its relatives.
type Node struct {
	Entry       *Entry
	Parent      int
	FirstChild  int
	NextSibling int
	Depth       int
}

// Tree the entries of one unit as an arena: nodes refer to each other by
// index into Nodes, null entries are dropped.
type Tree struct {
	Nodes []Node
	roots []int
}

// Roots returns the top-level nodes, normally the single unit entry.
func (t *Tree) Roots() []int { return t.roots }

// Children returns the child indices of node i, in stream order.
func (t *Tree) Children(i int) []int {
	var out []int
	for c := t.Nodes[i].FirstChild; c != None; c = t.Nodes[c].NextSibling {
		out = append(out, c)
	}
	return out
}

// Walk visits the nodes in pre-order, which is their stream order.
func (t *Tree) Walk(fn func(i int, n *Node) error) error {
	for i := range t.Nodes {
		if err := fn(i, &t.Nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// BuildTree drains it into a Tree. A null entry with no open sibling list
// is padding and ignored; lists left open at the end of the unit are
// closed implicitly.
func BuildTree(it *EntryIterator) (*Tree, error) {
	type frame struct{ parent, last int }

	t := &Tree{}
	stack := []frame{{parent: None, last: None}}
	for {
		e, err := it.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			return t, nil
		}
		if e.IsNull() {
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		top := &stack[len(stack)-1]
		idx := len(t.Nodes)
		t.Nodes = append(t.Nodes, Node{
			Entry:       e,
			Parent:      top.parent,
			FirstChild:  None,
			NextSibling: None,
			Depth:       len(stack) - 1,
		})
		switch {
		case top.last != None:
			t.Nodes[top.last].NextSibling = idx
		case top.parent != None:
			t.Nodes[top.parent].FirstChild = idx
		default:
			t.roots = append(t.roots, idx)
		}
		if top.parent == None && top.last != None {
			t.roots = append(t.roots, idx)
		}
		top.last = idx

		if e.Children {
			stack = append(stack, frame{parent: idx, last: None})
		}
	}
}
