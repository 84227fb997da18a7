package story

import "fmt"

// Unreachable lists nodes and endings that no path from the entry node can
// reach, in declaration order. A valid document may still have such items.
func Unreachable(doc *Document) []string {
	seenNodes := map[string]bool{EntryNodeID: true}
	seenEndings := map[string]bool{}

	queue := []string{EntryNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, ok := doc.Node(id)
		if !ok {
			continue
		}
		for _, c := range node.Choices {
			switch t := c.Target.(type) {
			case GoTo:
				if !seenNodes[t.NodeID] {
					seenNodes[t.NodeID] = true
					queue = append(queue, t.NodeID)
				}
			case Conclude:
				seenEndings[t.EndingID] = true
			}
		}
	}

	var out []string
	for _, n := range doc.Nodes {
		if !seenNodes[n.ID] {
			out = append(out, fmt.Sprintf("node %q is unreachable from %q", n.ID, EntryNodeID))
		}
	}
	for _, e := range doc.Endings {
		if !seenEndings[e.ID] {
			out = append(out, fmt.Sprintf("ending %q is unreachable from %q", e.ID, EntryNodeID))
		}
	}
	return out
}
