// Package story defines the storyline graph: documents, nodes, choices and
// endings, plus the validator that decides whether raw data is playable.
// Documents are immutable once parsed and safe to share between sessions.
package story

// EntryNodeID is the fixed entry point of every story.
const EntryNodeID = "n1"

// ChoicesPerNode is the exact out-degree of every node.
const ChoicesPerNode = 2

type Meta struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
}

type Node struct {
	ID      string                 `json:"id"`
	Text    string                 `json:"text"`
	Choices [ChoicesPerNode]Choice `json:"choices"`
}

type Ending struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Badge string `json:"badge"`
	Text  string `json:"text"`
	Hint  string `json:"hint"`
}

// Document is a parsed, validated story graph.
type Document struct {
	Meta    Meta
	Nodes   []Node
	Endings []Ending

	nodeIndex   map[string]int
	endingIndex map[string]int
}

// Node returns the node with the given id.
func (d *Document) Node(id string) (Node, bool) {
	i, ok := d.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return d.Nodes[i], true
}

// Ending returns the ending with the given id.
func (d *Document) Ending(id string) (Ending, bool) {
	i, ok := d.endingIndex[id]
	if !ok {
		return Ending{}, false
	}
	return d.Endings[i], true
}

// EndingIDs returns ending ids in declaration order.
func (d *Document) EndingIDs() []string {
	ids := make([]string, len(d.Endings))
	for i, e := range d.Endings {
		ids[i] = e.ID
	}
	return ids
}

// Entry returns the entry node.
func (d *Document) Entry() Node {
	n, _ := d.Node(EntryNodeID)
	return n
}
