package story

// Parse validates raw and builds the typed document. An invalid document
// yields a *ValidationError carrying every defect.
func Parse(raw any) (*Document, error) {
	if err := Validate(raw).Err(); err != nil {
		return nil, err
	}

	tree := raw.(map[string]any)
	nodes := tree["nodes"].([]any)
	endings := tree["endings"].([]any)

	doc := &Document{
		Meta:        parseMeta(tree["meta"]),
		Nodes:       make([]Node, 0, len(nodes)),
		Endings:     make([]Ending, 0, len(endings)),
		nodeIndex:   make(map[string]int, len(nodes)),
		endingIndex: make(map[string]int, len(endings)),
	}

	for _, e := range endings {
		entry := e.(map[string]any)
		ending := Ending{
			ID:    entry["id"].(string),
			Title: entry["title"].(string),
			Badge: entry["badge"].(string),
			Text:  entry["text"].(string),
			Hint:  entry["hint"].(string),
		}
		doc.endingIndex[ending.ID] = len(doc.Endings)
		doc.Endings = append(doc.Endings, ending)
	}

	for _, n := range nodes {
		entry := n.(map[string]any)
		node := Node{
			ID:   entry["id"].(string),
			Text: entry["text"].(string),
		}
		for i, c := range entry["choices"].([]any) {
			choice := c.(map[string]any)
			node.Choices[i].Label = choice["label"].(string)
			if next, ok := choice["next"].(string); ok && next != "" {
				node.Choices[i].Target = GoTo{NodeID: next}
			} else {
				node.Choices[i].Target = Conclude{EndingID: choice["ending"].(string)}
			}
		}
		doc.nodeIndex[node.ID] = len(doc.Nodes)
		doc.Nodes = append(doc.Nodes, node)
	}

	return doc, nil
}

// MetaOf reads the optional meta block of a raw document without validating
// anything else.
func MetaOf(raw any) Meta {
	tree, _ := raw.(map[string]any)
	return parseMeta(tree["meta"])
}

func parseMeta(v any) Meta {
	m, _ := v.(map[string]any)
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	return Meta{
		ID:          str("id"),
		Title:       str("title"),
		Subtitle:    str("subtitle"),
		Description: str("description"),
		Emoji:       str("emoji"),
	}
}
