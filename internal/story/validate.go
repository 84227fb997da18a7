package story

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Result is the outcome of Validate. Valid is true iff Errors is empty.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Err returns a *ValidationError carrying every defect, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Defects: r.Errors}
}

// ValidationError reports every structural defect found in a story document.
type ValidationError struct {
	Defects []string
}

func (e *ValidationError) Error() string {
	switch len(e.Defects) {
	case 0:
		return "invalid story"
	case 1:
		return "invalid story: " + e.Defects[0]
	default:
		return fmt.Sprintf("invalid story: %s (and %d more)", e.Defects[0], len(e.Defects)-1)
	}
}

var endingFields = []string{"title", "badge", "text", "hint"}

// Validate checks that raw, a decoded JSON/YAML/TOML tree, is a playable
// story graph. Defects are collected in document order rather than failing on
// the first one; only a non-object document or missing node/ending arrays stop
// the checks early. Validate never panics.
func Validate(raw any) Result {
	doc, ok := raw.(map[string]any)
	if !ok || doc == nil {
		return Result{Errors: []string{"story document must be an object"}}
	}

	errs := []string{}

	nodes, nodesOK := doc["nodes"].([]any)
	endings, endingsOK := doc["endings"].([]any)
	if !nodesOK {
		errs = append(errs, `story document must have a "nodes" array`)
	}
	if !endingsOK {
		errs = append(errs, `story document must have an "endings" array`)
	}
	if len(errs) > 0 {
		return Result{Errors: errs}
	}

	endingIDs := make(map[string]bool, len(endings))
	for _, e := range endings {
		entry, _ := e.(map[string]any)

		id, ok := nonEmptyString(entry["id"])
		if !ok {
			errs = append(errs, `every ending must have a string "id"`)
			continue
		}
		if endingIDs[id] {
			errs = append(errs, fmt.Sprintf("duplicate ending id: %q", id))
		} else {
			endingIDs[id] = true
		}

		for _, field := range endingFields {
			if _, ok := nonEmptyString(entry[field]); !ok {
				errs = append(errs, fmt.Sprintf("ending %q must have a %q", id, field))
			}
		}
	}

	nodeIDs := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		entry, _ := n.(map[string]any)

		id, ok := nonEmptyString(entry["id"])
		if !ok {
			errs = append(errs, `every node must have a string "id"`)
			continue
		}
		if nodeIDs[id] {
			errs = append(errs, fmt.Sprintf("duplicate node id: %q", id))
		} else {
			nodeIDs[id] = true
		}

		if _, ok := nonEmptyString(entry["text"]); !ok {
			errs = append(errs, fmt.Sprintf(`node %q must have a "text"`, id))
		}

		choices, ok := entry["choices"].([]any)
		if !ok {
			errs = append(errs, fmt.Sprintf(`node %q must have a "choices" array`, id))
			continue
		}
		if len(choices) != ChoicesPerNode {
			errs = append(errs, fmt.Sprintf("node %q must have exactly %d choices, found %d", id, ChoicesPerNode, len(choices)))
		}

		for i, c := range choices {
			choice, _ := c.(map[string]any)

			label, hasLabel := nonEmptyString(choice["label"])
			if !hasLabel {
				errs = append(errs, fmt.Sprintf(`choice %d in node %q must have a "label"`, i+1, id))
			}
			name := "#" + strconv.Itoa(i+1)
			if hasLabel {
				name = strconv.Quote(label)
			}

			hasNext := truthy(choice["next"])
			hasEnding := truthy(choice["ending"])
			switch {
			case hasNext && hasEnding:
				errs = append(errs, fmt.Sprintf(`choice %s in node %q must not have both "next" and "ending"`, name, id))
			case !hasNext && !hasEnding:
				errs = append(errs, fmt.Sprintf(`choice %s in node %q must have either "next" or "ending"`, name, id))
			}
		}
	}

	// References are resolved against every declared id, so this pass runs
	// after both collections are indexed and covers nodes rejected above.
	for _, n := range nodes {
		entry, _ := n.(map[string]any)
		choices, ok := entry["choices"].([]any)
		if !ok {
			continue
		}
		from := describe(entry["id"])
		for _, c := range choices {
			choice, _ := c.(map[string]any)
			if next := choice["next"]; truthy(next) && !known(nodeIDs, next) {
				errs = append(errs, fmt.Sprintf("node %q references unknown node %q", from, describe(next)))
			}
			if ending := choice["ending"]; truthy(ending) && !known(endingIDs, ending) {
				errs = append(errs, fmt.Sprintf("node %q references unknown ending %q", from, describe(ending)))
			}
		}
	}

	if !nodeIDs[EntryNodeID] {
		errs = append(errs, fmt.Sprintf("no entry node with id %q", EntryNodeID))
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func known(ids map[string]bool, v any) bool {
	s, ok := v.(string)
	return ok && ids[s]
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "<no id>"
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// truthy mirrors the loose presence test story authors expect: nil, false,
// empty strings, zero and NaN are absent; objects and arrays are present.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}
