package story

import (
	"encoding/json"
	"errors"
)

// Target is where a choice leads: either GoTo or Conclude, never both.
type Target interface {
	isTarget()
}

// GoTo moves the reader to another node.
type GoTo struct {
	NodeID string
}

// Conclude finishes the story at an ending.
type Conclude struct {
	EndingID string
}

func (GoTo) isTarget()     {}
func (Conclude) isTarget() {}

type Choice struct {
	Label  string
	Target Target
}

type choiceJSON struct {
	Label  string `json:"label"`
	Next   string `json:"next,omitempty"`
	Ending string `json:"ending,omitempty"`
}

// MarshalJSON writes the choice in the story document wire shape.
func (c Choice) MarshalJSON() ([]byte, error) {
	out := choiceJSON{Label: c.Label}
	switch t := c.Target.(type) {
	case GoTo:
		out.Next = t.NodeID
	case Conclude:
		out.Ending = t.EndingID
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the story document wire shape. Exactly one of next or
// ending must be set.
func (c *Choice) UnmarshalJSON(data []byte) error {
	var in choiceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Next != "" && in.Ending != "":
		return errors.New(`choice must not have both "next" and "ending"`)
	case in.Next != "":
		c.Target = GoTo{NodeID: in.Next}
	case in.Ending != "":
		c.Target = Conclude{EndingID: in.Ending}
	default:
		return errors.New(`choice must have either "next" or "ending"`)
	}
	c.Label = in.Label
	return nil
}
