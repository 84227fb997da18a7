package play

import (
	"fmt"
	"slices"
)

// Snapshot is the serialisable state of a Session, so callers can park it
// between requests.
type Snapshot struct {
	StoryID  string   `json:"storyId"`
	State    string   `json:"state"`
	NodeID   string   `json:"nodeId,omitempty"`
	History  []string `json:"history,omitempty"`
	EndingID string   `json:"endingId,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		StoryID: s.storyID,
		State:   s.state.String(),
		NodeID:  s.current,
		History: slices.Clone(s.history),
	}
	if s.ending != nil {
		snap.EndingID = s.ending.ID
	}
	return snap
}

// Restore rebuilds a session from a snapshot. It fails when the story is no
// longer playable or the snapshot points outside the graph.
func Restore(catalog Catalog, snap Snapshot) (*Session, error) {
	s, err := NewSession(catalog, snap.StoryID)
	if err != nil {
		return nil, err
	}

	switch snap.State {
	case Idle.String():
		s.state = Idle
	case Playing.String():
		s.state = Playing
	case Ended.String():
		s.state = Ended
	default:
		return nil, fmt.Errorf("restoring session: unknown state %q", snap.State)
	}

	if snap.NodeID != "" {
		if _, ok := s.doc.Node(snap.NodeID); !ok {
			return nil, fmt.Errorf("restoring session: unknown node %q", snap.NodeID)
		}
	} else if s.state != Idle {
		return nil, fmt.Errorf("restoring session: %s without a current node", s.state)
	}
	s.current = snap.NodeID
	s.history = slices.Clone(snap.History)

	if snap.EndingID != "" {
		e, ok := s.doc.Ending(snap.EndingID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnding, snap.EndingID)
		}
		s.ending = &e
	} else if s.state == Ended {
		return nil, fmt.Errorf("restoring session: ended without an ending")
	}
	return s, nil
}
