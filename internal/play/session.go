// Package play drives a single play-through of a story graph. A Session is a
// small state machine (Idle, Playing, Ended) over an immutable
// *story.Document; it performs no I/O and never reports unlocks itself.
package play

import (
	"errors"
	"fmt"
	"slices"

	"github.com/playperu/storyline/internal/story"
)

var (
	ErrUnknownStory  = errors.New("unknown or unplayable story")
	ErrNotPlaying    = errors.New("session is not playing")
	ErrForeignChoice = errors.New("choice does not belong to the current node")
	ErrChoiceIndex   = errors.New("choice index out of range")
	ErrUnknownEnding = errors.New("choice concludes at an unknown ending")
)

type State int

const (
	Idle State = iota
	Playing
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Catalog resolves story ids to playable documents. *story.Registry
// implements it.
type Catalog interface {
	Document(storyID string) (*story.Document, bool)
}

var _ Catalog = (*story.Registry)(nil)

type Session struct {
	catalog Catalog
	storyID string
	doc     *story.Document

	state   State
	current string
	history []string
	ending  *story.Ending
}

// NewSession binds a session to storyID. The session starts Idle.
func NewSession(catalog Catalog, storyID string) (*Session, error) {
	s := &Session{catalog: catalog}
	if err := s.bind(storyID); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) bind(storyID string) error {
	doc, ok := s.catalog.Document(storyID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStory, storyID)
	}
	s.storyID = storyID
	s.doc = doc
	return nil
}

// Start begins a play-through at the entry node. An empty storyID keeps the
// bound story.
func (s *Session) Start(storyID string) error {
	if storyID != "" && storyID != s.storyID {
		if err := s.bind(storyID); err != nil {
			return err
		}
	}
	s.begin()
	return nil
}

func (s *Session) begin() {
	s.current = story.EntryNodeID
	s.ending = nil
	s.state = Playing
	s.history = []string{story.EntryNodeID}
}

// SelectChoice applies one of the current node's choices. Reaching an ending
// leaves history untouched; moving to a node appends it.
func (s *Session) SelectChoice(c story.Choice) error {
	if s.state != Playing {
		return fmt.Errorf("%w: state is %s", ErrNotPlaying, s.state)
	}
	node, _ := s.doc.Node(s.current)
	if !slices.Contains(node.Choices[:], c) {
		return fmt.Errorf("%w: node %q", ErrForeignChoice, s.current)
	}

	switch t := c.Target.(type) {
	case story.Conclude:
		e, ok := s.doc.Ending(t.EndingID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEnding, t.EndingID)
		}
		s.ending = &e
		s.state = Ended
	case story.GoTo:
		s.current = t.NodeID
		s.history = append(s.history, t.NodeID)
	}
	return nil
}

// Choose selects the current node's choice at index.
func (s *Session) Choose(index int) error {
	if s.state != Playing {
		return fmt.Errorf("%w: state is %s", ErrNotPlaying, s.state)
	}
	if index < 0 || index >= story.ChoicesPerNode {
		return fmt.Errorf("%w: %d", ErrChoiceIndex, index)
	}
	node, _ := s.doc.Node(s.current)
	return s.SelectChoice(node.Choices[index])
}

// Restart replays the bound story from the entry node, from any state.
func (s *Session) Restart() {
	s.begin()
}

// ChangeStoryline binds another story and returns to Idle. Choices are
// rejected until Start.
func (s *Session) ChangeStoryline(storyID string) error {
	if err := s.bind(storyID); err != nil {
		return err
	}
	s.current = story.EntryNodeID
	s.ending = nil
	s.history = nil
	s.state = Idle
	return nil
}

// End abandons the play-through.
func (s *Session) End() {
	s.current = ""
	s.ending = nil
	s.history = nil
	s.state = Idle
}

func (s *Session) State() State { return s.state }
func (s *Session) StoryID() string { return s.storyID }
func (s *Session) CurrentNodeID() string { return s.current }
func (s *Session) Document() *story.Document { return s.doc }
func (s *Session) ReachedEnding() *story.Ending { return s.ending }

// CurrentNode returns the node under the cursor. It is false when the
// session has no cursor.
func (s *Session) CurrentNode() (story.Node, bool) {
	if s.current == "" {
		return story.Node{}, false
	}
	return s.doc.Node(s.current)
}

// History returns a copy of the visited node ids.
func (s *Session) History() []string {
	return slices.Clone(s.history)
}
