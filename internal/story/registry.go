package story

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

var (
	ErrDuplicateStory = errors.New("duplicate story id")
	ErrNotFound       = errors.New("story not found")
)

// Source is one raw story document and where it came from.
type Source struct {
	Name string
	Raw  any
}

// Entry summarises a registered story. Invalid documents are still listed so
// the player can show why they cannot be played.
type Entry struct {
	Meta
	NodeCount   int      `json:"nodeCount"`
	EndingCount int      `json:"endingCount"`
	Playable    bool     `json:"playable"`
	Defects     []string `json:"defects,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	Source   string    `json:"-"`
	Document *Document `json:"-"`
}

type registryOptions struct {
	preferredDefault string
	strict           bool
}

type Option func(*registryOptions)

// WithPreferredDefault makes id the default story when it is registered.
func WithPreferredDefault(id string) Option {
	return func(o *registryOptions) { o.preferredDefault = id }
}

// WithStrictReachability turns unreachable nodes and endings into defects.
func WithStrictReachability(strict bool) Option {
	return func(o *registryOptions) { o.strict = strict }
}

// Registry is the set of known stories. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	entries   []*Entry
	byID      map[string]*Entry
	defaultID string
}

// NewRegistry validates every source and indexes it by meta.id.
func NewRegistry(logger *slog.Logger, sources []Source, opts ...Option) (*Registry, error) {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{byID: make(map[string]*Entry, len(sources))}
	for _, src := range sources {
		meta := MetaOf(src.Raw)
		if meta.ID == "" {
			logger.Warn("skipping story without meta.id", "source", src.Name)
			continue
		}
		if prev, ok := r.byID[meta.ID]; ok {
			return nil, fmt.Errorf("%w: %q in %s and %s", ErrDuplicateStory, meta.ID, prev.Source, src.Name)
		}

		e := &Entry{Meta: meta, Source: src.Name}
		if tree, ok := src.Raw.(map[string]any); ok {
			nodes, _ := tree["nodes"].([]any)
			endings, _ := tree["endings"].([]any)
			e.NodeCount, e.EndingCount = len(nodes), len(endings)
		}

		doc, err := Parse(src.Raw)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			e.Defects = verr.Defects
			logger.Warn("story is not playable", "story", meta.ID, "source", src.Name, "defects", len(verr.Defects))
		case err != nil:
			return nil, fmt.Errorf("parsing story %q: %w", meta.ID, err)
		default:
			e.Warnings = Unreachable(doc)
			for _, w := range e.Warnings {
				logger.Warn("story graph warning", "story", meta.ID, "warning", w)
			}
			if o.strict && len(e.Warnings) > 0 {
				e.Defects, e.Warnings = e.Warnings, nil
			} else {
				e.Playable = true
				e.Document = doc
			}
		}

		r.entries = append(r.entries, e)
		r.byID[meta.ID] = e
	}

	if len(r.entries) > 0 {
		r.defaultID = r.entries[0].ID
	}
	if _, ok := r.byID[o.preferredDefault]; ok {
		r.defaultID = o.preferredDefault
	}

	logger.Info("stories registered", "count", len(r.entries), "default", r.defaultID)
	return r, nil
}

// LoadDir decodes every story file in dir, in lexical path order. Files with
// unknown extensions are ignored and undecodable files are logged and skipped.
func LoadDir(logger *slog.Logger, dir string, opts ...Option) (*Registry, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, err := FormatFromPath(path); err == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking story dir %q: %w", dir, err)
	}
	sort.Strings(paths)

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		raw, err := decodeFile(path)
		if err != nil {
			logger.Error("skipping story file", "path", path, "error", err)
			continue
		}
		sources = append(sources, Source{Name: path, Raw: raw})
	}
	return NewRegistry(logger, sources, opts...)
}

func decodeFile(path string) (any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, format)
}

// List returns all entries in registration order.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

func (r *Registry) Get(id string) (Entry, error) {
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// DefaultID is the story a new player starts with. Empty when no stories are
// registered.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// Document returns the parsed graph for a playable story.
func (r *Registry) Document(id string) (*Document, bool) {
	e, ok := r.byID[id]
	if !ok || !e.Playable {
		return nil, false
	}
	return e.Document, true
}
