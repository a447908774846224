// Package corpus loads the text a knowledge graph is built from, fetching it
// from Wikipedia once when no local copy exists.
package corpus

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNoKnowledgeBase means no usable corpus could be loaded or fetched.
var ErrNoKnowledgeBase = errors.New("no knowledge base found")

// Fetcher retrieves corpus text from a remote knowledge source.
type Fetcher interface {
	// Exists reports whether the source has an entry called name.
	Exists(ctx context.Context, name string) (bool, error)
	// Fetch returns the text of the entry called name.
	Fetch(ctx context.Context, name string) (string, error)
}

// Source reads corpora from disk and falls back to a Fetcher.
type Source struct {
	fetcher Fetcher
	loaders *Registry
}

// NewSource creates a Source. fetcher may be nil, in which case a missing
// local corpus is always an error.
func NewSource(fetcher Fetcher, loaders *Registry) *Source {
	if loaders == nil {
		loaders = NewRegistry()
	}
	return &Source{fetcher: fetcher, loaders: loaders}
}

// Exists reports whether the fetcher knows name.
func (s *Source) Exists(ctx context.Context, name string) (bool, error) {
	if s.fetcher == nil {
		return false, nil
	}
	return s.fetcher.Exists(ctx, name)
}

// Fetch retrieves name from the fetcher.
func (s *Source) Fetch(ctx context.Context, name string) (string, error) {
	if s.fetcher == nil {
		return "", errors.New("no remote source configured")
	}
	return s.fetcher.Fetch(ctx, name)
}

// Save writes text to location, creating parent directories.
func (s *Source) Save(text, location string) error {
	if dir := filepath.Dir(location); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "creating corpus directory")
		}
	}
	return errors.Wrap(os.WriteFile(location, []byte(text), 0644), "writing corpus")
}

// Load reads the corpus at location with the loader registered for its
// extension. The text is returned as stored; see Clean.
func (s *Source) Load(ctx context.Context, location string) (string, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(location)), ".")
	l, err := s.loaders.Get(format)
	if err != nil {
		return "", err
	}
	return l.Load(ctx, location)
}

// Acquire returns the cleaned corpus at location. When the file does not
// exist and topic is set, the topic is fetched exactly once, saved to
// location and used. Missing or empty content is ErrNoKnowledgeBase; an
// empty corpus never reaches graph construction.
func (s *Source) Acquire(ctx context.Context, location, topic string) (string, error) {
	start := time.Now()

	text, err := s.Load(ctx, location)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		text, err = s.fetchOnce(ctx, location, topic)
		if err != nil {
			return "", err
		}
	default:
		return "", errors.Wrapf(err, "loading corpus %s", location)
	}

	cleaned := Clean(text)
	if cleaned == "" {
		return "", errors.WithHint(
			errors.Wrapf(ErrNoKnowledgeBase, "corpus %s is empty", location),
			"add text to the corpus file or delete it so it is fetched again")
	}

	slog.Info("corpus: loaded",
		"location", location,
		"chars", len(cleaned),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return cleaned, nil
}

func (s *Source) fetchOnce(ctx context.Context, location, topic string) (string, error) {
	if topic == "" || s.fetcher == nil {
		return "", errors.WithHint(
			errors.Wrapf(ErrNoKnowledgeBase, "corpus %s not found", location),
			"set corpus.topic to fetch a Wikipedia article")
	}

	slog.Info("corpus: local copy missing, fetching", "topic", topic)
	ok, err := s.fetcher.Exists(ctx, topic)
	if err == nil && !ok {
		err = errors.Newf("%q does not exist", topic)
	}
	if err != nil {
		return "", errors.WithHint(
			errors.Mark(errors.Wrapf(err, "fetching %q", topic), ErrNoKnowledgeBase),
			"check corpus.topic and your network connection")
	}

	text, err := s.fetcher.Fetch(ctx, topic)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "fetching %q", topic), ErrNoKnowledgeBase)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.Wrapf(ErrNoKnowledgeBase, "%q has no text", topic)
	}

	if err := s.Save(text, location); err != nil {
		slog.Warn("corpus: could not save fetched text", "location", location, "error", err)
	}
	return text, nil
}

// Clean trims every line, drops blank lines and joins the rest with single
// spaces. Case is kept for the tagger; extraction lowercases the mentions.
func Clean(text string) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, " ")
}
