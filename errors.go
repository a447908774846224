package kgchat

import (
	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/corpus"
	"github.com/brunobiangulo/kgchat/match"
	"github.com/brunobiangulo/kgchat/store"
)

var (
	// ErrNoKnowledgeBase is returned when no corpus could be loaded or
	// fetched, or when it is empty.
	ErrNoKnowledgeBase = corpus.ErrNoKnowledgeBase

	// ErrNoMatchAvailable is returned when the graph has no nodes.
	ErrNoMatchAvailable = match.ErrNoMatchAvailable

	// ErrEmbeddingFailed is returned when the embedding provider fails.
	ErrEmbeddingFailed = match.ErrEmbeddingFailed

	// ErrGraphNotFound is returned when no graph is saved under a name.
	ErrGraphNotFound = store.ErrGraphNotFound

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("kgchat: invalid configuration")

	// ErrClosed is returned when asking a closed bot.
	ErrClosed = errors.New("kgchat: bot is closed")
)
