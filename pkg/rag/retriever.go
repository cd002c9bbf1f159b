// Package rag wraps a chromem-go vector store as the best-effort context
// retriever: indexed background passages about the personas are matched
// against the user utterance and joined into a short context block.
package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTopK is the number of passages retrieved per query.
const DefaultTopK = 3

// CollectionName holds the persona background passages.
const CollectionName = "persona-background"

// Store is a persistent chromem-go database holding one collection of
// background passages.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
	topK    int
}

// New opens (or creates) the persistent vector store under dataDir. embedFn
// computes embeddings; pass chromem.NewEmbeddingFuncOpenAICompat pointed at
// an OpenAI-compatible embeddings endpoint, or a deterministic function in
// tests.
func New(dataDir string, embedFn chromem.EmbeddingFunc, topK int) (*Store, error) {
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create vectorstore dir")
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "open vectorstore")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Store{db: db, embedFn: embedFn, topK: topK}, nil
}

func (s *Store) collection() *chromem.Collection {
	col := s.db.GetCollection(CollectionName, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(CollectionName, nil, s.embedFn)
		if err != nil {
			log.Error().Err(err).Msg("failed to create vector collection")
			return nil
		}
	}
	return col
}

// Ingest indexes (or re-indexes) one passage under the given id.
func (s *Store) Ingest(ctx context.Context, id, content string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection()
	if col == nil {
		return errors.New("vectorstore: nil collection")
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	})
}

// Count returns the number of indexed passages.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.db.GetCollection(CollectionName, s.embedFn)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Retrieve returns the top-K most similar passages joined by newlines, or ""
// when nothing is indexed or anything fails. Retrieval is never a hard
// dependency: errors are logged and swallowed.
func (s *Store) Retrieve(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.db.GetCollection(CollectionName, s.embedFn)
	if col == nil {
		return ""
	}
	count := col.Count()
	if count == 0 {
		return ""
	}
	k := s.topK
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error
	// chromem-go sometimes rejects nResults despite the Count check; step
	// down k until a query succeeds.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Debug().Err(err).Msg("vector query failed, returning empty context")
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) != "" {
			parts = append(parts, r.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// PassageID builds a stable document id for ingested files.
func PassageID(source string, n int) string {
	return fmt.Sprintf("%s#%d", source, n)
}
