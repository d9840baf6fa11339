package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. It exists for tests and
// local development; revisions behave exactly like the postgres backend's.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]Document
	revSeq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{documents: map[string]Document{}}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[path]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return doc, nil
}

func (s *MemoryStore) Put(ctx context.Context, path, content, ifMatch string) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.documents[path]
	if exists && existing.Revision != ifMatch {
		return PutResult{Status: PutConflict, CurrentRevision: existing.Revision}, nil
	}
	if !exists && ifMatch != "" {
		return PutResult{Status: PutConflict, CurrentRevision: ""}, nil
	}
	s.revSeq++
	revision := fmt.Sprintf("rev_%d", s.revSeq)
	s.documents[path] = Document{Path: path, Content: content, Revision: revision}
	return PutResult{Status: PutOK, Revision: revision}, nil
}

// Reset drops all documents. Test hook.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = map[string]Document{}
	s.revSeq = 0
}
