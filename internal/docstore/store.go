package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Document is one revisioned text document in the shared store.
type Document struct {
	Path     string
	Content  string
	Revision string
}

// PutStatus reports the outcome of a conditional write. A conflict is an
// expected outcome under concurrent writers, so it is part of the result
// rather than an error.
type PutStatus string

const (
	PutOK       PutStatus = "ok"
	PutConflict PutStatus = "conflict"
)

type PutResult struct {
	Status PutStatus
	// Revision is the new revision after a successful write.
	Revision string
	// CurrentRevision is the revision the store holds after a conflict.
	CurrentRevision string
}

// Store is the shared remote document store. Put is conditioned on the
// revision the caller last read; an empty ifMatch asserts the document does
// not exist yet.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Put(ctx context.Context, path, content, ifMatch string) (PutResult, error)
}

type StoreFactory func(dsn string) (Store, error)

var storeFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]StoreFactory
}{
	factories: map[string]StoreFactory{},
}

func RegisterStoreFactory(scheme string, factory StoreFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	storeFactoryRegistry.mu.Lock()
	defer storeFactoryRegistry.mu.Unlock()
	storeFactoryRegistry.factories[scheme] = factory
}

func lookupStoreFactory(scheme string) (StoreFactory, bool) {
	scheme = normalizeScheme(scheme)
	storeFactoryRegistry.mu.RLock()
	defer storeFactoryRegistry.mu.RUnlock()
	factory, ok := storeFactoryRegistry.factories[scheme]
	return factory, ok
}

// BuildStoreFromDSN selects a backend by DSN scheme.
func BuildStoreFromDSN(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty document store dsn", ErrInvalidInput)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupStoreFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported document store scheme: %s", scheme)
	}
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
