// Package docstore tracks the text of documents currently open in the editor.
package docstore

import "sync"

// Snapshot is an immutable copy of a document's state at read time.
type Snapshot struct {
	Text    string
	Version int32
}

// Store is an in-memory map of open documents, safe for concurrent use.
// Documents are created on open, replaced on change, and dropped on close.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Snapshot
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string]Snapshot)}
}

// Put inserts or overwrites the document at uri.
func (s *Store) Put(uri, text string, version int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = Snapshot{Text: text, Version: version}
}

// Get returns a snapshot of the document at uri.
func (s *Store) Get(uri string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.docs[uri]
	return snap, ok
}

// Remove drops the document at uri. Unknown uris are a no-op.
func (s *Store) Remove(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Len reports how many documents are open.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
