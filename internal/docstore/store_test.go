package docstore

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_PutGetRemove(t *testing.T) {
	s := New()

	if _, ok := s.Get("file:///a"); ok {
		t.Fatal("expected miss on empty store")
	}

	s.Put("file:///a", "pipeline {}", 1)
	snap, ok := s.Get("file:///a")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if snap.Text != "pipeline {}" || snap.Version != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	// Overwrite replaces content and version.
	s.Put("file:///a", "pipeline { agent any }", 2)
	snap, _ = s.Get("file:///a")
	if snap.Text != "pipeline { agent any }" || snap.Version != 2 {
		t.Errorf("snapshot after overwrite = %+v", snap)
	}

	s.Remove("file:///a")
	if _, ok := s.Get("file:///a"); ok {
		t.Error("expected miss after Remove")
	}
	// Removing again is fine.
	s.Remove("file:///a")
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := New()
	s.Put("file:///a", "v1", 1)
	snap, _ := s.Get("file:///a")
	s.Put("file:///a", "v2", 2)
	if snap.Text != "v1" || snap.Version != 1 {
		t.Errorf("earlier snapshot mutated: %+v", snap)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uri := fmt.Sprintf("file:///doc-%d", n%4)
			for j := 0; j < 100; j++ {
				s.Put(uri, "content", int32(j))
				s.Get(uri)
				if j%10 == 0 {
					s.Remove(uri)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := s.Len(); got > 4 {
		t.Errorf("Len() = %d, want at most 4", got)
	}
}
