package memory

import (
	"testing"

	"github.com/google/uuid"
)

type stubEntry struct {
	id     uuid.UUID
	erased bool
}

func (s *stubEntry) ID() uuid.UUID { return s.id }
func (s *stubEntry) Erase()        { s.erased = true }

func TestBoundedStorePutGet(t *testing.T) {
	store := NewBoundedStore[*stubEntry](10)
	e := &stubEntry{id: uuid.New()}
	store.Put(e)

	got, ok := store.Get(e.id)
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if got != e {
		t.Fatal("expected identity match")
	}
}

func TestBoundedStoreEvictsLRU(t *testing.T) {
	store := NewBoundedStore[*stubEntry](2)
	a := &stubEntry{id: uuid.New()}
	b := &stubEntry{id: uuid.New()}
	c := &stubEntry{id: uuid.New()}

	store.Put(a)
	store.Put(b)
	store.Put(c) // evicts a (oldest, never re-accessed)

	if _, ok := store.Get(a.id); ok {
		t.Fatal("expected a to be evicted")
	}
	if !a.erased {
		t.Fatal("expected a to be erased on eviction")
	}
	if _, ok := store.Get(b.id); !ok {
		t.Fatal("expected b to remain")
	}
	if _, ok := store.Get(c.id); !ok {
		t.Fatal("expected c to remain")
	}
}

func TestBoundedStoreGetPromotesRecency(t *testing.T) {
	store := NewBoundedStore[*stubEntry](2)
	a := &stubEntry{id: uuid.New()}
	b := &stubEntry{id: uuid.New()}
	c := &stubEntry{id: uuid.New()}

	store.Put(a)
	store.Put(b)
	store.Get(a.id) // a is now MRU; b is LRU
	store.Put(c)    // evicts b

	if _, ok := store.Get(b.id); ok {
		t.Fatal("expected b to be evicted after losing recency")
	}
	if _, ok := store.Get(a.id); !ok {
		t.Fatal("expected a to survive due to recent access")
	}
}

func TestBoundedStorePeekDoesNotPromote(t *testing.T) {
	store := NewBoundedStore[*stubEntry](2)
	a := &stubEntry{id: uuid.New()}
	b := &stubEntry{id: uuid.New()}
	c := &stubEntry{id: uuid.New()}

	store.Put(a)
	store.Put(b)
	store.Peek(a.id) // should NOT promote a
	store.Put(c)     // a is still LRU, gets evicted

	if _, ok := store.Get(a.id); ok {
		t.Fatal("expected peek to not protect from eviction")
	}
}

func TestBoundedStoreRemoveErases(t *testing.T) {
	store := NewBoundedStore[*stubEntry](10)
	a := &stubEntry{id: uuid.New()}
	store.Put(a)

	if !store.Remove(a.id) {
		t.Fatal("expected remove to report success")
	}
	if !a.erased {
		t.Fatal("expected removed entry to be erased")
	}
	if store.Remove(a.id) {
		t.Fatal("expected second remove to report absence")
	}
}

func TestBoundedStoreClearErasesAll(t *testing.T) {
	store := NewBoundedStore[*stubEntry](10)
	a := &stubEntry{id: uuid.New()}
	b := &stubEntry{id: uuid.New()}
	store.Put(a)
	store.Put(b)

	store.Clear()

	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
	if !a.erased || !b.erased {
		t.Fatal("expected all entries erased on clear")
	}
}

func TestBoundedStoreDefaultCapacity(t *testing.T) {
	store := NewBoundedStore[*stubEntry](0)
	if store.capacity != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, store.capacity)
	}
}
