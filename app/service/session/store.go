package session

import (
	"sort"
	"sync"
	"time"

	"flightdesk/app/config"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/do"
)

const shardCount = 32

type entry struct {
	stateMu sync.Mutex
	state   State
	history history

	turnMu sync.Mutex
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Store keeps sessions in memory, sharded by key hash so that unrelated
// sessions never contend on the same lock.
type Store struct {
	historySize int
	now         func() time.Time
	shards      [shardCount]*shard
}

func New(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewStore(cfg.Session.HistorySize, nil), nil
}

func NewStore(historySize int, now func() time.Time) *Store {
	if historySize <= 0 {
		historySize = 20
	}
	if now == nil {
		now = time.Now
	}

	s := &Store{
		historySize: historySize,
		now:         now,
	}

	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return s
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%shardCount]
}

func (s *Store) lookup(id string) (*entry, bool) {
	sh := s.shardFor(id)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[id]
	return e, ok
}

// getOrCreate returns the session for id, creating it on first reference.
func (s *Store) getOrCreate(id string) *entry {
	if e, ok := s.lookup(id); ok {
		return e
	}

	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[id]; ok {
		return e
	}

	e := &entry{history: history{size: s.historySize}}
	sh.entries[id] = e

	return e
}

// Get returns a copy of the session state.
func (s *Store) Get(id string) State {
	e := s.getOrCreate(id)

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return e.state.Clone()
}

// Update applies fn to the session state atomically and returns the result.
func (s *Store) Update(id string, fn func(*State)) State {
	e := s.getOrCreate(id)

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	fn(&e.state)

	return e.state.Clone()
}

// LockTurn serializes turns of one session. The returned func releases it.
func (s *Store) LockTurn(id string) func() {
	e := s.getOrCreate(id)
	e.turnMu.Lock()

	return e.turnMu.Unlock
}

func (s *Store) AppendTurn(id, role, text string) {
	e := s.getOrCreate(id)

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.history.add(Turn{
		Role:      role,
		Text:      text,
		Timestamp: s.now(),
	})
}

func (s *Store) Turns(id string) []Turn {
	e := s.getOrCreate(id)

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return e.history.snapshot()
}

// Peek returns state and turns without creating the session.
func (s *Store) Peek(id string) (State, []Turn, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return State{}, nil, false
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return e.state.Clone(), e.history.snapshot(), true
}

// Keys returns all session ids, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0)

	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.entries {
			keys = append(keys, id)
		}
		sh.mu.RUnlock()
	}

	sort.Strings(keys)

	return keys
}

func (s *Store) Delete(id string) {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.entries, id)
}
