package series

import (
	"sync"
	"time"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

// ZeroBranchSet remembers, per (scope, day), branches that answered with an
// all-zero payload for that day. It is an optimisation only: entries expire
// after ttl, the same boundary as the response cache that produced them.
type ZeroBranchSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]map[domain.BranchID]time.Time
}

// NewZeroBranchSet creates an empty set whose entries live for ttl.
func NewZeroBranchSet(ttl time.Duration) *ZeroBranchSet {
	return &ZeroBranchSet{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]map[domain.BranchID]time.Time),
	}
}

func zeroKey(scopeKey, dayKey string) string {
	return scopeKey + "|" + dayKey
}

// Contains reports whether branch is known-zero for the scope and day.
func (s *ZeroBranchSet) Contains(scopeKey, dayKey string, branch domain.BranchID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := zeroKey(scopeKey, dayKey)
	expiresAt, ok := s.entries[key][branch]
	if !ok {
		return false
	}
	if !s.now().Before(expiresAt) {
		delete(s.entries[key], branch)
		return false
	}
	return true
}

// Add marks branch as known-zero.
func (s *ZeroBranchSet) Add(scopeKey, dayKey string, branch domain.BranchID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := zeroKey(scopeKey, dayKey)
	if s.entries[key] == nil {
		s.entries[key] = make(map[domain.BranchID]time.Time)
	}
	s.entries[key][branch] = s.now().Add(s.ttl)
}

// Remove forgets branch, e.g. after it returned revenue.
func (s *ZeroBranchSet) Remove(scopeKey, dayKey string, branch domain.BranchID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := zeroKey(scopeKey, dayKey)
	delete(s.entries[key], branch)
	if len(s.entries[key]) == 0 {
		delete(s.entries, key)
	}
}

