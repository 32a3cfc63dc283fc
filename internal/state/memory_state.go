package state

import (
	"sort"
	"sync"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/auto-dns/traefik-cname-sync/internal/util"
)

// pendingEntry is a scheduled deletion. The token identifies one arming so a
// timer that fires after its entry was canceled or replaced can be recognized.
type pendingEntry struct {
	fireAt time.Time
	token  uint64
	stop   func() bool
}

// MemoryState holds the managed-record and pending-deletion tables. Mutations
// come from a single writer; the lock only makes snapshots safe to read from
// other goroutines.
type MemoryState struct {
	mu      sync.RWMutex
	records map[domain.RecordKey]domain.ManagedRecord
	pending map[string]pendingEntry
	held    map[string]struct{}
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		records: make(map[domain.RecordKey]domain.ManagedRecord),
		pending: make(map[string]pendingEntry),
		held:    make(map[string]struct{}),
	}
}

// PutRecord inserts or replaces the record under its (container, hostname) key.
func (s *MemoryState) PutRecord(rec domain.ManagedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key()] = rec
}

func (s *MemoryState) RemoveRecord(key domain.RecordKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	return true
}

func (s *MemoryState) HasOwner(containerId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.records {
		if k.ContainerId == containerId {
			return true
		}
	}
	return false
}

// RecordsOwnedBy returns the records of one container sorted by hostname.
func (s *MemoryState) RecordsOwnedBy(containerId string) []domain.ManagedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ManagedRecord
	for k, r := range s.records {
		if k.ContainerId == containerId {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Owners returns the distinct owning container ids, sorted.
func (s *MemoryState) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for k := range s.records {
		set[k.ContainerId] = struct{}{}
	}
	return util.SortedKeys(set)
}

// Records returns a copy of the managed-record table.
func (s *MemoryState) Records() []domain.ManagedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ManagedRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (s *MemoryState) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ArmPending stores a pending deletion, stopping the timer of any entry it
// replaces.
func (s *MemoryState) ArmPending(containerId string, fireAt time.Time, token uint64, stop func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[containerId]; ok && old.stop != nil {
		old.stop()
	}
	s.pending[containerId] = pendingEntry{fireAt: fireAt, token: token, stop: stop}
}

// CancelPending stops the timer and drops the entry. It reports whether an
// entry existed.
func (s *MemoryState) CancelPending(containerId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[containerId]
	if !ok {
		return false
	}
	if p.stop != nil {
		p.stop()
	}
	delete(s.pending, containerId)
	return true
}

// TakePending removes the entry only if it still carries token, and reports
// whether it did. A stale token means the deletion was canceled or re-armed.
func (s *MemoryState) TakePending(containerId string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[containerId]
	if !ok || p.token != token {
		return false
	}
	delete(s.pending, containerId)
	return true
}

func (s *MemoryState) HasPending(containerId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[containerId]
	return ok
}

// PendingIDs returns the container ids with a pending deletion, sorted.
func (s *MemoryState) PendingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.SortedKeys(s.pending)
}

// Pending returns a copy of the pending-deletion table.
func (s *MemoryState) Pending() []domain.PendingDeletion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PendingDeletion, 0, len(s.pending))
	for id, p := range s.pending {
		out = append(out, domain.PendingDeletion{ContainerId: id, FireAt: p.fireAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerId < out[j].ContainerId })
	return out
}

// CancelAllPending stops every timer. Used on shutdown.
func (s *MemoryState) CancelAllPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		if p.stop != nil {
			p.stop()
		}
		delete(s.pending, id)
	}
}

// Hold marks a container whose deletion failed and must not be re-armed
// until released.
func (s *MemoryState) Hold(containerId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[containerId] = struct{}{}
}

func (s *MemoryState) Release(containerId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.held[containerId]; !ok {
		return false
	}
	delete(s.held, containerId)
	return true
}

// ReleaseAll clears every hold and returns the released container ids, sorted.
func (s *MemoryState) ReleaseAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := util.SortedKeys(s.held)
	s.held = make(map[string]struct{})
	return ids
}

func (s *MemoryState) IsHeld(containerId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.held[containerId]
	return ok
}

func (s *MemoryState) Held() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.SortedKeys(s.held)
}

func sortRecords(rs []domain.ManagedRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ContainerId != rs[j].ContainerId {
			return rs[i].ContainerId < rs[j].ContainerId
		}
		return rs[i].Hostname < rs[j].Hostname
	})
}
