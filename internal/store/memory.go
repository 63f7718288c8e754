package store

import (
	"sort"
	"sync"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// SnapshotHistory holds the snapshots of one city and provider in insertion order.
type SnapshotHistory struct {
	Snapshots []weather.ForecastSnapshot
}

// MemoryStore is a concurrency-safe in-memory forecast store with the same
// Load contract as DiskStore.
type MemoryStore struct {
	mu sync.RWMutex

	// key: city:provider
	data map[string]*SnapshotHistory

	// max number of snapshots per city and provider, <= 0 is unlimited
	maxHistory int
}

func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*SnapshotHistory),
		maxHistory: maxHistory,
	}
}

func memoryKey(city string, p weather.Provider) string {
	return city + ":" + string(p)
}

// Save appends snapshots and enforces the history limit.
func (s *MemoryStore) Save(snaps ...weather.ForecastSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		key := memoryKey(snap.City, snap.Provider)
		history, ok := s.data[key]
		if !ok {
			history = &SnapshotHistory{}
			s.data[key] = history
		}
		history.Snapshots = append(history.Snapshots, snap)

		if s.maxHistory > 0 && len(history.Snapshots) > s.maxHistory {
			over := len(history.Snapshots) - s.maxHistory
			history.Snapshots = history.Snapshots[over:]
		}
	}
}

// Load returns the snapshots with the given reference date, ordered by
// acquisition time and offset.
func (s *MemoryStore) Load(city string, p weather.Provider, referenceDate time.Time) ([]weather.ForecastSnapshot, error) {
	ref := weather.Day(referenceDate)

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[memoryKey(city, p)]
	if !ok {
		return nil, nil
	}

	var result []weather.ForecastSnapshot
	for _, snap := range history.Snapshots {
		if weather.Day(snap.ReferenceDate).Equal(ref) {
			result = append(result, snap)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].AcquiredAt.Equal(result[j].AcquiredAt) {
			return result[i].AcquiredAt.Before(result[j].AcquiredAt)
		}
		return result[i].Offset < result[j].Offset
	})
	return result, nil
}
