package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/minigame/models"
)

// Memory keeps everything in process. It is the default store when no
// database is configured and the store used by tests.
type Memory struct {
	mutex     sync.RWMutex
	snapshots map[string]models.ArenaSnapshot
	records   []models.GameRecord
	nextID    uint
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]models.ArenaSnapshot),
		nextID:    1,
	}
}

func (m *Memory) SaveSnapshot(_ context.Context, snapshot models.ArenaSnapshot) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	snapshot.Players = append([]string(nil), snapshot.Players...)
	m.snapshots[snapshot.ArenaID] = snapshot
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context, arenaID string) (models.ArenaSnapshot, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	snapshot, ok := m.snapshots[arenaID]
	if !ok {
		return models.ArenaSnapshot{}, ErrRecordNotFound
	}
	return snapshot, nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, arenaID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.snapshots, arenaID)
	return nil
}

// SaveRecord assigns record an id and stores a copy.
func (m *Memory) SaveRecord(_ context.Context, record *models.GameRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record.ID = m.nextID
	m.nextID++
	stored := *record
	stored.Players = append([]string(nil), record.Players...)
	m.records = append(m.records, stored)
	return nil
}

// ListRecords returns matching records, newest first.
func (m *Memory) ListRecords(_ context.Context, filter models.RecordFilter) ([]models.GameRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]models.GameRecord, 0)
	for _, r := range m.records {
		if filter.Minigame != "" && r.Minigame != filter.Minigame {
			continue
		}
		if filter.Player != "" && !r.HasPlayer(filter.Player) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
