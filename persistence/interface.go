// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/minigame/models"
)

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

// 写操作超时
const writeTimeout = 5 * time.Second

// SnapshotStore 竞技场快照存储
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot models.ArenaSnapshot) error
	LoadSnapshot(ctx context.Context, arenaID string) (models.ArenaSnapshot, error)
	DeleteSnapshot(ctx context.Context, arenaID string) error
}

// RecordStore 游戏记录存储
type RecordStore interface {
	SaveRecord(ctx context.Context, record *models.GameRecord) error
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.GameRecord, error)
}

// Store 数据库接口
type Store interface {
	SnapshotStore
	RecordStore
	Close() error
}

// Split serves snapshots and records from different backends, e.g. redis
// for the hot snapshots and postgres for the history.
type Split struct {
	SnapshotStore
	RecordStore
	closers []func() error
}

// NewSplit combines snapshots and records. Close closes each backend once.
func NewSplit(snapshots SnapshotStore, records RecordStore) *Split {
	s := &Split{SnapshotStore: snapshots, RecordStore: records}
	seen := map[any]bool{}
	for _, backend := range []any{snapshots, records} {
		c, ok := backend.(interface{ Close() error })
		if !ok || seen[backend] {
			continue
		}
		seen[backend] = true
		s.closers = append(s.closers, c.Close)
	}
	return s
}

func (s *Split) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
