// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormArenaSnapshot 竞技场快照
type GormArenaSnapshot struct {
	ID        uint     `gorm:"primaryKey"`
	ArenaID   string   `gorm:"uniqueIndex;size:64;not null"`
	Minigame  string   `gorm:"index;size:100;not null"`
	StateKey  int      `gorm:"not null"`
	StateID   string   `gorm:"size:100"`
	HasState  bool     `gorm:"default:false"`
	Players   []string `gorm:"type:jsonb;serializer:json"`
	Closed    bool     `gorm:"default:false"`
	Seq       uint64   `gorm:"not null"`
	UpdatedAt time.Time
}

func (GormArenaSnapshot) TableName() string {
	return "arena_snapshots"
}

// GormGameRecord 游戏记录
type GormGameRecord struct {
	gorm.Model
	ArenaID    string    `gorm:"index;size:64;not null"`
	Minigame   string    `gorm:"index;size:100;not null"`
	Players    []string  `gorm:"type:jsonb;serializer:json"`
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"index;not null"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

func SnapshotToGorm(s ArenaSnapshot) GormArenaSnapshot {
	return GormArenaSnapshot{
		ArenaID:   s.ArenaID,
		Minigame:  s.Minigame,
		StateKey:  s.StateKey,
		StateID:   s.StateID,
		HasState:  s.HasState,
		Players:   s.Players,
		Closed:    s.Closed,
		Seq:       s.Seq,
		UpdatedAt: s.UpdatedAt,
	}
}

func (m GormArenaSnapshot) Snapshot() ArenaSnapshot {
	return ArenaSnapshot{
		ArenaID:   m.ArenaID,
		Minigame:  m.Minigame,
		StateKey:  m.StateKey,
		StateID:   m.StateID,
		HasState:  m.HasState,
		Players:   m.Players,
		Closed:    m.Closed,
		Seq:       m.Seq,
		UpdatedAt: m.UpdatedAt,
	}
}

func RecordToGorm(r GameRecord) GormGameRecord {
	return GormGameRecord{
		Model:      gorm.Model{ID: r.ID},
		ArenaID:    r.ArenaID,
		Minigame:   r.Minigame,
		Players:    r.Players,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func (m GormGameRecord) Record() GameRecord {
	return GameRecord{
		ID:         m.ID,
		ArenaID:    m.ArenaID,
		Minigame:   m.Minigame,
		Players:    m.Players,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}
