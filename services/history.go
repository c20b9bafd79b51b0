// services/history.go
package services

import (
	"context"

	"github.com/wfunc/minigame/models"
	"github.com/wfunc/minigame/persistence"
)

type History struct {
	records persistence.RecordStore
}

func NewHistory(records persistence.RecordStore) *History {
	return &History{records: records}
}

// PlayerHistory 获取玩家最近的游戏记录
func (s *History) PlayerHistory(ctx context.Context, player string, limit int) ([]models.GameRecord, error) {
	return s.records.ListRecords(ctx, models.RecordFilter{Player: player, Limit: limit})
}

// PlayerStats 获取玩家统计
func (s *History) PlayerStats(ctx context.Context, player string) (models.PlayerStats, error) {
	stats := models.PlayerStats{
		Player:     player,
		ByMinigame: make(map[string]int),
	}

	records, err := s.records.ListRecords(ctx, models.RecordFilter{Player: player})
	if err != nil {
		return stats, err
	}

	for _, r := range records {
		stats.TotalGames++
		stats.ByMinigame[r.Minigame]++
		stats.PlayTime += r.Duration()
		if r.FinishedAt.After(stats.LastPlayed) {
			stats.LastPlayed = r.FinishedAt
		}
	}
	return stats, nil
}

// Recent 获取某个小游戏最近的记录, minigame 为空时返回全部
func (s *History) Recent(ctx context.Context, minigame string, limit int) ([]models.GameRecord, error) {
	return s.records.ListRecords(ctx, models.RecordFilter{Minigame: minigame, Limit: limit})
}
