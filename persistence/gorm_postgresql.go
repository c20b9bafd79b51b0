// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// gormWriter 将GORM日志写入zap
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	logger.Log.Warnf(format, args...)
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	// 配置GORM日志, 只输出慢查询和错误
	gormLogger := gormlogger.New(
		gormWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(postgresDSN(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormArenaSnapshot{}, &models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveSnapshot 保存竞技场快照, 旧的序号不会覆盖新的
func (p *GormPostgreSQL) SaveSnapshot(ctx context.Context, snapshot models.ArenaSnapshot) error {
	row := models.SnapshotToGorm(snapshot)
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "arena_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"minigame", "state_key", "state_id", "has_state", "players", "closed", "seq", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "arena_snapshots.seq < excluded.seq"},
		}},
	}).Create(&row).Error
}

// LoadSnapshot 加载竞技场快照
func (p *GormPostgreSQL) LoadSnapshot(ctx context.Context, arenaID string) (models.ArenaSnapshot, error) {
	var row models.GormArenaSnapshot
	if err := p.db.WithContext(ctx).Where("arena_id = ?", arenaID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ArenaSnapshot{}, ErrRecordNotFound
		}
		return models.ArenaSnapshot{}, err
	}
	return row.Snapshot(), nil
}

// DeleteSnapshot 删除竞技场快照
func (p *GormPostgreSQL) DeleteSnapshot(ctx context.Context, arenaID string) error {
	return p.db.WithContext(ctx).Where("arena_id = ?", arenaID).Delete(&models.GormArenaSnapshot{}).Error
}

// SaveRecord 保存游戏记录
func (p *GormPostgreSQL) SaveRecord(ctx context.Context, record *models.GameRecord) error {
	row := models.RecordToGorm(*record)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	record.ID = row.ID
	return nil
}

// ListRecords 查询游戏记录, 最新的在前
func (p *GormPostgreSQL) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.GameRecord, error) {
	query := p.db.WithContext(ctx).Model(&models.GormGameRecord{})
	if filter.Minigame != "" {
		query = query.Where("minigame = ?", filter.Minigame)
	}
	if filter.Player != "" {
		player, err := json.Marshal([]string{filter.Player})
		if err != nil {
			return nil, err
		}
		query = query.Where("players @> ?::jsonb", string(player))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.GormGameRecord
	if err := query.Order("finished_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}
	return records, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
