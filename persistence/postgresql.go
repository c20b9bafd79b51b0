// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/minigame/models"
)

// PostgreSQL 数据库实现, 直接使用 database/sql 和 lib/pq
type PostgreSQL struct {
	db *sql.DB
}

func postgresDSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", postgresDSN(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	// 竞技场快照表
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS arena_snapshots (
            id SERIAL PRIMARY KEY,
            arena_id VARCHAR(64) UNIQUE NOT NULL,
            minigame VARCHAR(100) NOT NULL,
            state_key BIGINT NOT NULL,
            state_id VARCHAR(100),
            has_state BOOLEAN DEFAULT FALSE,
            players TEXT[] NOT NULL DEFAULT '{}',
            closed BOOLEAN DEFAULT FALSE,
            seq BIGINT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 游戏记录表
	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            arena_id VARCHAR(64) NOT NULL,
            minigame VARCHAR(100) NOT NULL,
            players TEXT[] NOT NULL DEFAULT '{}',
            started_at TIMESTAMP NOT NULL,
            finished_at TIMESTAMP NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_minigame ON game_records(minigame);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
        CREATE INDEX IF NOT EXISTS idx_game_records_players ON game_records USING GIN (players);
    `)

	return err
}

// SaveSnapshot 保存竞技场快照 (UPSERT, 旧序号不覆盖新序号)
func (p *PostgreSQL) SaveSnapshot(ctx context.Context, s models.ArenaSnapshot) error {
	query := `
        INSERT INTO arena_snapshots (arena_id, minigame, state_key, state_id, has_state, players, closed, seq, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (arena_id)
        DO UPDATE SET minigame = $2, state_key = $3, state_id = $4, has_state = $5,
            players = $6, closed = $7, seq = $8, updated_at = $9
        WHERE arena_snapshots.seq < $8
    `
	_, err := p.db.ExecContext(ctx, query,
		s.ArenaID, s.Minigame, s.StateKey, s.StateID, s.HasState,
		pq.Array(s.Players), s.Closed, int64(s.Seq), s.UpdatedAt)
	return err
}

// LoadSnapshot 加载竞技场快照
func (p *PostgreSQL) LoadSnapshot(ctx context.Context, arenaID string) (models.ArenaSnapshot, error) {
	query := `
        SELECT arena_id, minigame, state_key, state_id, has_state, players, closed, seq, updated_at
        FROM arena_snapshots WHERE arena_id = $1
    `
	var s models.ArenaSnapshot
	var seq int64
	err := p.db.QueryRowContext(ctx, query, arenaID).Scan(
		&s.ArenaID, &s.Minigame, &s.StateKey, &s.StateID, &s.HasState,
		pq.Array(&s.Players), &s.Closed, &seq, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ArenaSnapshot{}, ErrRecordNotFound
		}
		return models.ArenaSnapshot{}, err
	}
	s.Seq = uint64(seq)
	return s, nil
}

// DeleteSnapshot 删除竞技场快照
func (p *PostgreSQL) DeleteSnapshot(ctx context.Context, arenaID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM arena_snapshots WHERE arena_id = $1`, arenaID)
	return err
}

// SaveRecord 保存游戏记录
func (p *PostgreSQL) SaveRecord(ctx context.Context, r *models.GameRecord) error {
	query := `
        INSERT INTO game_records (arena_id, minigame, players, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var id int64
	err := p.db.QueryRowContext(ctx, query,
		r.ArenaID, r.Minigame, pq.Array(r.Players), r.StartedAt, r.FinishedAt).Scan(&id)
	if err != nil {
		return err
	}
	r.ID = uint(id)
	return nil
}

// ListRecords 查询游戏记录, 最新的在前
func (p *PostgreSQL) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.GameRecord, error) {
	query, args := recordQuery(filter)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.GameRecord, 0)
	for rows.Next() {
		var r models.GameRecord
		var id int64
		if err := rows.Scan(&id, &r.ArenaID, &r.Minigame, pq.Array(&r.Players), &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.ID = uint(id)
		records = append(records, r)
	}
	return records, rows.Err()
}

// recordQuery 根据过滤条件拼接查询语句
func recordQuery(filter models.RecordFilter) (string, []interface{}) {
	var where []string
	var args []interface{}
	if filter.Minigame != "" {
		args = append(args, filter.Minigame)
		where = append(where, fmt.Sprintf("minigame = $%d", len(args)))
	}
	if filter.Player != "" {
		args = append(args, filter.Player)
		where = append(where, fmt.Sprintf("$%d = ANY(players)", len(args)))
	}

	query := `SELECT id, arena_id, minigame, players, started_at, finished_at FROM game_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
