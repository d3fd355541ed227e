package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 直播会话表
		`CREATE TABLE IF NOT EXISTS live_reporting_sessions (
			id BIGSERIAL PRIMARY KEY,
			match_id VARCHAR(100) UNIQUE NOT NULL,
			competition VARCHAR(50) NOT NULL,
			channel_id VARCHAR(100),
			thread_id VARCHAR(100),
			is_active BOOLEAN DEFAULT TRUE,
			last_status VARCHAR(50),
			last_score VARCHAR(20) DEFAULT '0-0',
			last_event_keys TEXT DEFAULT '[]',
			update_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			last_error TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_update TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_match_id ON live_reporting_sessions(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_is_active ON live_reporting_sessions(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON live_reporting_sessions(ended_at)`,

		// 比赛审计表
		`CREATE TABLE IF NOT EXISTS match_audit (
			id BIGSERIAL PRIMARY KEY,
			match_id VARCHAR(100) UNIQUE NOT NULL,
			competition VARCHAR(50) NOT NULL,
			home_team VARCHAR(100),
			away_team VARCHAR(100),
			venue VARCHAR(200),
			final_status VARCHAR(50),
			final_score VARCHAR(20),
			events_posted INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_audit_match_id ON match_audit(match_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
