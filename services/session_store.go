package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"livereport-service/logger"
	"livereport-service/pkg/common"
)

// ReportingSession 直播会话的持久化状态。比较快照所需的全部上下文都在这里，
// 进程重启后从数据库恢复即可续播。
type ReportingSession struct {
	ID            int64      `json:"id"`
	MatchID       string     `json:"match_id"`
	Competition   string     `json:"competition"`
	ChannelID     string     `json:"channel_id"`
	ThreadID      string     `json:"thread_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	LastStatus    string     `json:"last_status"`
	LastScore     string     `json:"last_score"`
	LastEventKeys []string   `json:"last_event_keys"`
	UpdateCount   int        `json:"update_count"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	LastUpdate    time.Time  `json:"last_update"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// HasEventKey 判断事件键是否已发布过
func (s *ReportingSession) HasEventKey(key string) bool {
	for _, k := range s.LastEventKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SessionStore 直播会话的数据库存取层
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore 创建会话存取层
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, match_id, competition, channel_id, COALESCE(thread_id, ''),
	is_active, COALESCE(last_status, ''), COALESCE(last_score, '0-0'),
	COALESCE(last_event_keys, '[]'), update_count, error_count, COALESCE(last_error, ''),
	started_at, last_update, ended_at`

// CreateSession 创建或复活一个会话。同一match_id重复创建时复用既有行：
// 旧会话若已结束则清零进度重新开始，仍活跃则原样返回（幂等）。
func (s *SessionStore) CreateSession(matchID, competition, channelID string) (*ReportingSession, error) {
	existing, err := s.GetSession(matchID)
	if err == nil && existing.IsActive {
		return existing, nil
	}

	row := s.db.QueryRow(`
		INSERT INTO live_reporting_sessions (match_id, competition, channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (match_id) DO UPDATE SET
			competition = EXCLUDED.competition,
			channel_id = EXCLUDED.channel_id,
			is_active = TRUE,
			last_status = NULL,
			last_score = '0-0',
			last_event_keys = '[]',
			update_count = 0,
			error_count = 0,
			last_error = NULL,
			started_at = CURRENT_TIMESTAMP,
			last_update = CURRENT_TIMESTAMP,
			ended_at = NULL
		RETURNING `+sessionColumns,
		matchID, competition, channelID)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session for match %s: %w", matchID, err)
	}

	logger.Printf("[SessionStore] 📝 Session ready for match %s (channel %s)", matchID, channelID)
	return session, nil
}

// GetSession 按match_id读取会话
func (s *SessionStore) GetSession(matchID string) (*ReportingSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM live_reporting_sessions WHERE match_id = $1`, matchID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session for match %s: %w", matchID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session for match %s: %w", matchID, err)
	}
	return session, nil
}

// ListActiveSessions 列出所有活跃会话，服务启动时据此恢复监控
func (s *SessionStore) ListActiveSessions() ([]*ReportingSession, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM live_reporting_sessions WHERE is_active = TRUE ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ReportingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ListSessions 列出全部会话（管理接口用）
func (s *SessionStore) ListSessions(limit int) ([]*ReportingSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM live_reporting_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ReportingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SaveProgress 持久化一轮diff的结果。事件键集合在行锁内与既有集合求并集
// 后写回，只增不减；update_count按本轮实际发布条数递增。
func (s *SessionStore) SaveProgress(matchID, status, score string, eventKeys []string, postedCount int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: save progress for match %s: %v", common.ErrStorageFailed, matchID, err)
	}
	defer tx.Rollback()

	var storedJSON string
	err = tx.QueryRow(`SELECT COALESCE(last_event_keys, '[]') FROM live_reporting_sessions WHERE match_id = $1 FOR UPDATE`,
		matchID).Scan(&storedJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("session for match %s: %w", matchID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: save progress for match %s: %v", common.ErrStorageFailed, matchID, err)
	}

	var stored []string
	if err := json.Unmarshal([]byte(storedJSON), &stored); err != nil {
		logger.Errorf("[SessionStore] ⚠️ Corrupt event keys for match %s, resetting: %v", matchID, err)
		stored = nil
	}

	keysJSON, err := json.Marshal(unionKeys(stored, eventKeys))
	if err != nil {
		return fmt.Errorf("encode event keys: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE live_reporting_sessions SET
			last_status = $2,
			last_score = $3,
			last_event_keys = $4,
			update_count = update_count + $5,
			error_count = 0,
			last_error = NULL,
			last_update = CURRENT_TIMESTAMP
		WHERE match_id = $1`,
		matchID, status, score, string(keysJSON), postedCount)
	if err != nil {
		return fmt.Errorf("%w: save progress for match %s: %v", common.ErrStorageFailed, matchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: save progress for match %s: %v", common.ErrStorageFailed, matchID, err)
	}
	return nil
}

// unionKeys 保序合并两个键列表，既有键在前，重复键只保留一次
func unionKeys(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				merged = append(merged, k)
			}
		}
	}
	return merged
}

// SetThreadID 记录为该比赛创建的讨论帖
func (s *SessionStore) SetThreadID(matchID, threadID string) error {
	_, err := s.db.Exec(`UPDATE live_reporting_sessions SET thread_id = $2, last_update = CURRENT_TIMESTAMP WHERE match_id = $1`,
		matchID, threadID)
	if err != nil {
		return fmt.Errorf("%w: set thread for match %s: %v", common.ErrStorageFailed, matchID, err)
	}
	return nil
}

// RecordError 累加连续错误计数并返回累加后的值
func (s *SessionStore) RecordError(matchID, errMsg string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		UPDATE live_reporting_sessions SET
			error_count = error_count + 1,
			last_error = $2,
			last_update = CURRENT_TIMESTAMP
		WHERE match_id = $1
		RETURNING error_count`,
		matchID, errMsg).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: record error for match %s: %v", common.ErrStorageFailed, matchID, err)
	}
	return count, nil
}

// DeactivateSession 结束会话。只有活跃到非活跃的那一次翻转返回true，
// 调用方据此保证告别消息只发布一次。
func (s *SessionStore) DeactivateSession(matchID, finalStatus, reason string) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE live_reporting_sessions SET
			is_active = FALSE,
			last_status = COALESCE(NULLIF($2, ''), last_status),
			last_error = COALESCE(NULLIF($3, ''), last_error),
			ended_at = CURRENT_TIMESTAMP,
			last_update = CURRENT_TIMESTAMP
		WHERE match_id = $1 AND is_active = TRUE`,
		matchID, finalStatus, reason)
	if err != nil {
		return false, fmt.Errorf("%w: deactivate session for match %s: %v", common.ErrStorageFailed, matchID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session for match %s: %w", matchID, err)
	}
	if affected > 0 {
		logger.Printf("[SessionStore] 🏁 Session ended for match %s (%s)", matchID, reason)
	}
	return affected > 0, nil
}

// RecordAudit 落一条比赛归档记录
func (s *SessionStore) RecordAudit(matchID, competition, homeTeam, awayTeam, venue, finalStatus, finalScore string, eventsPosted int) error {
	_, err := s.db.Exec(`
		INSERT INTO match_audit (match_id, competition, home_team, away_team, venue, final_status, final_score, events_posted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO UPDATE SET
			final_status = EXCLUDED.final_status,
			final_score = EXCLUDED.final_score,
			events_posted = EXCLUDED.events_posted,
			updated_at = CURRENT_TIMESTAMP`,
		matchID, competition, homeTeam, awayTeam, venue, finalStatus, finalScore, eventsPosted)
	if err != nil {
		return fmt.Errorf("%w: record audit for match %s: %v", common.ErrStorageFailed, matchID, err)
	}
	return nil
}

// CompactEventKeys 清空已结束会话的事件键集合。键集合只在会话活跃期间
// 参与去重，结束后只占空间。
func (s *SessionStore) CompactEventKeys(endedBefore time.Time) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE live_reporting_sessions SET last_event_keys = '[]'
		WHERE is_active = FALSE AND ended_at < $1 AND last_event_keys <> '[]'`,
		endedBefore)
	if err != nil {
		return 0, fmt.Errorf("compact event keys: %w", err)
	}
	return result.RowsAffected()
}

// DeleteSessionsEndedBefore 删除保留期之外的已结束会话
func (s *SessionStore) DeleteSessionsEndedBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM live_reporting_sessions WHERE is_active = FALSE AND ended_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*ReportingSession, error) {
	var session ReportingSession
	var keysJSON string
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID, &session.MatchID, &session.Competition, &session.ChannelID, &session.ThreadID,
		&session.IsActive, &session.LastStatus, &session.LastScore,
		&keysJSON, &session.UpdateCount, &session.ErrorCount, &session.LastError,
		&session.StartedAt, &session.LastUpdate, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keysJSON), &session.LastEventKeys); err != nil {
		// 键集合损坏时重置为空，让事件重新去重而不是让会话卡死
		logger.Errorf("[SessionStore] ⚠️ Corrupt event keys for match %s, resetting: %v", session.MatchID, err)
		session.LastEventKeys = []string{}
	}
	if session.LastEventKeys == nil {
		session.LastEventKeys = []string{}
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return &session, nil
}
