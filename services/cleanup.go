package services

import (
	"time"

	"livereport-service/logger"
)

// CleanupConfig 清理配置
type CleanupConfig struct {
	SessionRetention time.Duration // 已结束会话的保留时长
	Interval         time.Duration // 清理周期
}

// CleanupService 数据清理服务。已结束的会话先压缩事件键集合，
// 超过保留期后整行删除；审计表永久保留。
type CleanupService struct {
	store  *SessionStore
	config CleanupConfig

	stopChan chan struct{}
}

// NewCleanupService 创建数据清理服务
func NewCleanupService(store *SessionStore, config CleanupConfig) *CleanupService {
	if config.SessionRetention <= 0 {
		config.SessionRetention = 24 * time.Hour
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &CleanupService{
		store:    store,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start 启动周期清理
func (s *CleanupService) Start() {
	go func() {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.ExecuteCleanup()
			case <-s.stopChan:
				return
			}
		}
	}()

	logger.Printf("[Cleanup] Session cleanup scheduled every %v (retention %v)", s.config.Interval, s.config.SessionRetention)
}

// Stop 停止周期清理
func (s *CleanupService) Stop() {
	close(s.stopChan)
}

// ExecuteCleanup 执行一次清理
func (s *CleanupService) ExecuteCleanup() {
	// 会话刚结束就压缩键集合，整行保留到保留期结束
	compacted, err := s.store.CompactEventKeys(time.Now().Add(-time.Hour))
	if err != nil {
		logger.Errorf("[Cleanup] ❌ Key compaction failed: %v", err)
	} else if compacted > 0 {
		logger.Printf("[Cleanup] 🧹 Compacted event keys for %d session(s)", compacted)
	}

	deleted, err := s.store.DeleteSessionsEndedBefore(time.Now().Add(-s.config.SessionRetention))
	if err != nil {
		logger.Errorf("[Cleanup] ❌ Session cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		logger.Printf("[Cleanup] 🧹 Deleted %d expired session(s)", deleted)
	}
}
