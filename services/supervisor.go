package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livereport-service/logger"
	"livereport-service/pkg/common"
)

// SessionManager 监控生命周期所需的会话操作（见 SessionStore）
type SessionManager interface {
	CreateSession(matchID, competition, channelID string) (*ReportingSession, error)
	ListActiveSessions() ([]*ReportingSession, error)
	DeactivateSession(matchID, finalStatus, reason string) (bool, error)
}

// Supervisor 为每个活跃会话维护一个监控协程。同一场比赛同一时刻
// 只有一轮处理在执行，轮与轮之间间隔PollInterval。
type Supervisor struct {
	store        SessionManager
	orchestrator *Orchestrator
	pollInterval time.Duration
	stats        *StatsTracker

	mu       sync.Mutex
	monitors map[string]context.CancelFunc
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewSupervisor 创建监控调度器
func NewSupervisor(store SessionManager, orchestrator *Orchestrator, pollInterval time.Duration) *Supervisor {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:        store,
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		monitors:     make(map[string]context.CancelFunc),
		rootCtx:      ctx,
		rootCancel:   cancel,
	}
}

// SetStatsTracker 挂接轮询耗时统计
func (s *Supervisor) SetStatsTracker(stats *StatsTracker) {
	s.stats = stats
}

// StartMonitoring 为一场比赛开启监控。会话已存在且活跃时幂等返回。
func (s *Supervisor) StartMonitoring(matchID, competition, channelID string) (*ReportingSession, error) {
	if matchID == "" || competition == "" || channelID == "" {
		return nil, fmt.Errorf("%w: match_id, competition and channel_id are required", common.ErrInvalidInput)
	}

	session, err := s.store.CreateSession(matchID, competition, channelID)
	if err != nil {
		return nil, err
	}

	s.launch(session.MatchID)
	return session, nil
}

// StopMonitoring 人工停止一场比赛的监控
func (s *Supervisor) StopMonitoring(matchID string) error {
	deactivated, err := s.store.DeactivateSession(matchID, "", "stopped by operator")
	if err != nil {
		return err
	}
	if !deactivated {
		// 没有可翻转的活跃会话：不存在或早已结束
		s.stopMonitor(matchID)
		return fmt.Errorf("session for match %s: %w", matchID, common.ErrSessionInactive)
	}

	s.stopMonitor(matchID)
	logger.Printf("[Supervisor] 🛑 Monitoring stopped for match %s by operator", matchID)
	return nil
}

// ResumeAll 服务启动时恢复数据库中所有活跃会话的监控
func (s *Supervisor) ResumeAll() error {
	sessions, err := s.store.ListActiveSessions()
	if err != nil {
		return fmt.Errorf("resume sessions: %w", err)
	}

	for _, session := range sessions {
		s.launch(session.MatchID)
	}

	if len(sessions) > 0 {
		logger.Printf("[Supervisor] ♻️ Resumed monitoring for %d session(s)", len(sessions))
	}
	return nil
}

// ActiveMatches 当前有监控协程的比赛ID列表
func (s *Supervisor) ActiveMatches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]string, 0, len(s.monitors))
	for matchID := range s.monitors {
		matches = append(matches, matchID)
	}
	return matches
}

// IsMonitoring 判断一场比赛是否在监控中
func (s *Supervisor) IsMonitoring(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[matchID]
	return ok
}

// Shutdown 停止所有监控协程并等待收尾。会话保持活跃，下次启动时恢复。
func (s *Supervisor) Shutdown() {
	logger.Println("[Supervisor] Shutting down monitors...")
	s.rootCancel()
	s.wg.Wait()
	logger.Println("[Supervisor] All monitors stopped.")
}

// launch 为一场比赛启动监控协程，已有协程时不重复启动
func (s *Supervisor) launch(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[matchID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(s.rootCtx)
	s.monitors[matchID] = cancel

	s.wg.Add(1)
	go s.monitorLoop(ctx, matchID)

	logger.Printf("[Supervisor] ▶️ Monitoring started for match %s", matchID)
}

func (s *Supervisor) stopMonitor(matchID string) {
	s.mu.Lock()
	cancel, ok := s.monitors[matchID]
	if ok {
		delete(s.monitors, matchID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

// monitorLoop 一场比赛的轮询循环。立即执行第一轮，之后每PollInterval一轮，
// 会话结束或上下文取消时退出。
func (s *Supervisor) monitorLoop(ctx context.Context, matchID string) {
	defer s.wg.Done()
	defer s.stopMonitor(matchID)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		started := time.Now()
		result, err := s.orchestrator.RunCycle(ctx, matchID)
		if s.stats != nil {
			s.stats.RecordCycle(time.Since(started), err == nil)
		}
		if err != nil && ctx.Err() != nil {
			return
		}
		if result != nil && result.Deactivated {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
