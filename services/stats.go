package services

import (
	"fmt"
	"sync"
	"time"

	"livereport-service/logger"
	"livereport-service/pkg/models"
)

// StatsTracker 更新统计追踪器，按更新类别累计发布数量
type StatsTracker struct {
	mu            sync.RWMutex
	startTime     time.Time
	totalUpdates  int64
	updatesByType map[models.UpdateType]int64
	lastUpdate    map[string]time.Time // match_id -> 最近发布时间
	cycleErrors   int64

	// 轮询耗时直方图
	totalCycles  int64
	cycleBuckets []int64 // 与 cycleBucketBounds 对应，末位为溢出桶
}

// cycleBucketBounds 轮询耗时直方图的桶上界（秒）
var cycleBucketBounds = []float64{0.1, 0.5, 1, 2, 5, 10}

// NewStatsTracker 创建统计追踪器
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		startTime:     time.Now(),
		updatesByType: make(map[models.UpdateType]int64),
		lastUpdate:    make(map[string]time.Time),
		cycleBuckets:  make([]int64, len(cycleBucketBounds)+1),
	}
}

// RecordUpdate 记录一条已发布的更新
func (t *StatsTracker) RecordUpdate(update *models.MatchUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalUpdates++
	t.updatesByType[update.Type]++
	t.lastUpdate[update.MatchID] = time.Now()
}

// Publish 实现 UpdateBroker 接口，统计追踪器直接挂在扇出链上
func (t *StatsTracker) Publish(update *models.MatchUpdate) error {
	t.RecordUpdate(update)
	return nil
}

// Close 实现 UpdateBroker 接口
func (t *StatsTracker) Close() error {
	return nil
}

// RecordCycle 记录一轮轮询的耗时与结果
func (t *StatsTracker) RecordCycle(elapsed time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalCycles++
	if !success {
		t.cycleErrors++
	}

	seconds := elapsed.Seconds()
	for i, bound := range cycleBucketBounds {
		if seconds <= bound {
			t.cycleBuckets[i]++
			return
		}
	}
	t.cycleBuckets[len(cycleBucketBounds)]++
}

// Snapshot 返回当前统计的副本
func (t *StatsTracker) Snapshot() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType := make(map[string]int64, len(t.updatesByType))
	for k, v := range t.updatesByType {
		byType[string(k)] = v
	}

	lastUpdate := make(map[string]string, len(t.lastUpdate))
	for matchID, ts := range t.lastUpdate {
		lastUpdate[matchID] = ts.UTC().Format(time.RFC3339)
	}

	histogram := make(map[string]int64, len(t.cycleBuckets))
	for i, bound := range cycleBucketBounds {
		histogram[fmt.Sprintf("le_%gs", bound)] = t.cycleBuckets[i]
	}
	histogram["overflow"] = t.cycleBuckets[len(cycleBucketBounds)]

	return map[string]interface{}{
		"uptime_seconds":      int64(time.Since(t.startTime).Seconds()),
		"total_updates":       t.totalUpdates,
		"updates_by_type":     byType,
		"last_update":         lastUpdate,
		"total_cycles":        t.totalCycles,
		"cycle_errors":        t.cycleErrors,
		"cycle_duration_hist": histogram,
	}
}

// StartReporting 周期性输出统计摘要，ctx取消后停止
func (t *StatsTracker) StartReporting(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.report()
			case <-stop:
				return
			}
		}
	}()
}

func (t *StatsTracker) report() {
	t.mu.RLock()
	total := t.totalUpdates
	errors := t.cycleErrors
	matches := len(t.lastUpdate)
	t.mu.RUnlock()

	logger.Printf("[Stats] 📊 Updates posted: %d | Matches seen: %d | Cycle errors: %d | Uptime: %s",
		total, matches, errors, time.Since(t.startTime).Round(time.Second))
}
