package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"livereport-service/logger"
	"livereport-service/pkg/breaker"
)

// HealthChecker 周期性探测各依赖的可用性，结果供健康接口读取。
// 探测失败只记录状态，不触碰熔断器。
type HealthChecker struct {
	db              *sql.DB
	feedProbe       func(ctx context.Context) bool
	publishProbe    func(ctx context.Context) bool
	commentaryProbe func(ctx context.Context) bool
	breakers        []*breaker.Breaker
	interval        time.Duration

	mu        sync.RWMutex
	status    map[string]bool
	lastCheck time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, feedProbe, publishProbe, commentaryProbe func(ctx context.Context) bool, breakers []*breaker.Breaker, interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthChecker{
		db:              db,
		feedProbe:       feedProbe,
		publishProbe:    publishProbe,
		commentaryProbe: commentaryProbe,
		breakers:        breakers,
		interval:        interval,
		status:          make(map[string]bool),
		stopChan:        make(chan struct{}),
	}
}

// Start 启动周期探测
func (h *HealthChecker) Start() {
	h.runChecks()

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.runChecks()
			case <-h.stopChan:
				return
			}
		}
	}()

	logger.Println("[Health] Periodic health checks started.")
}

// Stop 停止探测
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Healthy 数据库可用即认为服务整体可用，外部依赖降级不算不健康
func (h *HealthChecker) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status["database"]
}

// Status 返回各依赖的探测结果与熔断器状态
func (h *HealthChecker) Status() map[string]interface{} {
	h.mu.RLock()
	deps := make(map[string]bool, len(h.status))
	for k, v := range h.status {
		deps[k] = v
	}
	lastCheck := h.lastCheck
	h.mu.RUnlock()

	breakers := make([]map[string]interface{}, 0, len(h.breakers))
	for _, b := range h.breakers {
		breakers = append(breakers, b.Status())
	}

	return map[string]interface{}{
		"dependencies": deps,
		"breakers":     breakers,
		"last_check":   lastCheck.UTC().Format(time.RFC3339),
	}
}

func (h *HealthChecker) runChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := map[string]bool{
		"database": h.db.PingContext(ctx) == nil,
	}
	if h.feedProbe != nil {
		results["feed"] = h.feedProbe(ctx)
	}
	if h.publishProbe != nil {
		results["discord"] = h.publishProbe(ctx)
	}
	if h.commentaryProbe != nil {
		results["commentary"] = h.commentaryProbe(ctx)
	}

	h.mu.Lock()
	h.status = results
	h.lastCheck = time.Now()
	h.mu.Unlock()

	for name, ok := range results {
		if !ok {
			logger.Errorf("[Health] ⚠️ Dependency %s is unhealthy", name)
		}
	}
}
