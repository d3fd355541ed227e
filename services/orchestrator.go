package services

import (
	"context"
	"fmt"
	"time"

	"livereport-service/discord"
	"livereport-service/logger"
	"livereport-service/pkg/models"
)

// MatchFetcher 抓取比赛快照的数据源
type MatchFetcher interface {
	GetMatchData(ctx context.Context, matchID, competition string) (*models.MatchSnapshot, error)
}

// MessagePublisher 向聊天频道发布消息
type MessagePublisher interface {
	PostMessage(ctx context.Context, channelID, content string, embed *discord.Embed) (string, error)
	CreateThread(ctx context.Context, channelID, name string) (string, error)
}

// Commentator 为更新生成解说文本，永不失败
type Commentator interface {
	Generate(ctx context.Context, snapshot *models.MatchSnapshot, event *models.DomainEvent, updateType models.UpdateType) string
	EndMatch(matchID string)
}

// SessionStorer 会话持久化层（见 SessionStore）
type SessionStorer interface {
	GetSession(matchID string) (*ReportingSession, error)
	SaveProgress(matchID, status, score string, eventKeys []string, postedCount int) error
	SetThreadID(matchID, threadID string) error
	RecordError(matchID, errMsg string) (int, error)
	DeactivateSession(matchID, finalStatus, reason string) (bool, error)
	RecordAudit(matchID, competition, homeTeam, awayTeam, venue, finalStatus, finalScore string, eventsPosted int) error
}

// OrchestratorConfig 单轮处理的行为参数
type OrchestratorConfig struct {
	MaxErrorCount int           // 连续错误达到该值后结束会话
	PostPause     time.Duration // 同一轮内两条消息之间的间隔
	UseThreads    bool          // 是否为每场比赛开讨论帖
}

// Orchestrator 驱动单场比赛的一轮处理：抓取快照、与会话状态diff、
// 发布新事件、持久化进度。每个match_id同一时刻只有一轮在执行。
type Orchestrator struct {
	store       SessionStorer
	fetcher     MatchFetcher
	publisher   MessagePublisher
	commentator Commentator
	broker      UpdateBroker
	cfg         OrchestratorConfig
}

// NewOrchestrator 创建处理器
func NewOrchestrator(store SessionStorer, fetcher MatchFetcher, publisher MessagePublisher, commentator Commentator, broker UpdateBroker, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxErrorCount <= 0 {
		cfg.MaxErrorCount = 5
	}
	return &Orchestrator{
		store:       store,
		fetcher:     fetcher,
		publisher:   publisher,
		commentator: commentator,
		broker:      broker,
		cfg:         cfg,
	}
}

// CycleResult 一轮处理的结果
type CycleResult struct {
	MatchID         string
	Success         bool                 // 本轮是否无错完成
	Phase           string               // 本轮结束时的比赛阶段
	Score           string               // 本轮结束时的比分
	EventsProcessed int                  // 本轮diff检查过的事件数
	NewEvents       []models.DomainEvent // 本轮新发布的事件
	Posted          int                  // 本轮发布的消息数
	Terminal        bool                 // 比赛已到终态
	Deactivated     bool                 // 会话在本轮被结束
}

// RunCycle 执行一轮处理。返回错误仅表示本轮失败，调用方下一轮照常重试；
// 会话是否继续由 Deactivated 决定。
func (o *Orchestrator) RunCycle(ctx context.Context, matchID string) (*CycleResult, error) {
	result, err := o.runCycle(ctx, matchID)
	result.Success = err == nil
	return result, err
}

func (o *Orchestrator) runCycle(ctx context.Context, matchID string) (*CycleResult, error) {
	result := &CycleResult{MatchID: matchID}

	session, err := o.store.GetSession(matchID)
	if err != nil {
		return result, err
	}
	result.Phase = session.LastStatus
	result.Score = session.LastScore
	if !session.IsActive {
		result.Deactivated = true
		return result, nil
	}

	snapshot, err := o.fetcher.GetMatchData(ctx, matchID, session.Competition)
	if err != nil {
		return o.handleFetchError(session, result, err)
	}
	result.Phase = snapshot.Phase
	result.Score = snapshot.Score

	// 赛前阶段：发一条预热消息并打标记，不进入事件diff
	if models.IsPreMatchPhase(snapshot.Phase) && session.LastStatus != models.PhasePreMatchPosted {
		return o.postPreMatchHype(ctx, session, snapshot, result)
	}
	if models.IsPreMatchPhase(snapshot.Phase) {
		// 预热已发过，等开球
		return result, nil
	}

	keys := append([]string(nil), session.LastEventKeys...)
	posted := 0

	// 阶段切换先于事件发布，开球等消息在进球之前出现。
	// 中途启动（last_status为空）时同样补一条当前阶段的消息。
	if snapshot.Phase != session.LastStatus && !models.IsTerminalPhase(snapshot.Phase) {
		statusKey := models.StatusDedupKey(snapshot.Phase)
		if !containsKey(keys, statusKey) {
			if o.postStatusChange(ctx, session, snapshot, result) {
				keys = append(keys, statusKey)
				posted++
			}
		}
	}

	// 事件diff：只发布去重键未出现过的事件
	result.EventsProcessed = len(snapshot.Events)
	for i := range snapshot.Events {
		event := &snapshot.Events[i]
		key := event.DedupKey()
		if containsKey(keys, key) {
			continue
		}

		if posted > 0 {
			if err := o.pause(ctx); err != nil {
				break
			}
		}

		// 发布失败的事件键不入集合，下一轮重试
		if o.postEvent(ctx, session, snapshot, event, result) {
			keys = append(keys, key)
			posted++
			result.NewEvents = append(result.NewEvents, *event)
		}
	}

	if models.IsTerminalPhase(snapshot.Phase) {
		result.Terminal = true
		return o.finishSession(ctx, session, snapshot, keys, posted, result)
	}

	if err := o.store.SaveProgress(matchID, snapshot.Phase, snapshot.Score, keys, posted); err != nil {
		return result, err
	}

	return result, nil
}

// handleFetchError 记录连续错误并在达到阈值时结束会话
func (o *Orchestrator) handleFetchError(session *ReportingSession, result *CycleResult, fetchErr error) (*CycleResult, error) {
	count, err := o.store.RecordError(session.MatchID, fetchErr.Error())
	if err != nil {
		return result, err
	}

	logger.Errorf("[Orchestrator] ❌ Cycle failed for match %s (%d/%d): %v",
		session.MatchID, count, o.cfg.MaxErrorCount, fetchErr)

	if count >= o.cfg.MaxErrorCount {
		deactivated, err := o.store.DeactivateSession(session.MatchID, "", fmt.Sprintf("%d consecutive errors", count))
		if err != nil {
			return result, err
		}
		result.Deactivated = deactivated
		if deactivated {
			o.commentator.EndMatch(session.MatchID)
			logger.Errorf("[Orchestrator] 🛑 Monitoring stopped for match %s after %d consecutive errors", session.MatchID, count)
		}
	}

	return result, fetchErr
}

// postPreMatchHype 发布赛前预热并打PRE_MATCH_POSTED标记
func (o *Orchestrator) postPreMatchHype(ctx context.Context, session *ReportingSession, snapshot *models.MatchSnapshot, result *CycleResult) (*CycleResult, error) {
	commentary := o.commentator.Generate(ctx, snapshot, nil, models.UpdateTypePreMatchHype)

	update := &models.MatchUpdate{
		MatchID:    session.MatchID,
		Type:       models.UpdateTypePreMatchHype,
		Phase:      snapshot.Phase,
		Score:      snapshot.Score,
		Commentary: commentary,
		PostedAt:   time.Now().UTC(),
	}

	target := o.ensureTarget(ctx, session, snapshot)
	messageID, err := o.publisher.PostMessage(ctx, target, commentary, discord.EmbedForUpdate(update, snapshot))
	if err != nil {
		// 预热发不出去不打标记，下一轮重试
		logger.Errorf("[Orchestrator] ❌ Pre-match post failed for match %s: %v", session.MatchID, err)
		return result, err
	}
	update.MessageID = messageID

	if err := o.store.SaveProgress(session.MatchID, models.PhasePreMatchPosted, snapshot.Score, session.LastEventKeys, 1); err != nil {
		return result, err
	}

	o.broadcast(update)
	result.Posted++
	logger.Printf("[Orchestrator] 📣 Pre-match hype posted for match %s", session.MatchID)
	return result, nil
}

// postStatusChange 发布阶段切换消息，成功返回true
func (o *Orchestrator) postStatusChange(ctx context.Context, session *ReportingSession, snapshot *models.MatchSnapshot, result *CycleResult) bool {
	from := session.LastStatus
	event := &models.DomainEvent{
		Kind:         models.KindStatusChange,
		Clock:        "",
		StatusChange: &models.StatusChangeDetail{From: from, To: snapshot.Phase},
	}

	commentary := o.commentator.Generate(ctx, snapshot, event, models.UpdateTypeStatusChange)
	update := &models.MatchUpdate{
		MatchID:    session.MatchID,
		Type:       models.UpdateTypeStatusChange,
		Phase:      snapshot.Phase,
		Score:      snapshot.Score,
		Commentary: commentary,
		Event:      event,
		PostedAt:   time.Now().UTC(),
	}

	target := o.ensureTarget(ctx, session, snapshot)
	messageID, err := o.publisher.PostMessage(ctx, target, commentary, discord.EmbedForUpdate(update, snapshot))
	if err != nil {
		logger.Errorf("[Orchestrator] ❌ Status post failed for match %s: %v", session.MatchID, err)
		return false
	}
	update.MessageID = messageID

	o.broadcast(update)
	result.Posted++
	logger.Printf("[Orchestrator] 📣 Status %s → %s posted for match %s", from, snapshot.Phase, session.MatchID)
	return true
}

// postEvent 发布一条比赛事件，成功返回true
func (o *Orchestrator) postEvent(ctx context.Context, session *ReportingSession, snapshot *models.MatchSnapshot, event *models.DomainEvent, result *CycleResult) bool {
	updateType := models.UpdateTypeFor(event.Kind)
	commentary := o.commentator.Generate(ctx, snapshot, event, updateType)

	update := &models.MatchUpdate{
		MatchID:    session.MatchID,
		Type:       updateType,
		Phase:      snapshot.Phase,
		Score:      snapshot.Score,
		Commentary: commentary,
		Event:      event,
		PostedAt:   time.Now().UTC(),
	}

	target := o.ensureTarget(ctx, session, snapshot)
	messageID, err := o.publisher.PostMessage(ctx, target, commentary, discord.EmbedForUpdate(update, snapshot))
	if err != nil {
		logger.Errorf("[Orchestrator] ❌ Event post failed for match %s (%s): %v", session.MatchID, event.Kind, err)
		return false
	}
	update.MessageID = messageID

	o.broadcast(update)
	result.Posted++
	logger.Printf("[Orchestrator] 📣 %s posted for match %s (%s)", event.Kind, session.MatchID, event.Clock)
	return true
}

// finishSession 终态处理：发布告别消息、归档、结束会话。
// DeactivateSession 的翻转语义保证这一切只发生一次。
func (o *Orchestrator) finishSession(ctx context.Context, session *ReportingSession, snapshot *models.MatchSnapshot, keys []string, posted int, result *CycleResult) (*CycleResult, error) {
	finalKey := models.StatusDedupKey(snapshot.Phase)
	if !containsKey(keys, finalKey) {
		commentary := o.commentator.Generate(ctx, snapshot, nil, models.UpdateTypeFinal)
		update := &models.MatchUpdate{
			MatchID:    session.MatchID,
			Type:       models.UpdateTypeFinal,
			Phase:      snapshot.Phase,
			Score:      snapshot.Score,
			Commentary: commentary,
			PostedAt:   time.Now().UTC(),
		}

		target := o.ensureTarget(ctx, session, snapshot)
		messageID, err := o.publisher.PostMessage(ctx, target, commentary, discord.EmbedForUpdate(update, snapshot))
		if err != nil {
			// 告别消息失败时保留进度不结束会话，下一轮重试
			logger.Errorf("[Orchestrator] ❌ Final post failed for match %s: %v", session.MatchID, err)
			if saveErr := o.store.SaveProgress(session.MatchID, session.LastStatus, snapshot.Score, keys, posted); saveErr != nil {
				return result, saveErr
			}
			return result, err
		}
		update.MessageID = messageID
		o.broadcast(update)
		result.Posted++
		keys = append(keys, finalKey)
		posted++
	}

	if err := o.store.SaveProgress(session.MatchID, snapshot.Phase, snapshot.Score, keys, posted); err != nil {
		return result, err
	}

	if err := o.store.RecordAudit(session.MatchID, session.Competition,
		snapshot.HomeTeam.Name, snapshot.AwayTeam.Name, snapshot.Venue,
		snapshot.Phase, snapshot.Score, session.UpdateCount+posted); err != nil {
		logger.Errorf("[Orchestrator] ⚠️ Audit failed for match %s: %v", session.MatchID, err)
	}

	deactivated, err := o.store.DeactivateSession(session.MatchID, snapshot.Phase, "match ended")
	if err != nil {
		return result, err
	}
	result.Deactivated = deactivated
	if deactivated {
		o.commentator.EndMatch(session.MatchID)
		logger.Printf("[Orchestrator] 🏁 Match %s finished %s (%s)", session.MatchID, snapshot.Score, snapshot.Phase)
	}

	return result, nil
}

// ensureTarget 返回消息发布目标：比赛专属讨论帖，开帖失败退回主频道
func (o *Orchestrator) ensureTarget(ctx context.Context, session *ReportingSession, snapshot *models.MatchSnapshot) string {
	if session.ThreadID != "" {
		return session.ThreadID
	}
	if !o.cfg.UseThreads {
		return session.ChannelID
	}

	name := fmt.Sprintf("%s vs %s", snapshot.HomeTeam.Name, snapshot.AwayTeam.Name)
	threadID, err := o.publisher.CreateThread(ctx, session.ChannelID, name)
	if err != nil {
		logger.Errorf("[Orchestrator] ⚠️ Thread creation failed for match %s, using channel: %v", session.MatchID, err)
		return session.ChannelID
	}

	if err := o.store.SetThreadID(session.MatchID, threadID); err != nil {
		logger.Errorf("[Orchestrator] ⚠️ Failed to persist thread for match %s: %v", session.MatchID, err)
	}
	session.ThreadID = threadID
	return threadID
}

func (o *Orchestrator) broadcast(update *models.MatchUpdate) {
	if o.broker == nil {
		return
	}
	if err := o.broker.Publish(update); err != nil {
		logger.Errorf("[Orchestrator] ⚠️ Broadcast failed for match %s: %v", update.MatchID, err)
	}
}

func (o *Orchestrator) pause(ctx context.Context) error {
	if o.cfg.PostPause <= 0 {
		return nil
	}
	select {
	case <-time.After(o.cfg.PostPause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
