package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"livereport-service/discord"
	"livereport-service/pkg/models"
)

// fakeStore 内存版 SessionStorer
type fakeStore struct {
	sessions map[string]*ReportingSession
	audits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*ReportingSession)}
}

func (f *fakeStore) addSession(matchID, status string, keys []string) *ReportingSession {
	session := &ReportingSession{
		MatchID:       matchID,
		Competition:   "usa.1",
		ChannelID:     "chan-1",
		IsActive:      true,
		LastStatus:    status,
		LastScore:     "0-0",
		LastEventKeys: append([]string(nil), keys...),
	}
	f.sessions[matchID] = session
	return session
}

func (f *fakeStore) GetSession(matchID string) (*ReportingSession, error) {
	session, ok := f.sessions[matchID]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *session
	copied.LastEventKeys = append([]string(nil), session.LastEventKeys...)
	return &copied, nil
}

func (f *fakeStore) SaveProgress(matchID, status, score string, eventKeys []string, postedCount int) error {
	session := f.sessions[matchID]
	session.LastStatus = status
	session.LastScore = score
	// 与真实存取层一致：键集合求并集，只增不减
	session.LastEventKeys = unionKeys(session.LastEventKeys, eventKeys)
	session.UpdateCount += postedCount
	session.ErrorCount = 0
	return nil
}

func (f *fakeStore) SetThreadID(matchID, threadID string) error {
	f.sessions[matchID].ThreadID = threadID
	return nil
}

func (f *fakeStore) RecordError(matchID, errMsg string) (int, error) {
	session := f.sessions[matchID]
	session.ErrorCount++
	session.LastError = errMsg
	return session.ErrorCount, nil
}

func (f *fakeStore) DeactivateSession(matchID, finalStatus, reason string) (bool, error) {
	session := f.sessions[matchID]
	if !session.IsActive {
		return false, nil
	}
	session.IsActive = false
	if finalStatus != "" {
		session.LastStatus = finalStatus
	}
	return true, nil
}

func (f *fakeStore) RecordAudit(matchID, competition, homeTeam, awayTeam, venue, finalStatus, finalScore string, eventsPosted int) error {
	f.audits++
	return nil
}

// fakeFetcher 返回预置快照序列
type fakeFetcher struct {
	snapshots []*models.MatchSnapshot
	err       error
	calls     int
}

func (f *fakeFetcher) GetMatchData(ctx context.Context, matchID, competition string) (*models.MatchSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snapshot := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snapshot, nil
}

// fakePublisher 记录发布的消息
type fakePublisher struct {
	posts   []string
	targets []string
	err     error
}

func (f *fakePublisher) PostMessage(ctx context.Context, channelID, content string, embed *discord.Embed) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, content)
	f.targets = append(f.targets, channelID)
	return fmt.Sprintf("msg-%d", len(f.posts)), nil
}

func (f *fakePublisher) CreateThread(ctx context.Context, channelID, name string) (string, error) {
	return "", errors.New("threads disabled in tests")
}

// fakeCommentator 返回可预测的文本
type fakeCommentator struct {
	ended []string
}

func (f *fakeCommentator) Generate(ctx context.Context, snapshot *models.MatchSnapshot, event *models.DomainEvent, updateType models.UpdateType) string {
	if event != nil && event.AthleteName != "" {
		return fmt.Sprintf("%s: %s", updateType, event.AthleteName)
	}
	return string(updateType)
}

func (f *fakeCommentator) EndMatch(matchID string) {
	f.ended = append(f.ended, matchID)
}

func liveSnapshot(phase string, events ...models.DomainEvent) *models.MatchSnapshot {
	return &models.MatchSnapshot{
		MatchID:     "m1",
		Competition: "usa.1",
		Phase:       phase,
		Score:       "1-0",
		HomeTeam:    models.TeamInfo{ID: "9726", Name: "Seattle Sounders FC", Score: "1", IsHome: true},
		AwayTeam:    models.TeamInfo{ID: "9723", Name: "Portland Timbers", Score: "0"},
		Events:      events,
	}
}

func goalAt(clock, athlete string) models.DomainEvent {
	return models.DomainEvent{
		Kind:        models.KindGoal,
		Clock:       clock,
		AthleteName: athlete,
		TeamID:      "9726",
	}
}

func newTestOrchestrator(store SessionStorer, fetcher MatchFetcher, publisher MessagePublisher) (*Orchestrator, *fakeCommentator) {
	commentator := &fakeCommentator{}
	orch := NewOrchestrator(store, fetcher, publisher, commentator, NewInMemoryBroker(), OrchestratorConfig{
		MaxErrorCount: 3,
	})
	return orch, commentator
}

func TestRunCycleSkipsKnownEvents(t *testing.T) {
	store := newFakeStore()
	known := goalAt("23'", "Jordan Morris")
	store.addSession("m1", models.PhaseInProgress, []string{known.DedupKey()})

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{
		liveSnapshot(models.PhaseInProgress, known, goalAt("55'", "Albert Rusnak")),
	}}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if result.Posted != 1 {
		t.Fatalf("posted = %d, want 1", result.Posted)
	}
	if len(publisher.posts) != 1 || publisher.posts[0] != "goal: Albert Rusnak" {
		t.Errorf("unexpected posts: %v", publisher.posts)
	}

	// 键集合只增不减，已有键仍然保留
	session := store.sessions["m1"]
	if !session.HasEventKey(known.DedupKey()) {
		t.Error("existing key dropped from session")
	}
	if !session.HasEventKey(goalAt("55'", "Albert Rusnak").DedupKey()) {
		t.Error("new key not persisted")
	}
}

func TestRunCycleResultCarriesCycleSummary(t *testing.T) {
	store := newFakeStore()
	known := goalAt("23'", "Jordan Morris")
	store.addSession("m1", models.PhaseInProgress, []string{known.DedupKey()})

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{
		liveSnapshot(models.PhaseInProgress, known, goalAt("55'", "Albert Rusnak")),
	}}
	orch, _ := newTestOrchestrator(store, fetcher, &fakePublisher{})

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if !result.Success {
		t.Error("result not marked successful")
	}
	if result.Phase != models.PhaseInProgress || result.Score != "1-0" {
		t.Errorf("phase/score = %q/%q", result.Phase, result.Score)
	}
	if result.EventsProcessed != 2 {
		t.Errorf("events processed = %d, want 2", result.EventsProcessed)
	}
	if len(result.NewEvents) != 1 || result.NewEvents[0].AthleteName != "Albert Rusnak" {
		t.Errorf("new events = %+v, want only the Rusnak goal", result.NewEvents)
	}

	// 失败的轮次不标记成功
	badFetcher := &fakeFetcher{err: errors.New("feed down")}
	orch, _ = newTestOrchestrator(store, badFetcher, &fakePublisher{})
	result, err = orch.RunCycle(context.Background(), "m1")
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if result.Success {
		t.Error("failed cycle marked successful")
	}
}

func TestRunCycleIdempotentAcrossCycles(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, nil)

	snapshot := liveSnapshot(models.PhaseInProgress, goalAt("23'", "Jordan Morris"))
	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{snapshot}}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	for i := 0; i < 3; i++ {
		if _, err := orch.RunCycle(context.Background(), "m1"); err != nil {
			t.Fatalf("cycle %d returned error: %v", i, err)
		}
	}

	// 同一进球在后续轮中不再发布
	goals := 0
	for _, post := range publisher.posts {
		if post == "goal: Jordan Morris" {
			goals++
		}
	}
	if goals != 1 {
		t.Errorf("goal posted %d times, want exactly once", goals)
	}
}

func TestRunCycleStatusTransition(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, nil)

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{liveSnapshot(models.PhaseHalftime)}}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if result.Posted != 1 {
		t.Fatalf("posted = %d, want 1 status update", result.Posted)
	}
	if store.sessions["m1"].LastStatus != models.PhaseHalftime {
		t.Errorf("last status = %q", store.sessions["m1"].LastStatus)
	}
	if !store.sessions["m1"].HasEventKey(models.StatusDedupKey(models.PhaseHalftime)) {
		t.Error("status dedup key not persisted")
	}
}

func TestRunCyclePreMatchHypeOnce(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", "", nil)

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{liveSnapshot(models.PhaseScheduled)}}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if result.Posted != 1 {
		t.Fatalf("posted = %d, want 1 hype message", result.Posted)
	}
	if store.sessions["m1"].LastStatus != models.PhasePreMatchPosted {
		t.Errorf("last status = %q, want pre-match marker", store.sessions["m1"].LastStatus)
	}

	// 第二轮赛前不再发预热
	result, err = orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("second RunCycle returned error: %v", err)
	}
	if result.Posted != 0 {
		t.Errorf("posted = %d on second pre-match cycle, want 0", result.Posted)
	}
}

func TestRunCycleTerminalDeactivatesOnce(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, nil)

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{liveSnapshot(models.PhaseFinal)}}
	publisher := &fakePublisher{}
	orch, commentator := newTestOrchestrator(store, fetcher, publisher)

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if !result.Terminal || !result.Deactivated {
		t.Fatalf("result = %+v, want terminal and deactivated", result)
	}
	if len(publisher.posts) != 1 {
		t.Fatalf("posts = %v, want one final message", publisher.posts)
	}
	if store.audits != 1 {
		t.Errorf("audits = %d, want 1", store.audits)
	}
	if len(commentator.ended) != 1 {
		t.Errorf("EndMatch calls = %d, want 1", len(commentator.ended))
	}

	// 终态后的轮次不再抓取也不再发布
	fetchesBefore := fetcher.calls
	result, err = orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("post-terminal RunCycle returned error: %v", err)
	}
	if !result.Deactivated {
		t.Error("post-terminal cycle should report deactivated")
	}
	if fetcher.calls != fetchesBefore {
		t.Error("post-terminal cycle fetched data")
	}
	if len(publisher.posts) != 1 {
		t.Errorf("posts = %v after post-terminal cycle", publisher.posts)
	}
}

func TestRunCycleErrorEscalation(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, nil)

	fetcher := &fakeFetcher{err: errors.New("feed down")}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	for i := 0; i < 3; i++ {
		result, err := orch.RunCycle(context.Background(), "m1")
		if err == nil {
			t.Fatalf("cycle %d: expected fetch error", i)
		}
		if i < 2 && result.Deactivated {
			t.Fatalf("cycle %d: deactivated before threshold", i)
		}
		if i == 2 && !result.Deactivated {
			t.Fatal("threshold cycle did not deactivate the session")
		}
	}

	// 结束后的轮次不再抓取
	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("post-escalation cycle returned error: %v", err)
	}
	if !result.Deactivated {
		t.Error("post-escalation cycle should report deactivated")
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
	if len(publisher.posts) != 0 {
		t.Errorf("posts = %v, want none", publisher.posts)
	}
}

func TestRunCycleSuccessResetsErrorCount(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, nil)
	store.sessions["m1"].ErrorCount = 2

	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{liveSnapshot(models.PhaseInProgress)}}
	publisher := &fakePublisher{}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	if _, err := orch.RunCycle(context.Background(), "m1"); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if store.sessions["m1"].ErrorCount != 0 {
		t.Errorf("error count = %d after success, want 0", store.sessions["m1"].ErrorCount)
	}
}

func TestRunCycleFailedPostRetriedNextCycle(t *testing.T) {
	store := newFakeStore()
	store.addSession("m1", models.PhaseInProgress, []string{models.StatusDedupKey(models.PhaseInProgress)})

	snapshot := liveSnapshot(models.PhaseInProgress, goalAt("23'", "Jordan Morris"))
	fetcher := &fakeFetcher{snapshots: []*models.MatchSnapshot{snapshot}}
	publisher := &fakePublisher{err: errors.New("discord down")}
	orch, _ := newTestOrchestrator(store, fetcher, publisher)

	result, err := orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if result.Posted != 0 {
		t.Fatalf("posted = %d with failing publisher, want 0", result.Posted)
	}
	if store.sessions["m1"].HasEventKey(goalAt("23'", "Jordan Morris").DedupKey()) {
		t.Fatal("failed post must not mark the event as published")
	}

	// 发布恢复后同一事件在下一轮补发
	publisher.err = nil
	result, err = orch.RunCycle(context.Background(), "m1")
	if err != nil {
		t.Fatalf("second RunCycle returned error: %v", err)
	}
	if result.Posted != 1 {
		t.Fatalf("posted = %d after recovery, want 1", result.Posted)
	}
	if publisher.posts[0] != "goal: Jordan Morris" {
		t.Errorf("unexpected post: %v", publisher.posts)
	}
}
