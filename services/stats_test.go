package services

import (
	"testing"
	"time"

	"livereport-service/pkg/models"
)

func TestStatsTrackerCountsUpdatesByType(t *testing.T) {
	tracker := NewStatsTracker()

	tracker.Publish(&models.MatchUpdate{MatchID: "m1", Type: models.UpdateTypeGoal})
	tracker.Publish(&models.MatchUpdate{MatchID: "m1", Type: models.UpdateTypeGoal})
	tracker.Publish(&models.MatchUpdate{MatchID: "m2", Type: models.UpdateTypeCard})

	snapshot := tracker.Snapshot()
	if got := snapshot["total_updates"].(int64); got != 3 {
		t.Errorf("total updates = %d, want 3", got)
	}

	byType := snapshot["updates_by_type"].(map[string]int64)
	if byType["goal"] != 2 || byType["card"] != 1 {
		t.Errorf("updates by type = %v", byType)
	}

	lastUpdate := snapshot["last_update"].(map[string]string)
	if len(lastUpdate) != 2 {
		t.Errorf("last update entries = %d, want 2", len(lastUpdate))
	}
}

func TestStatsTrackerCycleHistogram(t *testing.T) {
	tracker := NewStatsTracker()

	tracker.RecordCycle(50*time.Millisecond, true)
	tracker.RecordCycle(300*time.Millisecond, true)
	tracker.RecordCycle(3*time.Second, false)
	tracker.RecordCycle(time.Minute, false)

	snapshot := tracker.Snapshot()
	if got := snapshot["total_cycles"].(int64); got != 4 {
		t.Errorf("total cycles = %d, want 4", got)
	}
	if got := snapshot["cycle_errors"].(int64); got != 2 {
		t.Errorf("cycle errors = %d, want 2", got)
	}

	histogram := snapshot["cycle_duration_hist"].(map[string]int64)
	if histogram["le_0.1s"] != 1 {
		t.Errorf("le_0.1s = %d, want 1", histogram["le_0.1s"])
	}
	if histogram["le_0.5s"] != 1 {
		t.Errorf("le_0.5s = %d, want 1", histogram["le_0.5s"])
	}
	if histogram["le_5s"] != 1 {
		t.Errorf("le_5s = %d, want 1", histogram["le_5s"])
	}
	if histogram["overflow"] != 1 {
		t.Errorf("overflow = %d, want 1", histogram["overflow"])
	}
}
