package models

import "time"

// UpdateType 发布到聊天频道的更新类别，用于统计与事件分发
type UpdateType string

const (
	UpdateTypeGoal         UpdateType = "goal"
	UpdateTypeCard         UpdateType = "card"
	UpdateTypeStatusChange UpdateType = "status_change"
	UpdateTypePreMatchHype UpdateType = "pre_match_hype"
	UpdateTypeFinal        UpdateType = "final"
	UpdateTypeLiveEvent    UpdateType = "live_event"
)

// UpdateTypeFor 根据事件类型归类更新类别
func UpdateTypeFor(kind EventKind) UpdateType {
	switch {
	case kind.IsGoal():
		return UpdateTypeGoal
	case kind.IsCard():
		return UpdateTypeCard
	case kind == KindStatusChange:
		return UpdateTypeStatusChange
	}
	return UpdateTypeLiveEvent
}

// MatchUpdate 对外广播的一条比赛更新（WebSocket与AMQP共用）
type MatchUpdate struct {
	MatchID    string       `json:"match_id"`
	Type       UpdateType   `json:"type"`
	Phase      string       `json:"phase"`
	Score      string       `json:"score"`
	Commentary string       `json:"commentary,omitempty"`
	Event      *DomainEvent `json:"event,omitempty"`
	MessageID  string       `json:"message_id,omitempty"`
	PostedAt   time.Time    `json:"posted_at"`
}
