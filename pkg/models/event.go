package models

import (
	"fmt"
	"strings"
)

// EventKind 比赛事件类型（封闭集合，解析时一次性归类，后续按类型分发）
type EventKind string

const (
	KindGoal         EventKind = "goal"
	KindOwnGoal      EventKind = "own_goal"
	KindPenaltyGoal  EventKind = "penalty_goal"
	KindPenaltyMiss  EventKind = "penalty_miss"
	KindPenaltySave  EventKind = "penalty_save"
	KindYellowCard   EventKind = "yellow_card"
	KindRedCard      EventKind = "red_card"
	KindSecondYellow EventKind = "second_yellow"
	KindSubstitution EventKind = "substitution"
	KindAddedTime    EventKind = "added_time"
	KindVARReview    EventKind = "var_review"
	KindStatusChange EventKind = "status_change"
	KindOther        EventKind = "other"
)

// IsGoal 判断是否为进球类事件
func (k EventKind) IsGoal() bool {
	return k == KindGoal || k == KindOwnGoal || k == KindPenaltyGoal
}

// IsCard 判断是否为红黄牌类事件
func (k EventKind) IsCard() bool {
	return k == KindYellowCard || k == KindRedCard || k == KindSecondYellow
}

// ClassifyEventType 将数据源的事件类型文本归类为EventKind
func ClassifyEventType(typeText, eventText string) EventKind {
	t := strings.ToLower(typeText)
	body := strings.ToLower(eventText)

	switch {
	case strings.Contains(t, "own goal") || strings.Contains(body, "own goal"):
		return KindOwnGoal
	case strings.Contains(t, "penalty") && (strings.Contains(t, "missed") || strings.Contains(body, "missed")):
		return KindPenaltyMiss
	case strings.Contains(t, "penalty") && (strings.Contains(t, "saved") || strings.Contains(body, "saved")):
		return KindPenaltySave
	case strings.Contains(t, "penalty") && (strings.Contains(t, "goal") || strings.Contains(t, "scored")):
		return KindPenaltyGoal
	case strings.Contains(t, "goal") || strings.Contains(body, "goal"):
		return KindGoal
	case strings.Contains(body, "second yellow") || strings.Contains(body, "2nd yellow"):
		return KindSecondYellow
	case strings.Contains(t, "red card") || strings.Contains(body, "red card"):
		return KindRedCard
	case strings.Contains(t, "yellow card") || strings.Contains(t, "booking") || strings.Contains(t, "card"):
		return KindYellowCard
	case strings.Contains(t, "substitution") || strings.Contains(t, "sub") || strings.Contains(body, "substitution"):
		return KindSubstitution
	case strings.Contains(t, "added time") || strings.Contains(t, "injury time"):
		return KindAddedTime
	case strings.Contains(t, "var") || strings.Contains(body, "video review"):
		return KindVARReview
	}
	return KindOther
}

// GoalDetail 进球附加信息
type GoalDetail struct {
	Penalty bool `json:"penalty"`
	OwnGoal bool `json:"own_goal"`
}

// CardDetail 红黄牌附加信息
type CardDetail struct {
	Red          bool `json:"red"`
	SecondYellow bool `json:"second_yellow"`
}

// SubstitutionDetail 换人附加信息
type SubstitutionDetail struct {
	PlayerInID    string `json:"player_in_id"`
	PlayerInName  string `json:"player_in_name"`
	PlayerOutID   string `json:"player_out_id"`
	PlayerOutName string `json:"player_out_name"`
}

// StatusChangeDetail 阶段切换附加信息
type StatusChangeDetail struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DomainEvent 从快照派生的比赛事件。EventID来自数据源，跨轮询不保证稳定，
// 幂等性以DedupKey()为准。
type DomainEvent struct {
	EventID     string    `json:"event_id"`
	Kind        EventKind `json:"kind"`
	TypeText    string    `json:"type_text"`
	Description string    `json:"description"`
	Clock       string    `json:"clock"`
	TeamID      string    `json:"team_id"`
	AthleteID   string    `json:"athlete_id"`
	AthleteName string    `json:"athlete_name"`

	Goal         *GoalDetail         `json:"goal,omitempty"`
	Card         *CardDetail         `json:"card,omitempty"`
	Substitution *SubstitutionDetail `json:"substitution,omitempty"`
	StatusChange *StatusChangeDetail `json:"status_change,omitempty"`

	// Raw 数据源原始事件内容，供下游格式化使用
	Raw map[string]interface{} `json:"raw,omitempty"`
}

// DedupKey 事件去重键。只使用(clock, kind, athlete)三元组：数据源的事件ID
// 在轮询之间可能被重新编号，不能参与去重。同一球员在同一时钟显示值上的
// 两个同类事件会产生碰撞，这是已接受的残余风险。
func (e DomainEvent) DedupKey() string {
	if e.Kind == KindStatusChange && e.StatusChange != nil {
		return StatusDedupKey(e.StatusChange.To)
	}
	return normalizeKey(fmt.Sprintf("%s|%s|%s", e.Clock, e.Kind, e.AthleteName))
}

// StatusDedupKey 阶段切换事件的去重键，由目标阶段名派生
func StatusDedupKey(phase string) string {
	return normalizeKey("status|" + phase)
}

func normalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}
