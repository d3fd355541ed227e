package models

import "time"

// 比赛阶段状态码（与ESPN的status.type.name保持一致）
const (
	PhaseScheduled       = "STATUS_SCHEDULED"
	PhasePre             = "STATUS_PRE"
	PhaseInProgress      = "STATUS_IN_PROGRESS"
	PhaseHalftime        = "STATUS_HALFTIME"
	PhaseBreak           = "STATUS_BREAK"
	PhaseSecondHalf      = "STATUS_SECOND_HALF"
	PhaseExtraTime       = "STATUS_EXTRA_TIME"
	PhaseShootout        = "STATUS_PENALTY_SHOOTOUT"
	PhaseFullTime        = "STATUS_FULL_TIME"
	PhaseFinal           = "STATUS_FINAL"
	PhaseFinalExtraTime  = "STATUS_FINAL_ET"
	PhaseFinalPenalties  = "STATUS_FINAL_PEN"
	PhaseAbandoned       = "STATUS_ABANDONED"
	PhaseCancelled       = "STATUS_CANCELLED"

	// PhasePreMatchPosted 赛前预热消息已发送的标记状态（仅写入会话，不会来自数据源）
	PhasePreMatchPosted = "PRE_MATCH_POSTED"
)

// IsTerminalPhase 判断阶段是否为终态
func IsTerminalPhase(phase string) bool {
	switch phase {
	case PhaseFinal, PhaseFullTime, PhaseFinalExtraTime, PhaseFinalPenalties, PhaseAbandoned, PhaseCancelled:
		return true
	}
	return false
}

// IsPreMatchPhase 判断阶段是否为赛前
func IsPreMatchPhase(phase string) bool {
	return phase == PhaseScheduled || phase == PhasePre
}

// TeamInfo 队伍信息
type TeamInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Score     string `json:"score"`
	Logo      string `json:"logo,omitempty"`
	IsHome    bool   `json:"is_home"`
}

// MatchSnapshot 一次轮询得到的比赛快照，仅在diff期间存活，不落库
type MatchSnapshot struct {
	MatchID     string        `json:"match_id"`
	Competition string        `json:"competition"`
	Phase       string        `json:"phase"`
	HomeTeam    TeamInfo      `json:"home_team"`
	AwayTeam    TeamInfo      `json:"away_team"`
	Score       string        `json:"score"`
	Events      []DomainEvent `json:"events"`
	Venue       string        `json:"venue,omitempty"`
	HomeForm    string        `json:"home_form,omitempty"`
	AwayForm    string        `json:"away_form,omitempty"`
	AsOf        time.Time     `json:"as_of"`
}

// TeamByID 根据队伍ID查找队伍信息
func (s *MatchSnapshot) TeamByID(teamID string) (TeamInfo, bool) {
	if teamID == "" {
		return TeamInfo{}, false
	}
	if s.HomeTeam.ID == teamID {
		return s.HomeTeam, true
	}
	if s.AwayTeam.ID == teamID {
		return s.AwayTeam, true
	}
	return TeamInfo{}, false
}
