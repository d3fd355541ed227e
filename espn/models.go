package espn

// Raw scoreboard payload shapes. Every field is optional on the wire;
// parsing substitutes neutral defaults instead of failing.

// ScoreboardResponse is the top-level match payload
type ScoreboardResponse struct {
	Date         string        `json:"date"`
	Competitions []Competition `json:"competitions"`
}

// Competition holds one competition block of the scoreboard
type Competition struct {
	Status      Status       `json:"status"`
	Competitors []Competitor `json:"competitors"`
	Details     []Detail     `json:"details"`
	Venue       Venue        `json:"venue"`
}

// Status carries the match phase
type Status struct {
	Type StatusType `json:"type"`
}

// StatusType names the phase, e.g. STATUS_IN_PROGRESS
type StatusType struct {
	Name string `json:"name"`
}

// Competitor is one side of the match
type Competitor struct {
	ID       string `json:"id"`
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Form     string `json:"form"`
	Team     Team   `json:"team"`
}

// Team describes the club
type Team struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Abbreviation string `json:"abbreviation"`
	Logo         string `json:"logo"`
}

// Detail is one raw match event
type Detail struct {
	Type             DetailType `json:"type"`
	Text             string     `json:"text"`
	Clock            Clock      `json:"clock"`
	Team             DetailTeam `json:"team"`
	AthletesInvolved []Athlete  `json:"athletesInvolved"`
}

// DetailType carries the event type text
type DetailType struct {
	Text string `json:"text"`
}

// Clock carries the match clock display value
type Clock struct {
	DisplayValue string `json:"displayValue"`
}

// DetailTeam references the team an event belongs to
type DetailTeam struct {
	ID string `json:"id"`
}

// Athlete is a player involved in an event
type Athlete struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	ShortName   string   `json:"shortName"`
	Jersey      string   `json:"jersey"`
	Headshot    Headshot `json:"headshot"`
	Position    Position `json:"position"`
}

// Headshot is the player photo reference
type Headshot struct {
	Href string `json:"href"`
}

// Position is the player position reference
type Position struct {
	Abbreviation string `json:"abbreviation"`
}

// Venue is the stadium block
type Venue struct {
	FullName string `json:"fullName"`
}
