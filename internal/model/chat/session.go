package chat

import "time"

// Session is the dev backend's record of one started conversation.
type Session struct {
	ID         string    `json:"id"`
	ChatType   ChatType  `json:"chatType"`
	ScenarioID string    `json:"scenarioId,omitempty"`
	AIName     string    `json:"aiName,omitempty"`
	Role       string    `json:"role,omitempty"`
	Greeting   string    `json:"greetingMessage"`
	CreatedAt  time.Time `json:"createdAt"`
}
