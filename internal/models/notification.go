package models

// MatchNotification сообщение о матче для транспорта. Text уже отформатирован.
type MatchNotification struct {
	Recipient int64  `json:"recipient"`
	Match     Match  `json:"match"`
	IsNew     bool   `json:"is_new"`
	Text      string `json:"text"`
}

// TextNotification текстовое сообщение для транспорта.
type TextNotification struct {
	Recipient int64  `json:"recipient"`
	Text      string `json:"text"`
}
