package domain

import "time"

// SessionRecord holds the exported client archive for one logical login.
// There is at most one row per SessionKey.
type SessionRecord struct {
	SessionKey string    `json:"session_key" gorm:"primaryKey;size:255"`
	Data       []byte    `json:"-" gorm:"not null"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SessionRecord) TableName() string {
	return "wa_session"
}
