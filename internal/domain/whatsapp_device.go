package domain

import "time"

// WhatsAppDevice tracks the account paired under a session name.
type WhatsAppDevice struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Session   string    `json:"session" gorm:"uniqueIndex;size:255"`
	Jid       string    `json:"jid"`
	PushName  string    `json:"push_name"`
	Status    string    `json:"status"` // qr, authenticated, ready, disconnected, logged_out
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhatsAppDevice) TableName() string {
	return "whatsapp_device"
}
