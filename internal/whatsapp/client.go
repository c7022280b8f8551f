package whatsapp

import (
	"context"
	"time"
)

type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventDisconnected  EventType = "disconnected"
	EventLoggedOut     EventType = "logged_out"
	EventMessage       EventType = "message"
)

// Topic is the event bus topic an event type is published on.
func (t EventType) Topic() string {
	return "wa:" + string(t)
}

// Event is a client lifecycle or message notification.
type Event struct {
	Type     EventType
	QRCode   string
	JID      string
	PushName string
	Reason   string
	Message  *IncomingMessage
	Time     time.Time
}

// IncomingMessage is the part of a received message forwarded to webhooks.
type IncomingMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Chat      string    `json:"chat"`
	PushName  string    `json:"push_name"`
	Text      string    `json:"text"`
	IsGroup   bool      `json:"is_group"`
	FromMe    bool      `json:"from_me"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is the boundary to the WhatsApp client library.
type Client interface {
	// Connect starts the connection. A client without a paired device
	// begins emitting EventQR until the code is scanned.
	Connect(ctx context.Context) error
	Disconnect()
	// Logout unlinks the device from the account.
	Logout(ctx context.Context) error
	SendText(ctx context.Context, to, text string) (string, error)
	IsLoggedIn() bool
	JID() string
	SetEventHandler(fn func(Event))
	// Close releases the on-disk device store.
	Close() error
}

// Snapshotter is implemented by clients whose device store is a live
// database. Snapshot writes a consistent copy of the device data into dir.
type Snapshotter interface {
	Snapshot(ctx context.Context, dir string) error
}

// ClientFactory opens a client whose device data lives in dataDir.
type ClientFactory func(ctx context.Context, dataDir string) (Client, error)
