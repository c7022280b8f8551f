package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const deviceDBName = "device.db"

// meowClient implements Client on top of whatsmeow with a sqlite device
// store kept in its own directory so it can be archived as a unit.
type meowClient struct {
	db        *sql.DB
	container *sqlstore.Container
	cli       *whatsmeow.Client

	mu      sync.RWMutex
	handler func(Event)
}

// NewMeowClient is the ClientFactory used in production.
func NewMeowClient(ctx context.Context, dataDir string) (Client, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	dsn := "file:" + filepath.Join(dataDir, deviceDBName) + "?_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open device store: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", newZapLogger("database"))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("whatsapp: upgrade device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}
	m := &meowClient{
		db:        db,
		container: container,
		cli:       whatsmeow.NewClient(device, newZapLogger("client")),
	}
	m.cli.AddEventHandler(m.handle)
	return m, nil
}

func (m *meowClient) SetEventHandler(fn func(Event)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

func (m *meowClient) emit(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	m.mu.RLock()
	fn := m.handler
	m.mu.RUnlock()
	if fn != nil {
		fn(evt)
	}
}

func (m *meowClient) Connect(ctx context.Context) error {
	if m.cli.Store.ID == nil {
		qrChan, err := m.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case "code":
					m.emit(Event{Type: EventQR, QRCode: item.Code})
				case "success":
					zap.L().Info("whatsapp: qr pairing succeeded")
				default:
					// timeout or error, the client disconnects by itself
					m.emit(Event{Type: EventDisconnected, Reason: "qr " + item.Event})
				}
			}
		}()
	}
	return m.cli.Connect()
}

func (m *meowClient) Disconnect() {
	m.cli.Disconnect()
}

func (m *meowClient) Logout(ctx context.Context) error {
	return m.cli.Logout(ctx)
}

func (m *meowClient) SendText(ctx context.Context, to, text string) (string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("whatsapp: invalid recipient %q: %w", to, err)
	}
	resp, err := m.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (m *meowClient) IsLoggedIn() bool {
	return m.cli.IsLoggedIn()
}

func (m *meowClient) JID() string {
	if m.cli.Store.ID == nil {
		return ""
	}
	return m.cli.Store.ID.ToNonAD().String()
}

// Snapshot copies the open device database into dir.
func (m *meowClient) Snapshot(ctx context.Context, dir string) error {
	return snapshotSQLite(ctx, m.db, filepath.Join(dir, deviceDBName))
}

func (m *meowClient) Close() error {
	return m.container.Close()
}

func (m *meowClient) handle(raw interface{}) {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		// the push name is only known once the connection is up
		m.emit(Event{Type: EventAuthenticated, JID: evt.ID.ToNonAD().String()})
	case *events.Connected:
		m.emit(Event{Type: EventReady, JID: m.JID(), PushName: m.cli.Store.PushName})
	case *events.Disconnected:
		m.emit(Event{Type: EventDisconnected, Reason: "connection closed"})
	case *events.StreamReplaced:
		m.emit(Event{Type: EventDisconnected, Reason: "stream replaced"})
	case *events.LoggedOut:
		m.emit(Event{Type: EventLoggedOut, Reason: fmt.Sprintf("%v", evt.Reason)})
	case *events.Message:
		m.emit(Event{Type: EventMessage, Message: convertMessage(evt), Time: evt.Info.Timestamp})
	}
}

func convertMessage(evt *events.Message) *IncomingMessage {
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	return &IncomingMessage{
		ID:        evt.Info.ID,
		From:      evt.Info.Sender.ToNonAD().String(),
		Chat:      evt.Info.Chat.String(),
		PushName:  evt.Info.PushName,
		Text:      text,
		IsGroup:   evt.Info.IsGroup,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
}

// zapLogger routes whatsmeow's logging into the global zap logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func newZapLogger(module string) waLog.Logger {
	return &zapLogger{s: zap.S().Named("whatsmeow").Named(module)}
}

func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.s.Debugf(msg, args...) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.s.Infof(msg, args...) }
func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.s.Warnf(msg, args...) }
func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.s.Errorf(msg, args...) }
func (l *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{s: l.s.Named(module)}
}

var (
	_ waLog.Logger = (*zapLogger)(nil)
	_ Snapshotter  = (*meowClient)(nil)
)
