// Package whatsapp owns the single WhatsApp client of the process: it
// restores the stored session on start, turns client events into state
// transitions and persists the session whenever the client becomes ready.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/skip2/go-qrcode"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusQR            Status = "qr"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusDisconnected  Status = "disconnected"
	StatusLoggedOut     Status = "logged_out"
)

var (
	ErrNotReady   = errors.New("whatsapp: client not ready")
	ErrNoQR       = errors.New("whatsapp: no qr code available")
	ErrNotRunning = errors.New("whatsapp: client not started")
)

// State is a snapshot of the connection state.
type State struct {
	Status    Status    `json:"status"`
	JID       string    `json:"jid,omitempty"`
	PushName  string    `json:"push_name,omitempty"`
	HasQR     bool      `json:"has_qr"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service wraps a Client and provides lifecycle methods.
type Service struct {
	app       app.AppContext
	sessions  *session.Adapter
	bus       EventBus.Bus
	newClient ClientFactory
	name      string
	workDir   string
	dataDir   string

	mu         sync.RWMutex
	state      State
	qr         string
	client     Client
	runCtx     context.Context
	cancelSave context.CancelFunc

	// saveMu serializes archive+save for the session
	saveMu sync.Mutex
	wg     sync.WaitGroup
}

// New builds the service. newClient defaults to NewMeowClient.
func New(a app.AppContext, bus EventBus.Bus, newClient ClientFactory) (*Service, error) {
	if newClient == nil {
		newClient = NewMeowClient
	}
	cfg := a.Config()
	s := &Service{
		app:       a,
		sessions:  a.Sessions(),
		bus:       bus,
		newClient: newClient,
		name:      cfg.Session.Name,
		workDir:   cfg.System.Workdir,
		dataDir:   filepath.Join(cfg.GetAuthDir(), "session-"+cfg.Session.Name),
		state:     State{Status: StatusInitializing, UpdatedAt: time.Now()},
	}
	subs := map[EventType]interface{}{
		EventQR:            s.onQR,
		EventAuthenticated: s.onAuthenticated,
		EventReady:         s.onReady,
		EventDisconnected:  s.onDisconnected,
		EventLoggedOut:     s.onLoggedOut,
	}
	for t, fn := range subs {
		if err := bus.Subscribe(t.Topic(), fn); err != nil {
			return nil, fmt.Errorf("whatsapp: subscribe %s: %w", t, err)
		}
	}
	setGlobalService(s)
	return s, nil
}

// Session returns the configured session name.
func (s *Service) Session() string { return s.name }

// ArchivePath is where the session archive is written before it is saved.
func (s *Service) ArchivePath() string {
	return filepath.Join(s.workDir, s.name+".zip")
}

// Start restores any stored session, connects, and blocks until ctx is
// done. The client is disconnected and pending saves are awaited on return.
func (s *Service) Start(ctx context.Context) error {
	s.restore(ctx)

	cli, err := s.openClient(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	zap.L().Info("whatsapp: starting client", zap.String("session", s.name), zap.Bool("logged_in", cli.JID() != ""))
	if err := cli.Connect(ctx); err != nil {
		s.setError(err)
		zap.L().Warn("whatsapp: client connect failed", zap.Error(err))
	}

	<-ctx.Done()
	zap.L().Info("whatsapp: shutting down client")
	s.mu.RLock()
	cli = s.client
	s.mu.RUnlock()
	if cli != nil {
		cli.Disconnect()
	}
	s.wg.Wait()

	// relogin may have swapped the client while we waited
	s.mu.Lock()
	cli = s.client
	s.client = nil
	s.mu.Unlock()
	if cli != nil {
		cli.Disconnect()
		if err := cli.Close(); err != nil {
			zap.L().Warn("whatsapp: close device store failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) openClient(ctx context.Context) (Client, error) {
	cli, err := s.newClient(ctx, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open client: %w", err)
	}
	cli.SetEventHandler(s.dispatch)
	s.mu.Lock()
	s.client = cli
	s.mu.Unlock()
	return cli, nil
}

// restore pulls the stored archive and unpacks it into the client's data
// directory. Any failure leaves the directory untouched and the client
// falls back to a fresh QR login.
func (s *Service) restore(ctx context.Context) {
	tmp := filepath.Join(filepath.Dir(s.dataDir), s.name+".restore.zip")
	defer os.Remove(tmp)
	err := s.sessions.Extract(ctx, s.name, tmp)
	switch {
	case errors.Is(err, session.ErrNoSession):
		zap.L().Info("whatsapp: no stored session, waiting for qr login", zap.String("session", s.name))
		return
	case err != nil:
		zap.L().Warn("whatsapp: load stored session failed", zap.String("session", s.name), zap.Error(err))
		return
	}
	if err := os.RemoveAll(s.dataDir); err != nil {
		zap.L().Warn("whatsapp: clear data dir failed", zap.String("dir", s.dataDir), zap.Error(err))
		return
	}
	if err := session.Unarchive(tmp, s.dataDir); err != nil {
		zap.L().Warn("whatsapp: unpack stored session failed", zap.String("session", s.name), zap.Error(err))
		_ = os.RemoveAll(s.dataDir)
		return
	}
	zap.L().Info("whatsapp: stored session restored", zap.String("session", s.name))
}

// dispatch publishes client events on the bus. Subscribers run in order.
func (s *Service) dispatch(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	s.bus.Publish(evt.Type.Topic(), evt)
}

func (s *Service) transition(status Status, update func(st *State)) {
	s.mu.Lock()
	prev := s.state.Status
	s.state.Status = status
	s.state.UpdatedAt = time.Now()
	if update != nil {
		update(&s.state)
	}
	s.state.HasQR = s.qr != ""
	s.mu.Unlock()
	if prev != status {
		zap.L().Info("whatsapp: state changed", zap.String("from", string(prev)), zap.String("to", string(status)))
	}
}

func (s *Service) onQR(evt Event) {
	s.mu.Lock()
	s.qr = evt.QRCode
	s.mu.Unlock()
	s.transition(StatusQR, nil)
	s.recordDevice(StatusQR, "", "")
}

func (s *Service) onAuthenticated(evt Event) {
	s.mu.Lock()
	s.qr = ""
	s.mu.Unlock()
	s.transition(StatusAuthenticated, func(st *State) {
		st.JID = evt.JID
		st.LastError = ""
	})
	s.recordDevice(StatusAuthenticated, evt.JID, evt.PushName)
}

func (s *Service) onReady(evt Event) {
	s.mu.Lock()
	s.qr = ""
	ctx := s.runCtx
	s.mu.Unlock()
	s.transition(StatusReady, func(st *State) {
		if evt.JID != "" {
			st.JID = evt.JID
		}
		st.PushName = evt.PushName
		st.LastError = ""
	})
	s.recordDevice(StatusReady, evt.JID, evt.PushName)

	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.persist(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotReady), errors.Is(err, context.Canceled):
			zap.L().Info("whatsapp: session save skipped", zap.String("session", s.name), zap.Error(err))
		default:
			s.setError(err)
			zap.L().Error("whatsapp: session save failed", zap.String("session", s.name), zap.Error(err))
		}
	}()
}

func (s *Service) onDisconnected(evt Event) {
	if s.Status() == StatusLoggedOut {
		return
	}
	s.transition(StatusDisconnected, func(st *State) {
		st.LastError = evt.Reason
	})
	s.recordDevice(StatusDisconnected, "", "")
}

func (s *Service) onLoggedOut(evt Event) {
	s.mu.Lock()
	s.qr = ""
	ctx := s.runCtx
	s.mu.Unlock()
	s.transition(StatusLoggedOut, func(st *State) {
		st.JID = ""
		st.PushName = ""
		st.LastError = evt.Reason
	})
	s.recordDevice(StatusLoggedOut, "", "")
	s.dropStoredSession()

	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.relogin(ctx)
	}()
}

// dropStoredSession aborts an in-flight save and deletes the stored
// archive once no save can write it back.
func (s *Service) dropStoredSession() {
	s.mu.Lock()
	if s.cancelSave != nil {
		s.cancelSave()
	}
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.sessions.Delete(ctx, s.name); err != nil {
		zap.L().Error("whatsapp: delete stored session failed", zap.String("session", s.name), zap.Error(err))
	}
}

// relogin drops the unlinked device and starts a fresh client so a new QR
// code becomes available.
func (s *Service) relogin(ctx context.Context) {
	s.saveMu.Lock()
	s.mu.Lock()
	old := s.client
	s.client = nil
	s.mu.Unlock()
	if old != nil {
		old.Disconnect()
		_ = old.Close()
	}
	if err := os.RemoveAll(s.dataDir); err != nil {
		zap.L().Warn("whatsapp: remove data dir failed", zap.String("dir", s.dataDir), zap.Error(err))
	}
	_ = os.Remove(s.ArchivePath())
	s.saveMu.Unlock()

	// Connect publishes events, which must never happen under saveMu
	if ctx.Err() != nil {
		return
	}
	cli, err := s.openClient(ctx)
	if err != nil {
		s.setError(err)
		zap.L().Error("whatsapp: reopen client failed", zap.Error(err))
		return
	}
	s.transition(StatusInitializing, nil)
	if err := cli.Connect(ctx); err != nil {
		s.setError(err)
		zap.L().Warn("whatsapp: reconnect for new login failed", zap.Error(err))
	}
}

// persist archives the client's data directory and saves it to the store.
// It only runs while the client is ready and is cancelled by a logout.
func (s *Service) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.state.Status != StatusReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelSave = cancel
	cli := s.client
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelSave = nil
		s.mu.Unlock()
		cancel()
	}()

	src := s.dataDir
	if snap, ok := cli.(Snapshotter); ok {
		tmp, err := os.MkdirTemp(filepath.Dir(s.dataDir), s.name+".snapshot-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if err := snap.Snapshot(ctx, tmp); err != nil {
			return fmt.Errorf("whatsapp: snapshot device store: %w", err)
		}
		src = tmp
	}
	if err := session.Archive(src, s.ArchivePath()); err != nil {
		return err
	}
	return s.sessions.Save(ctx, s.name)
}

// Backup re-saves the session of a ready client.
func (s *Service) Backup(ctx context.Context) error {
	return s.persist(ctx)
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.state.LastError = err.Error()
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// recordDevice mirrors the account state into the whatsapp_device table.
func (s *Service) recordDevice(status Status, jid, pushName string) {
	db := s.app.DB()
	if db == nil {
		return
	}
	dev := domain.WhatsAppDevice{
		Session:  s.name,
		Jid:      jid,
		PushName: pushName,
		Status:   string(status),
		LastSeen: time.Now(),
	}
	cols := []string{"status", "last_seen", "updated_at"}
	if jid != "" || status == StatusLoggedOut {
		cols = append(cols, "jid", "push_name")
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&dev).Error
	if err != nil {
		zap.L().Warn("whatsapp: record device failed", zap.String("session", s.name), zap.Error(err))
	}
}

// Status returns the current status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

// State returns a snapshot of the connection state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// QRCode returns the latest QR code string, empty when none is pending.
func (s *Service) QRCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

// QRPNG renders the pending QR code as a PNG image.
func (s *Service) QRPNG(size int) ([]byte, error) {
	code := s.QRCode()
	if code == "" {
		return nil, ErrNoQR
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

// SendText sends a text message once the client is ready.
func (s *Service) SendText(ctx context.Context, to, text string) (string, error) {
	s.mu.RLock()
	cli, status := s.client, s.state.Status
	s.mu.RUnlock()
	if cli == nil || status != StatusReady {
		return "", ErrNotReady
	}
	jid, err := NormalizeJID(to)
	if err != nil {
		return "", err
	}
	id, err := cli.SendText(ctx, jid, text)
	if err != nil {
		zap.L().Warn("whatsapp: send message failed", zap.String("to", jid), zap.Error(err))
		return "", err
	}
	zap.L().Info("whatsapp: message sent", zap.String("to", jid), zap.String("id", id))
	return id, nil
}

// Logout unlinks the device, deletes the stored session and starts a new
// login.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.RLock()
	cli := s.client
	s.mu.RUnlock()
	if cli == nil {
		return ErrNotRunning
	}
	if cli.IsLoggedIn() {
		if err := cli.Logout(ctx); err != nil {
			return fmt.Errorf("whatsapp: logout: %w", err)
		}
	}
	s.dispatch(Event{Type: EventLoggedOut, Reason: "logout requested"})
	return nil
}

// NormalizeJID turns a bare phone number into a user JID. Values that
// already carry a server part are returned unchanged.
func NormalizeJID(to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", fmt.Errorf("whatsapp: empty recipient")
	}
	if strings.Contains(to, "@") {
		return to, nil
	}
	digits := strings.TrimPrefix(to, "+")
	digits = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(digits)
	if digits == "" {
		return "", fmt.Errorf("whatsapp: invalid recipient %q", to)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("whatsapp: invalid recipient %q", to)
		}
	}
	return digits + "@s.whatsapp.net", nil
}

// package-level global reference for the running service instance
var globalSvc *Service
var globalSvcLock sync.RWMutex

func setGlobalService(s *Service) {
	globalSvcLock.Lock()
	defer globalSvcLock.Unlock()
	globalSvc = s
}

// Get returns the running WhatsApp service instance or nil if not
// initialized.
func Get() *Service {
	globalSvcLock.RLock()
	defer globalSvcLock.RUnlock()
	return globalSvc
}
