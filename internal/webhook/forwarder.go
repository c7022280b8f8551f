// Package webhook forwards incoming WhatsApp messages to a configurable
// HTTP endpoint.
package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/guonaihong/gout"
	"github.com/panjf2000/ants/v2"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/whatsapp"
	"go.uber.org/zap"
)

const DeliveryHeader = "X-Wagate-Delivery"

var ErrInvalidURL = errors.New("webhook: url must be an absolute http(s) url")

// SettingsStore persists the webhook URL.
type SettingsStore interface {
	GetSettingsStringValue(category, key string) string
	SaveSetting(category, key, value string) error
}

type Options struct {
	Session string
	Timeout time.Duration
	Workers int
	// NodeID seeds delivery id generation, 0..1023.
	NodeID int64
}

// Payload is the JSON body posted for every incoming message.
type Payload struct {
	Event      string                    `json:"event"`
	Session    string                    `json:"session"`
	DeliveryID string                    `json:"delivery_id"`
	Message    *whatsapp.IncomingMessage `json:"message"`
}

type Forwarder struct {
	settings SettingsStore
	opts     Options
	pool     *ants.Pool
	ids      *snowflake.Node

	mu  sync.RWMutex
	url string
}

func New(settings SettingsStore, opts Options) (*Forwarder, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("webhook: id generator: %w", err)
	}
	pool, err := ants.NewPool(opts.Workers, ants.WithNonblocking(true), ants.WithPanicHandler(func(p interface{}) {
		zap.S().Errorf("webhook: delivery panic: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("webhook: worker pool: %w", err)
	}
	f := &Forwarder{settings: settings, opts: opts, pool: pool, ids: node}
	f.url = settings.GetSettingsStringValue(domain.ConfigTypeWebhook, domain.ConfigNameURL)
	return f, nil
}

// Subscribe attaches the forwarder to message events on bus.
func (f *Forwarder) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(whatsapp.EventMessage.Topic(), f.OnMessage, false)
}

// URL returns the current target, empty when forwarding is disabled.
func (f *Forwarder) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

// SetURL validates, persists and applies a new target. An empty value
// disables forwarding.
func (f *Forwarder) SetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidURL
		}
	}
	if err := f.settings.SaveSetting(domain.ConfigTypeWebhook, domain.ConfigNameURL, raw); err != nil {
		return fmt.Errorf("webhook: save url: %w", err)
	}
	f.mu.Lock()
	f.url = raw
	f.mu.Unlock()
	zap.L().Info("webhook: url updated", zap.Bool("enabled", raw != ""))
	return nil
}

// OnMessage queues a delivery for evt. It never blocks on the network.
func (f *Forwarder) OnMessage(evt whatsapp.Event) {
	if evt.Message == nil {
		return
	}
	target := f.URL()
	if target == "" {
		return
	}
	p := Payload{
		Event:      string(evt.Type),
		Session:    f.opts.Session,
		DeliveryID: f.ids.Generate().String(),
		Message:    evt.Message,
	}
	if err := f.pool.Submit(func() { f.deliver(target, p) }); err != nil {
		zap.L().Warn("webhook: delivery dropped", zap.String("delivery_id", p.DeliveryID), zap.Error(err))
	}
}

func (f *Forwarder) deliver(target string, p Payload) {
	var code int
	err := gout.POST(target).
		SetTimeout(f.opts.Timeout).
		SetHeader(gout.H{DeliveryHeader: p.DeliveryID}).
		SetJSON(p).
		Code(&code).
		Do()
	if err != nil {
		zap.L().Warn("webhook: delivery failed",
			zap.String("delivery_id", p.DeliveryID), zap.Error(err))
		return
	}
	if code < 200 || code >= 300 {
		zap.L().Warn("webhook: delivery rejected",
			zap.String("delivery_id", p.DeliveryID), zap.Int("status", code))
		return
	}
	zap.L().Debug("webhook: delivered", zap.String("delivery_id", p.DeliveryID), zap.String("message_id", p.Message.ID))
}

// Close waits briefly for queued deliveries and stops the pool.
func (f *Forwarder) Close() {
	if err := f.pool.ReleaseTimeout(f.opts.Timeout); err != nil {
		zap.L().Warn("webhook: pool release timed out", zap.Error(err))
	}
}
