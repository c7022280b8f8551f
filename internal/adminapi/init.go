package adminapi

import (
	"sync"

	"github.com/talkincode/wagate/internal/webhook"
)

var (
	registerOnce sync.Once
	forwarderMu  sync.RWMutex
	forwarder    *webhook.Forwarder
)

// Init registers the API routes and binds the webhook forwarder. Call it
// before webserver.NewAdminServer.
func Init(fw *webhook.Forwarder) {
	forwarderMu.Lock()
	forwarder = fw
	forwarderMu.Unlock()
	registerOnce.Do(func() {
		registerHealthRoutes()
		registerWhatsAppRoutes()
		registerSessionRoutes()
		registerWebhookRoutes()
		registerJobRoutes()
	})
}

func getForwarder() *webhook.Forwarder {
	forwarderMu.RLock()
	defer forwarderMu.RUnlock()
	return forwarder
}
