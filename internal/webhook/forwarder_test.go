package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wagate/internal/whatsapp"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSettings) GetSettingsStringValue(category, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[category+"."+key]
}

func (m *memSettings) SaveSetting(category, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[category+"."+key] = value
	return nil
}

type received struct {
	header  string
	payload Payload
}

func TestForwarderDeliversMessage(t *testing.T) {
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p Payload
		_ = json.Unmarshal(body, &p)
		got <- received{header: r.Header.Get(DeliveryHeader), payload: p}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	settings := &memSettings{}
	f, err := New(settings, Options{Session: "main", Timeout: 2 * time.Second, Workers: 2})
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.SetURL(srv.URL+"/hook"))
	assert.Equal(t, srv.URL+"/hook", settings.GetSettingsStringValue("webhook", "url"))

	bus := EventBus.New()
	require.NoError(t, f.Subscribe(bus))
	bus.Publish(whatsapp.EventMessage.Topic(), whatsapp.Event{
		Type: whatsapp.EventMessage,
		Message: &whatsapp.IncomingMessage{
			ID:   "ABC",
			From: "6281234@s.whatsapp.net",
			Text: "hello",
		},
	})

	select {
	case r := <-got:
		assert.NotEmpty(t, r.header)
		assert.Equal(t, r.header, r.payload.DeliveryID)
		assert.Equal(t, "message", r.payload.Event)
		assert.Equal(t, "main", r.payload.Session)
		require.NotNil(t, r.payload.Message)
		assert.Equal(t, "hello", r.payload.Message.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was not called")
	}
}

func TestForwarderDisabledWithoutURL(t *testing.T) {
	calls := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
	}))
	defer srv.Close()

	f, err := New(&memSettings{}, Options{Timeout: time.Second})
	require.NoError(t, err)
	defer f.Close()
	f.OnMessage(whatsapp.Event{Type: whatsapp.EventMessage, Message: &whatsapp.IncomingMessage{ID: "x"}})

	select {
	case <-calls:
		t.Fatal("no delivery expected")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestForwarderLoadsPersistedURL(t *testing.T) {
	settings := &memSettings{values: map[string]string{"webhook.url": "https://hooks.example.com/wa"}}
	f, err := New(settings, Options{})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "https://hooks.example.com/wa", f.URL())
}

func TestSetURLValidation(t *testing.T) {
	f, err := New(&memSettings{}, Options{})
	require.NoError(t, err)
	defer f.Close()

	for _, bad := range []string{"ftp://x", "not a url", "/relative", "http://"} {
		assert.ErrorIs(t, f.SetURL(bad), ErrInvalidURL, bad)
	}
	require.NoError(t, f.SetURL("https://example.com/in"))
	require.NoError(t, f.SetURL(""))
	assert.Empty(t, f.URL())
}
