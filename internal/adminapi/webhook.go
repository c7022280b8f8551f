package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/webhook"
	"github.com/talkincode/wagate/internal/webserver"
)

func registerWebhookRoutes() {
	webserver.ApiGET("/webhook", getWebhook)
	webserver.ApiPOST("/webhook", postWebhook)
	webserver.ApiDELETE("/webhook", deleteWebhook)
}

func getWebhook(c echo.Context) error {
	fw := getForwarder()
	if fw == nil {
		return fail(c, http.StatusServiceUnavailable, "WEBHOOK_NOT_INITIALIZED", "Webhook forwarder not initialized", nil)
	}
	url := fw.URL()
	return ok(c, map[string]interface{}{"url": url, "enabled": url != ""})
}

// postWebhook sets the target URL. Request JSON: { "url": "https://..." },
// an empty url disables forwarding.
func postWebhook(c echo.Context) error {
	fw := getForwarder()
	if fw == nil {
		return fail(c, http.StatusServiceUnavailable, "WEBHOOK_NOT_INITIALIZED", "Webhook forwarder not initialized", nil)
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if err := fw.SetURL(payload.URL); err != nil {
		if errors.Is(err, webhook.ErrInvalidURL) {
			return fail(c, http.StatusBadRequest, "INVALID_URL", "Webhook url must be an absolute http(s) url", nil)
		}
		return fail(c, http.StatusInternalServerError, "SAVE_FAILED", "Failed to save webhook url", err.Error())
	}
	url := fw.URL()
	return ok(c, map[string]interface{}{"url": url, "enabled": url != ""})
}

func deleteWebhook(c echo.Context) error {
	fw := getForwarder()
	if fw == nil {
		return fail(c, http.StatusServiceUnavailable, "WEBHOOK_NOT_INITIALIZED", "Webhook forwarder not initialized", nil)
	}
	if err := fw.SetURL(""); err != nil {
		return fail(c, http.StatusInternalServerError, "SAVE_FAILED", "Failed to save webhook url", err.Error())
	}
	return ok(c, map[string]interface{}{"url": "", "enabled": false})
}
