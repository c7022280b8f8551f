package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/webserver"
	"github.com/talkincode/wagate/internal/whatsapp"
	"go.uber.org/zap"
)

func registerWhatsAppRoutes() {
	webserver.ApiGET("/status", getWhatsAppStatus)
	webserver.ApiGET("/qr", getWhatsAppQR)
	webserver.ApiPOST("/send", postWhatsAppSend)
	webserver.ApiPOST("/logout", postWhatsAppLogout)
}

func getWhatsAppStatus(c echo.Context) error {
	svc := whatsapp.Get()
	if svc == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	resp := map[string]interface{}{
		"session": svc.Session(),
		"state":   svc.State(),
	}
	if appCtx := GetAppContext(c); appCtx != nil {
		resp["store_healthy"] = appCtx.StoreHealthy()
	}
	return ok(c, resp)
}

// getWhatsAppQR returns the pending QR code string, or a PNG rendering of
// it when format=png is requested.
func getWhatsAppQR(c echo.Context) error {
	svc := whatsapp.Get()
	if svc == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	if strings.EqualFold(c.QueryParam("format"), "png") {
		size, _ := strconv.Atoi(c.QueryParam("size"))
		png, err := svc.QRPNG(size)
		if errors.Is(err, whatsapp.ErrNoQR) {
			return fail(c, http.StatusNotFound, "NO_QR", "No QR code pending", nil)
		}
		if err != nil {
			return fail(c, http.StatusInternalServerError, "QR_RENDER_FAILED", "Failed to render QR code", err.Error())
		}
		return c.Blob(http.StatusOK, "image/png", png)
	}
	code := svc.QRCode()
	return ok(c, map[string]interface{}{
		"code":   code,
		"has_qr": code != "",
	})
}

// postWhatsAppSend sends a text message via the running WhatsApp client.
// Request JSON: { "to": "62812xxxx", "text": "hello" }
func postWhatsAppSend(c echo.Context) error {
	svc := whatsapp.Get()
	if svc == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}

	var payload struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.To) == "" || payload.Text == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "to and text are required", nil)
	}
	if _, err := whatsapp.NormalizeJID(payload.To); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_RECIPIENT", "Invalid recipient", err.Error())
	}

	id, err := svc.SendText(c.Request().Context(), payload.To, payload.Text)
	if errors.Is(err, whatsapp.ErrNotReady) {
		return fail(c, http.StatusConflict, "NOT_READY", "WhatsApp client is not ready", string(svc.Status()))
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
	return ok(c, map[string]interface{}{"sent": true, "id": id})
}

func postWhatsAppLogout(c echo.Context) error {
	svc := whatsapp.Get()
	if svc == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	if err := svc.Logout(c.Request().Context()); err != nil {
		if errors.Is(err, whatsapp.ErrNotRunning) {
			return fail(c, http.StatusConflict, "NOT_RUNNING", "WhatsApp client is not running", nil)
		}
		zap.L().Warn("adminapi: logout failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to logout", err.Error())
	}
	zap.L().Info("adminapi: whatsapp logout requested")
	return ok(c, map[string]interface{}{"logged_out": true})
}
