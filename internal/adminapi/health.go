package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/webserver"
	"github.com/talkincode/wagate/internal/whatsapp"
)

func registerHealthRoutes() {
	webserver.RootGET("/healthz", getHealthz)
}

// getHealthz is the liveness probe; it fails when the session store is down.
func getHealthz(c echo.Context) error {
	appCtx := GetAppContext(c)
	storeOK := appCtx != nil && appCtx.StoreHealthy()
	data := map[string]interface{}{"store": storeOK}
	if svc := whatsapp.Get(); svc != nil {
		data["whatsapp"] = svc.Status()
	}
	if !storeOK {
		return fail(c, http.StatusServiceUnavailable, "UNHEALTHY", "session store unavailable", data)
	}
	return ok(c, data)
}
