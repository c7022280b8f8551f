package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/webserver"
)

func registerSessionRoutes() {
	webserver.ApiGET("/session", getSession)
}

// getSession reports whether an archive is stored for the configured session.
func getSession(c echo.Context) error {
	appCtx := GetAppContext(c)
	if appCtx == nil || appCtx.Sessions() == nil {
		return fail(c, http.StatusServiceUnavailable, "STORE_NOT_INITIALIZED", "Session store not initialized", nil)
	}
	name := appCtx.Config().Session.Name
	exists, err := appCtx.Sessions().Exists(c.Request().Context(), name)
	if err != nil {
		return fail(c, http.StatusServiceUnavailable, "STORE_ERROR", "Session store unavailable", err.Error())
	}
	return ok(c, map[string]interface{}{
		"session": name,
		"backend": appCtx.Config().Session.Store,
		"exists":  exists,
	})
}
