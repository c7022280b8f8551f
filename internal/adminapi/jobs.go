package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/webserver"
)

func registerJobRoutes() {
	webserver.ApiGET("/jobs", listJobs)
	webserver.ApiPOST("/jobs/:name/run", triggerJob)
}

func listJobs(c echo.Context) error {
	appCtx := GetAppContext(c)
	if appCtx == nil {
		return fail(c, http.StatusServiceUnavailable, "APP_NOT_INITIALIZED", "Application not initialized", nil)
	}
	return ok(c, appCtx.Jobs())
}

// triggerJob runs a job immediately, outside its schedule
func triggerJob(c echo.Context) error {
	appCtx := GetAppContext(c)
	if appCtx == nil {
		return fail(c, http.StatusServiceUnavailable, "APP_NOT_INITIALIZED", "Application not initialized", nil)
	}
	if err := appCtx.RunJobNow(c.Param("name")); err != nil {
		if errors.Is(err, app.ErrJobNotFound) {
			return fail(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", c.Param("name"))
		}
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to run job", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
