package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/webserver"
	"gorm.io/gorm"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Code: "SUCCESS", Msg: "ok", Data: data})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, Response{Code: code, Msg: msg, Data: detail})
}

// GetAppContext returns the application context injected by the server.
func GetAppContext(c echo.Context) app.AppContext {
	appCtx, _ := c.Get(webserver.AppContextKey).(app.AppContext)
	return appCtx
}

func GetDB(c echo.Context) *gorm.DB {
	if appCtx := GetAppContext(c); appCtx != nil {
		return appCtx.DB()
	}
	return nil
}
