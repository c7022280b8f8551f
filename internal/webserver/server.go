package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/talkincode/wagate/internal/app"
	"go.uber.org/zap"
)

// AppContextKey is the echo context key holding the app.AppContext.
const AppContextKey = "appctx"

const apiPrefix = "/api/v1"

type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
	root    bool
}

var (
	routesMu sync.Mutex
	routes   []route
)

func addRoute(r route) {
	routesMu.Lock()
	defer routesMu.Unlock()
	routes = append(routes, r)
}

// ApiGET registers a GET handler under /api/v1.
func ApiGET(path string, h echo.HandlerFunc) { addRoute(route{http.MethodGet, path, h, false}) }

// ApiPOST registers a POST handler under /api/v1.
func ApiPOST(path string, h echo.HandlerFunc) { addRoute(route{http.MethodPost, path, h, false}) }

func ApiDELETE(path string, h echo.HandlerFunc) { addRoute(route{http.MethodDelete, path, h, false}) }

// RootGET registers an unauthenticated GET handler outside /api/v1.
func RootGET(path string, h echo.HandlerFunc) { addRoute(route{http.MethodGet, path, h, true}) }

// the prometheus collectors live in the default registry and can only be
// registered once per process
var metricsMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("wagate")
})

type AdminServer struct {
	root   *echo.Echo
	api    *echo.Group
	appCtx app.AppContext
}

func NewAdminServer(appCtx app.AppContext) *AdminServer {
	cfg := appCtx.Config()
	s := &AdminServer{root: echo.New(), appCtx: appCtx}
	s.root.HideBanner = true
	s.root.HidePort = true

	s.root.Use(middleware.Recover())
	s.root.Use(requestLogger())
	s.root.Use(metricsMiddleware())
	s.root.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})
	s.root.GET("/metrics", echoprometheus.NewHandler())

	s.api = s.root.Group(apiPrefix)
	if cfg.Web.JwtSecret != "" {
		s.api.Use(echojwt.WithConfig(echojwt.Config{
			SigningKey: []byte(cfg.Web.JwtSecret),
		}))
	}

	routesMu.Lock()
	for _, r := range routes {
		if r.root {
			s.root.Add(r.method, r.path, r.handler)
		} else {
			s.api.Add(r.method, r.path, r.handler)
		}
	}
	routesMu.Unlock()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *AdminServer) Handler() http.Handler {
	return s.root
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *AdminServer) Start(ctx context.Context) error {
	cfg := s.appCtx.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("admin api listening", zap.String("addr", addr))
		errCh <- s.root.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.root.Shutdown(shutdownCtx)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				zap.L().Warn("http request", fields...)
				return nil
			}
			zap.L().Debug("http request", fields...)
			return nil
		},
	})
}
