package httpapp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/buildhive/aws-connections/internal/config"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/hostapi"
	"github.com/buildhive/aws-connections/internal/http/handlers"
	"github.com/google/uuid"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h        *handlers.Handlers
	e        *echo.Echo
	sessions *scs.SessionManager
	srv      *http.Server
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, client *hostapi.Client, enc connection.Encryptor, sessions *scs.SessionManager) (*EchoServer, error) {
	h := &handlers.Handlers{
		Cfg:       cfg,
		Client:    client,
		Encryptor: enc,
		Sessions:  sessions,
		Forms:     handlers.NewFormRegistry(),
	}
	es := &EchoServer{h: h, e: echo.New(), sessions: sessions}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.registerRoutes()
	return es, nil
}

// httpErrorHandler keeps error details out of responses. Internal errors
// render the generic reference message, everything else gets the bare
// status text.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if resp, _ := echo.UnwrapResponse(c.Response()); resp != nil && resp.Committed {
		return
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code != http.StatusInternalServerError {
		if httpErr.Code == http.StatusNotFound {
			_ = handlers.RenderNotFound(c)
			return
		}
		_ = c.String(httpErr.Code, http.StatusText(httpErr.Code))
		return
	}
	_ = es.h.RenderError(c, err)
}

func (es *EchoServer) registerRoutes() {
	es.e.Use(requestID())
	es.e.GET("/healthz", es.h.HandleHealthz)

	app := es.e.Group("")
	if es.sessions != nil {
		app.Use(echo.WrapMiddleware(es.sessions.LoadAndSave))
	}
	app.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + echo.HeaderXCSRFToken + ",form:csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   es.h.Cfg.SessionCookieSecure,
		CookieSameSite: http.SameSiteLaxMode,
	}))
	app.GET("/", es.h.HandleIndex)
	app.GET("/projects/:projectId/connections/new", es.h.HandleConnectionNew)
	app.GET("/projects/:projectId/connections/:connectionId", es.h.HandleConnectionEdit)
	app.POST("/connections/save", es.h.HandleConnectionSave)
	app.POST("/connections/test", es.h.HandleConnectionTest)
	app.POST("/connections/rotate", es.h.HandleConnectionRotate)
	app.GET("/connections/data", es.h.HandleSelectorData)
	app.GET("/projects/:projectId/telemetry", es.h.HandleTelemetryGet)
	app.POST("/telemetry/save", es.h.HandleTelemetrySave)
	app.POST("/telemetry/test", es.h.HandleTelemetryTest)

	es.e.Static("/static", "web/static")
}

// requestID tags every request for the error references in RenderError.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(handlers.ContextKeyRequestID, id)
			c.Response().Header().Set("X-Request-ID", id)
			return next(c)
		}
	}
}

// Handler exposes the routed handler, mainly for tests.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// Start starts the HTTP server.
func (es *EchoServer) Start(addr string) error {
	return es.StartServer(&http.Server{Addr: addr, ReadHeaderTimeout: 5 * time.Second})
}

// StartServer starts the HTTP server with a custom http.Server.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.srv = server
	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.srv == nil {
		return nil
	}
	return es.srv.Shutdown(ctx)
}
