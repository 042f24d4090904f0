package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	relaymw "github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/websocket"
	"github.com/nfrund/relay/web"
)

// ReservedPrefix namespaces the relay's own endpoints. Websocket clients cannot
// use those exact paths as topic keys.
const ReservedPrefix = "/_relay"

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET(ReservedPrefix+"/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.E.FileFS(ReservedPrefix+"/client.js", web.ClientScript, web.FS)
	if s.stats != nil {
		s.E.GET(ReservedPrefix+"/stats", s.stats.Handler)
	}

	// Every other path is a topic key for websocket clients and a file path for
	// everyone else.
	rateLimiter := relaymw.RateLimiter(s.opts.ConnectRate, s.opts.ConnectBurst, func(c echo.Context) bool {
		return !websocket.IsUpgrade(c.Request())
	})
	s.E.Any("/*", s.dispatch, rateLimiter)
}

func (s *Server) dispatch(c echo.Context) error {
	req := c.Request()
	if websocket.IsUpgrade(req) && s.ws != nil {
		return s.ws.Handle(c)
	}
	if s.static == nil {
		return echo.ErrNotFound
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return echo.ErrMethodNotAllowed
	}
	return s.static(c)
}
