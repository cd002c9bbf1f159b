package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/charla-ai/charla/pkg/store"
)

// Options control the HTTP server.
type Options struct {
	Addr string
}

// Server owns the HTTP surface: the websocket chat endpoint, the read API
// and the server lifecycle.
type Server struct {
	opts     Options
	echo     *echo.Echo
	httpSrv  *http.Server
	hub      *Hub
	svc      Services
	store    store.Store
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

// NewServer wires routes onto an echo instance and prepares the HTTP server.
func NewServer(ctx context.Context, opts Options, st store.Store, svc Services) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	s := &Server{
		opts:  opts,
		echo:  echo.New(),
		hub:   NewHub(),
		svc:   svc,
		store: st,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		baseCtx: ctx,
	}
	s.registerRoutes()

	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Hub exposes the broadcast group.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/ws/chat", s.handleWS)
	s.registerReadAPI()
}

// handleWS upgrades the connection and runs the read loop. Pipeline work
// happens on the session's worker goroutine, keeping this loop free for
// control frames.
func (s *Server) handleWS(c *echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	sess := NewSession(s.baseCtx, conn, s.hub, s.svc)
	go func() {
		defer sess.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("websocket read ended")
				}
				return
			}
			sess.Handle(data)
		}
	}()
	return nil
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then notifies connected clients and
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info().Str("addr", s.opts.Addr).Msg("charla gateway listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down gateway")
		s.hub.Broadcast(OutboundFrame{Type: FrameStatus, Message: "Server shutting down."})
		s.hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Wrap(s.httpSrv.Shutdown(shutdownCtx), "http shutdown")
	})

	return eg.Wait()
}
