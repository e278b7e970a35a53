package webchat

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/odosui/agora/pkg/config"
	"github.com/odosui/agora/pkg/eventbus"
	"github.com/odosui/agora/pkg/fetch"
	"github.com/odosui/agora/pkg/pipeline"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/odosui/agora/pkg/session"
	"github.com/odosui/agora/pkg/wsmux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Server owns the HTTP listener, the websocket server and the session registry.
type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	ws       *wsmux.Server
	registry *session.Registry
	bus      *eventbus.Bus
}

type serverOptions struct {
	newEngine profiles.EngineFactory
	fetcher   pipeline.Fetcher
}

type Option func(*serverOptions)

// WithEngineFactory replaces the vendor engine constructor.
func WithEngineFactory(f profiles.EngineFactory) Option {
	return func(o *serverOptions) { o.newEngine = f }
}

func WithFetcher(f pipeline.Fetcher) Option {
	return func(o *serverOptions) { o.fetcher = f }
}

func NewServer(cfg *config.Config, store Store, bus *eventbus.Bus, opts ...Option) *Server {
	o := serverOptions{
		newEngine: profiles.NewEngineFactory(cfg.APIKey),
		fetcher:   fetch.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	registry := session.NewRegistry(store, cfg.Profiles, o.newEngine, bus)
	registry.SetEvictionConfig(cfg.Eviction.Idle, cfg.Eviction.Interval)

	ws := wsmux.NewServer(wsmux.WithCheckOrigin(checkOrigin(cfg.ClientOrigin)))
	runner := pipeline.NewRunner(o.fetcher, cfg.Profiles, o.newEngine)
	NewHandlers(registry, store, runner).Register(ws)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	if cfg.ClientOrigin != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.ClientOrigin},
			AllowHeaders: []string{echo.HeaderContentType},
		}))
	}
	NewAPI(store, cfg.Profiles).RegisterRoutes(e)
	e.GET("/ws", echo.WrapHandler(ws))

	return &Server{cfg: cfg, echo: e, ws: ws, registry: registry, bus: bus}
}

// Handler exposes the composed HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Registry() *session.Registry { return s.registry }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.registry.RunEviction(egCtx)
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("component", "webchat").Str("addr", s.cfg.Listen).Msg("starting agora server")
		if err := s.echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "webchat: listen")
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Str("component", "webchat").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.ws.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("component", "webchat").Msg("websocket shutdown incomplete")
		}
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("component", "webchat").Msg("http shutdown error")
		}
		s.registry.Shutdown()
		if err := s.bus.Close(); err != nil {
			log.Error().Err(err).Str("component", "webchat").Msg("event bus close error")
		}
		log.Info().Str("component", "webchat").Msg("server shutdown complete")
		return nil
	})

	return eg.Wait()
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed == "" || origin == allowed || sameHost(r, origin)
	}
}

func sameHost(r *http.Request, origin string) bool {
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Debug()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("component", "http").Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	})
}
