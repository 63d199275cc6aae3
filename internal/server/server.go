// Package server wires the domain services behind the HTTP router and runs
// them with the background workers the service needs.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zime-ai/nucleus/internal/api"
	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
	"github.com/zime-ai/nucleus/internal/domain/dealstage"
	"github.com/zime-ai/nucleus/internal/domain/meeting"
	"github.com/zime-ai/nucleus/internal/infra/config"
	"github.com/zime-ai/nucleus/internal/infra/eventbus"
	pkgauth "github.com/zime-ai/nucleus/pkg/auth"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	SweepInterval   time.Duration
}

// DefaultConfig returns default HTTP server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SweepInterval:   5 * time.Minute,
	}
}

// Server owns the HTTP listener, the event bus and its consumers.
type Server struct {
	config Config
	db     *sql.DB
	http   *http.Server
	bus    *eventbus.Bus
	audit  *domainaudit.Service
	deal   *dealstage.Service
	logger *zap.Logger

	auditEvents <-chan eventbus.Event
	domainFeed  []<-chan eventbus.Event
}

// NewServer builds every service from app and mounts them on the router.
// Bus subscriptions are taken here so no event published before Run is lost.
func NewServer(db *sql.DB, app config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := DefaultConfig()
	cfg.Host = app.HTTP.Host
	cfg.Port = app.HTTP.Port

	signer, err := pkgauth.NewSessionSigner(app.Auth.JWTSecret, app.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("session signer: %w", err)
	}
	verifier, err := pkgauth.NewIDTokenVerifier(app.Auth.IDPSecret, app.Auth.IDPIssuer, app.Auth.IDPAudience)
	if err != nil {
		return nil, fmt.Errorf("id token verifier: %w", err)
	}

	bus := eventbus.New()
	auditSvc := domainaudit.NewService(db, logger.Named("audit"))
	gate := domainauth.NewGate(db, signer, app.Auth.AllowedDomain,
		domainauth.WithProvider(domainauth.NewTokenProvider(verifier)),
		domainauth.WithProvider(domainauth.NewPasswordProvider(db)),
		domainauth.WithAudit(auditSvc),
		domainauth.WithLogger(logger.Named("auth")),
	)
	dealSvc := dealstage.NewService(
		dealstage.NewCatalog(db),
		dealstage.SampleStageSource{Delay: app.Deal.StageFetchDelay},
		dealstage.NewMappingStore(db),
		bus,
		logger.Named("dealstage"),
		dealstage.Config{ConfirmDelay: app.Deal.ConfirmDelay, WizardTTL: app.Deal.WizardTTL},
	)

	router := api.NewRouter(api.Deps{
		Gate:      gate,
		Audit:     auditSvc,
		Meetings:  meeting.NewService(db, bus),
		DealStage: dealSvc,
		Logger:    logger.Named("http"),
	})

	return &Server{
		config: cfg,
		db:     db,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		bus:         bus,
		audit:       auditSvc,
		deal:        dealSvc,
		logger:      logger,
		auditEvents: bus.Subscribe(domainaudit.Topic),
		domainFeed: []<-chan eventbus.Event{
			bus.Subscribe(meeting.TopicUpdated),
			bus.Subscribe(dealstage.TopicMappingConfirmed),
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves HTTP and runs the background workers until ctx is cancelled or
// one of them fails. It shuts the listener down and closes the bus on exit.
// The database handle stays open; the caller owns it.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		s.bus.Close()
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.audit.Consume(gctx, s.auditEvents)
		return nil
	})

	for _, feed := range s.domainFeed {
		g.Go(func() error {
			s.logEvents(gctx, feed)
			return nil
		})
	}

	g.Go(func() error {
		s.sweepWizards(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		err := s.http.Shutdown(shutdownCtx)
		s.bus.Close()
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// logEvents writes domain events to the log at debug level.
func (s *Server) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.logger.Debug("domain event", zap.String("topic", evt.Topic), zap.Any("payload", evt.Payload))
		}
	}
}

// sweepWizards evicts idle wizards on every tick.
func (s *Server) sweepWizards(ctx context.Context) {
	if s.config.SweepInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.deal.Store().Sweep(); n > 0 {
				s.logger.Debug("evicted idle wizards", zap.Int("count", n))
			}
		}
	}
}
