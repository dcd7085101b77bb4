package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urisubmit/urisubmit/internal/api"
	"github.com/urisubmit/urisubmit/internal/config"
	"github.com/urisubmit/urisubmit/internal/metrics"
	"github.com/urisubmit/urisubmit/internal/status"
	storepkg "github.com/urisubmit/urisubmit/internal/store"
	"github.com/urisubmit/urisubmit/internal/store/composite"
	"github.com/urisubmit/urisubmit/internal/store/jsonl"
	"github.com/urisubmit/urisubmit/internal/store/sqlite"
	"github.com/urisubmit/urisubmit/internal/submit"
	"github.com/urisubmit/urisubmit/internal/webrisk"
)

type Server struct {
	httpLn     net.Listener
	httpServer *http.Server
	store      *composite.Store
	logger     *slog.Logger
}

// New opens the stores and binds the HTTP listener. Callers must Close the
// returned server.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logger := slog.Default()

	store, db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	metricsCollector := metrics.New()
	client := webrisk.NewClient(cfg.WebRisk.BaseURL, config.Duration(cfg.WebRisk.Timeout))
	tokens := &webrisk.ServiceAccountTokens{Scopes: cfg.WebRisk.Scopes}
	keyFile := &webrisk.KeyFile{Path: cfg.WebRisk.KeyPath, Provider: tokens}

	submitter := submit.NewService(client, tokens, store, metricsCollector, logger.With("component", "submit"))
	aggregator := status.New(store, client, keyFile, cfg.Status.Concurrency, metricsCollector, logger.With("component", "status"))

	app := api.NewApp(cfg, submitter, aggregator, store, metricsCollector, logger.With("component", "api"))
	if db != nil {
		app.OperationCount = func() int {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := db.Count(ctx)
			if err != nil {
				return 0
			}
			return n
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTP.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}

	return &Server{
		httpLn: ln,
		httpServer: &http.Server{
			Handler:           app.Router(),
			ReadTimeout:       config.Duration(cfg.Server.HTTP.ReadTimeout),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.Duration(cfg.Server.HTTP.WriteTimeout),
		},
		store:  store,
		logger: logger,
	}, nil
}

// OpenStore builds the dual-write store from the storage section. The sqlite
// store is also returned on its own (nil when not configured) for callers that
// need its extra queries.
func OpenStore(cfg *config.Config) (*composite.Store, *sqlite.Store, error) {
	var (
		ops storepkg.OperationStore
		log storepkg.NameLog
		db  *sqlite.Store
	)
	if cfg.Storage.SQLitePath != "" {
		var err error
		db, err = sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		ops = db
	}
	if cfg.Storage.LogPath != "" {
		l, err := jsonl.New(cfg.Storage.LogPath, cfg.Storage.Rotation.MaxSizeMB, cfg.Storage.Rotation.MaxBackups)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, nil, err
		}
		log = l
	}
	return composite.New(ops, log), db, nil
}

func (s *Server) Addr() string {
	if s == nil || s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("server listening", "addr", s.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

func (s *Server) Close() error {
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	return nil
}
