// Package app wires invitation campaign storage, dispatch, and the sweep
// loop into a runnable service.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/surveycast/internal/services/invitations/domain"
	"github.com/louisbranch/surveycast/internal/services/invitations/mail"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage/sqlite"
	"github.com/louisbranch/surveycast/internal/services/invitations/token"
)

// RuntimeConfig controls invitations startup, dependencies, and sweep
// behavior.
type RuntimeConfig struct {
	Port           int
	DBPath         string
	BaseURL        string
	Concurrency    int
	MaxAttempts    int
	SweepInterval  time.Duration
	SweepBatchSize int
	SweepPacing    time.Duration
}

const (
	defaultInvitationsPort = 8091
	defaultInvitationsDB   = "data/invitations.db"
	defaultSweepInterval   = 15 * time.Minute
)

// Run starts invitations runtime dependencies and the periodic sweep loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("base url is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultInvitationsPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultInvitationsDB
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create invitations storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open invitations sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close invitations sqlite store: %v", closeErr)
		}
	}()

	tokenConfig, err := token.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load access token config: %w", err)
	}
	tokenIssuer, err := token.NewIssuer(tokenConfig)
	if err != nil {
		return fmt.Errorf("build access token issuer: %w", err)
	}

	sender, err := buildSender()
	if err != nil {
		return err
	}

	hub := NewEventHub()
	engine := NewEngine(store, EngineConfig{
		BaseURL:        cfg.BaseURL,
		Concurrency:    cfg.Concurrency,
		MaxAttempts:    cfg.MaxAttempts,
		SweepBatchSize: cfg.SweepBatchSize,
		SweepPacing:    cfg.SweepPacing,
	}, sender, tokenIssuer, hub, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on invitations port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("invitations.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("invitations server listening at %v", listener.Addr())
	return runSweepLoop(ctx, engine.Sweep, cfg.SweepInterval)
}

// runSweepLoop reprocesses due invitations on a fixed interval until the
// context is canceled.
func runSweepLoop(ctx context.Context, sweep *domain.Sweep, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := sweep.Run(ctx, domain.SweepOptions{})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("sweep run: %v", err)
				continue
			}
			if report.TotalProcessed > 0 {
				log.Printf("sweep run: processed=%d sent=%d failed=%d abandoned=%d",
					report.TotalProcessed, report.SentCount, report.FailedCount, report.AbandonedCount)
			}
		}
	}
}

// buildSender picks the SMTP transport when configured and falls back to the
// dry-run log sender.
func buildSender() (domain.Sender, error) {
	smtpConfig, err := mail.LoadSMTPConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}
	if smtpConfig.Configured() {
		sender, err := mail.NewSMTPSender(smtpConfig)
		if err != nil {
			return nil, fmt.Errorf("build smtp sender: %w", err)
		}
		return sender, nil
	}
	log.Printf("smtp host not configured; invitation mail will be logged only")
	return mail.NewLogSender(nil), nil
}

// EngineConfig tunes the assembled campaign engine.
type EngineConfig struct {
	BaseURL        string
	Concurrency    int
	MaxAttempts    int
	SweepBatchSize int
	SweepPacing    time.Duration
}

// Engine bundles the domain service, dispatcher, and sweep wired against one
// SQLite store.
type Engine struct {
	Service    *domain.Service
	Dispatcher *domain.Dispatcher
	Sweep      *domain.Sweep
	Hub        *EventHub
}

// NewEngine assembles the campaign engine on top of a SQLite store. hub and
// clock may be nil.
func NewEngine(store *sqlite.Store, cfg EngineConfig, sender domain.Sender, tokens domain.TokenIssuer, hub *EventHub, clock func() time.Time) *Engine {
	ledgerStore := newDomainStoreAdapter(store)
	directory := newDirectoryAdapter(store)
	surveys := newSurveyCatalogAdapter(store)
	responses := newResponseIndexAdapter(store)

	var publish func(domain.Event)
	if hub != nil {
		publish = hub.Publish
	}

	service := domain.NewService(ledgerStore, directory, surveys, clock)
	dispatcher := domain.NewDispatcher(ledgerStore, directory, surveys, responses, sender, tokens, domain.DispatcherConfig{
		BaseURL:     cfg.BaseURL,
		Concurrency: cfg.Concurrency,
		MaxAttempts: cfg.MaxAttempts,
	}, publish, clock)
	service.AttachDispatcher(dispatcher)
	sweep := domain.NewSweep(ledgerStore, sender, tokens, domain.SweepConfig{
		BaseURL:     cfg.BaseURL,
		BatchSize:   cfg.SweepBatchSize,
		Pacing:      cfg.SweepPacing,
		MaxAttempts: cfg.MaxAttempts,
	}, publish, clock)

	return &Engine{
		Service:    service,
		Dispatcher: dispatcher,
		Sweep:      sweep,
		Hub:        hub,
	}
}
