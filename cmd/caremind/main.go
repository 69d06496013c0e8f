package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seedhantkalra/caremind/internal/auth"
	"github.com/seedhantkalra/caremind/internal/brain"
	"github.com/seedhantkalra/caremind/internal/chat"
	"github.com/seedhantkalra/caremind/internal/config"
	"github.com/seedhantkalra/caremind/internal/httpapi"
	"github.com/seedhantkalra/caremind/internal/memory"
	"github.com/seedhantkalra/caremind/internal/observability"
	"github.com/seedhantkalra/caremind/internal/privacy"
	"github.com/seedhantkalra/caremind/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	codec, err := privacy.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("privacy codec init failed: %v", err)
	}
	if cfg.EncryptionSecret == "" {
		log.Printf("ENCRYPTION_SECRET not set: stored memory fields are not encrypted")
	}

	ctx := context.Background()
	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, codec)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer memoryStore.Close()

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:      cfg.BrainMode,
		HTTPURL:   cfg.BrainHTTPURL,
		APIKey:    cfg.BrainAPIKey,
		Model:     cfg.BrainModel,
		MaxTokens: cfg.BrainMaxTokens,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}

	var anchor auth.TrustAnchor
	if cfg.AuthKeySetPath != "" {
		ks, err := auth.NewKeySetAnchorFromFile(cfg.AuthKeySetPath)
		if err != nil {
			log.Fatalf("trust anchor init failed: %v", err)
		}
		anchor = ks
		log.Printf("trust anchor: key set from %s", cfg.AuthKeySetPath)
	} else {
		ss, err := auth.NewSharedSecretAnchor(cfg.AuthSharedSecret)
		if err != nil {
			log.Fatalf("trust anchor init failed: %v", err)
		}
		anchor = ss
		log.Printf("trust anchor: shared secret")
	}
	verifier := auth.NewVerifier(anchor)

	sessions := session.NewManager(cfg.SessionBufferSize, cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	service := chat.NewService(sessions, memoryStore, adapter, metrics, cfg.RecallLimit)

	api := httpapi.New(cfg, verifier, service, sessions, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)
	memory.StartSweeper(runCtx, memoryStore, cfg.MemorySweepInterval, cfg.MemoryRetention, func(removed int) {
		metrics.InsightEvents.WithLabelValues("swept").Add(float64(removed))
	})

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
