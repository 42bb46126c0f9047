package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/trunkline/internal/bridge"
	"github.com/antoniostano/trunkline/internal/config"
	"github.com/antoniostano/trunkline/internal/httpapi"
	"github.com/antoniostano/trunkline/internal/observability"
	"github.com/antoniostano/trunkline/internal/realtime"
	"github.com/antoniostano/trunkline/internal/transcript"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	ctx := context.Background()
	store, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer store.Close()

	if cfg.ModelAPIKey == "" {
		log.Printf("warning: OPENAI_API_KEY is not set; calls will connect but the model leg will stay closed")
	}

	dial := func(dialCtx context.Context, credential string) (bridge.Conn, error) {
		return realtime.Dial(dialCtx, realtime.DialConfig{
			BaseURL: cfg.ModelWSURL,
			Model:   cfg.ModelName,
			APIKey:  credential,
		})
	}

	b := bridge.New(bridge.Config{
		Voice:              cfg.ModelVoice,
		TranscriptionModel: cfg.TranscriptionModel,
		Instructions:       cfg.ModelInstructions,
		Temperature:        cfg.ModelTemperature,
	}, dial, metrics, transcript.NewArchiver(store))

	api := httpapi.New(cfg, b, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

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

	// End the active call, if any, before shutting the listener down.
	b.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
