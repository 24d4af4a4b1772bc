package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/redpencilio/virus-scanner-service/internal/clamav"
	"github.com/redpencilio/virus-scanner-service/internal/config"
	"github.com/redpencilio/virus-scanner-service/internal/delta"
	"github.com/redpencilio/virus-scanner-service/internal/files"
	"github.com/redpencilio/virus-scanner-service/internal/logging"
	"github.com/redpencilio/virus-scanner-service/internal/natsctx"
	"github.com/redpencilio/virus-scanner-service/internal/otelinit"
	"github.com/redpencilio/virus-scanner-service/internal/rdf"
	"github.com/redpencilio/virus-scanner-service/internal/records"
	"github.com/redpencilio/virus-scanner-service/internal/scan"
	"github.com/redpencilio/virus-scanner-service/internal/server"
	"github.com/redpencilio/virus-scanner-service/internal/sparql"
)

func main() {
	service := "virus-scanner"
	logging.Init(service)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics := otelinit.InitMetrics(ctx, service)

	cfg := config.FromEnv()
	store := sparql.New(cfg.SPARQLQueryEndpoint, cfg.SPARQLUpdateEndpoint, cfg.StoreTimeout, cfg.RetryAttempts, cfg.RetryDelay)
	resolver := files.NewResolver(store, cfg.FileScheme, cfg.MountRoot)
	engine := clamav.New(cfg.ClamdAddr, cfg.ClamdTimeout, cfg.ClamdPoolSize)
	defer engine.Close()
	recordStore := records.NewStore(store)

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(service), nats.MaxReconnects(-1))
		if err != nil {
			slog.Error("nats connect failed, delta subscription disabled", "url", cfg.NATSURL, "error", err)
			nc = nil
		}
	}
	var alert scan.AlertFunc
	if nc != nil {
		alert = func(ctx context.Context, res scan.FileResult) {
			payload, _ := json.Marshal(map[string]any{
				"file":       res.URI,
				"path":       res.Path,
				"signatures": res.Signatures,
				"detectedAt": time.Now().UTC(),
			})
			if err := natsctx.Publish(ctx, nc, cfg.AlertSubject, payload); err != nil {
				slog.Warn("publishing infection alert failed", "file", res.URI, "error", err)
			}
		}
	}

	trigger := delta.TriggerPattern{Predicate: rdf.Type, Object: rdf.FileDataObject}
	batchCfg := scan.BatchConfig{Trigger: trigger, Alert: alert}
	if cfg.PersistBatchResults {
		batchCfg.Store = recordStore
	}
	batch := scan.NewBatch(resolver, engine, batchCfg)
	single := scan.NewSingle(resolver, engine, recordStore, alert)

	if nc != nil {
		sub, err := natsctx.Subscribe(nc, cfg.DeltaSubject, func(ctx context.Context, m *nats.Msg) {
			changes, err := delta.Decode(bytes.NewReader(m.Data))
			if err != nil {
				slog.Warn("dropping delta message", "subject", m.Subject, "error", err)
				return
			}
			batch.HandleChanges(ctx, changes)
		})
		if err != nil {
			slog.Error("delta subscription failed", "subject", cfg.DeltaSubject, "error", err)
		} else {
			slog.Info("subscribed to delta subject", "subject", cfg.DeltaSubject)
			defer func() { _ = sub.Unsubscribe() }()
		}
	}

	web := server.New(server.Config{
		LogIncomingDelta:  cfg.LogIncomingDelta,
		LogScanRequests:   cfg.LogScanRequests,
		MaxDeltaBodyBytes: cfg.MaxDeltaBodyBytes,
	}, batch, single)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: web.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// engine liveness loop
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, c := context.WithTimeout(ctx, 5*time.Second)
				if err := engine.Ping(pingCtx); err != nil {
					slog.Warn("scan engine not responding", "error", err)
				}
				c()
			}
		}
	}()

	slog.Info("service started", "addr", cfg.ListenAddr, "mount", cfg.MountRoot, "scheme", cfg.FileScheme)
	<-ctx.Done()
	slog.Info("shutdown initiated")
	ctxSd, c2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer c2()
	_ = srv.Shutdown(ctxSd)
	if nc != nil {
		nc.Close()
	}
	otelinit.Flush(ctxSd, shutdownTrace)
	_ = shutdownMetrics(ctxSd)
	slog.Info("shutdown complete")
}
