package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/errors"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/config"
	"github.com/krisalay/menu-cache/coordinator"
	"github.com/krisalay/menu-cache/edge"
	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/persist"
	"github.com/krisalay/menu-cache/retryqueue"
	"github.com/krisalay/menu-cache/types"
)

// ================= MAIN =================

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		dir, name := splitPath(*configPath)
		loaded, err := config.Load(osfs.New(dir), name)
		if err != nil {
			slog.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("menuedge stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	upstream := cfg.Edge.UpstreamURL()

	// ---------------- Persistent Storage ----------------
	storage, err := persist.NewStorage(osfs.New(cfg.Edge.StorageDir), ".")
	if err != nil {
		return err
	}

	queueDir, queueName := splitPath(cfg.Edge.QueueFile)
	queue, err := retryqueue.NewFileQueue(osfs.New(queueDir), queueName)
	if err != nil {
		return err
	}
	recorder := retryqueue.NewRecorder(queue, cfg.Edge.SyncBuffer, logger)
	defer recorder.Close()

	// ---------------- Edge Worker ----------------
	rules, err := cfg.Edge.Rules()
	if err != nil {
		return err
	}

	worker, err := edge.New(
		retryqueue.NewTransport(http.DefaultTransport, recorder),
		storage,
		edge.WithRules(rules),
		edge.WithGeneration(cfg.Edge.Generation()),
		edge.WithOrigin(upstream),
		edge.WithQueue(queue),
		edge.WithReplayTransport(http.DefaultTransport),
		edge.WithLogger(logger.With(slog.String("component", "edge"))),
		edge.WithNotificationIcons(cfg.Edge.NotificationIcon, cfg.Edge.NotificationBadge),
	)
	if err != nil {
		return err
	}

	if _, err := worker.Dispatch(ctx, edge.Install{}); err != nil {
		logger.Warn("install incomplete, static cache starts cold", slog.String("error", err.Error()))
	}
	if _, err := worker.Dispatch(ctx, edge.Activate{}); err != nil {
		return err
	}

	// ---------------- In-Process Caches ----------------
	counters := &types.Counters{}
	eng := engine.NewCacheEngine(
		engine.WithMetrics(counters),
		engine.WithLogger(logger.With(slog.String("component", "cache"))),
	)
	domains := cache.NewDomainCaches(cfg.Cache.Domains(), eng)

	coord := coordinator.New[any](domains.Menu,
		coordinator.WithLogger(logger.With(slog.String("component", "coordinator"))),
		coordinator.WithMetrics(counters),
		coordinator.WithPreloadTimeout(cfg.Coordinator.PreloadTimeout),
		coordinator.WithPreloadConcurrency(cfg.Coordinator.PreloadConcurrency),
	)

	client := &http.Client{Transport: worker, Timeout: 30 * time.Second}
	fetchers := make(map[string]types.Fetcher[any], len(cfg.Coordinator.Preload))
	for key, p := range cfg.Coordinator.Preload {
		ref, err := url.Parse(p)
		if err != nil {
			return err
		}
		fetchers[key] = coordinator.JSONFetcher[any](client, upstream.ResolveReference(ref).String())
	}
	go coord.PreloadAll(ctx, fetchers)

	if cfg.Cache.SweepInterval > 0 {
		go domains.StartSweeper(ctx, cfg.Cache.SweepInterval)
	}

	// ---------------- Background Sync ----------------
	go func() {
		ticker := time.NewTicker(cfg.Edge.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := worker.Dispatch(ctx, edge.Sync{Tag: edge.SyncTag}); err != nil {
					logger.Warn("background sync failed", slog.String("error", err.Error()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// ---------------- HTTP Server ----------------
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		Transport: worker,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("upstream unavailable",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/", proxy)
	mux.HandleFunc("POST /_edge/message", func(w http.ResponseWriter, r *http.Request) {
		msg, _ := io.ReadAll(io.LimitReader(r.Body, 256))
		_, err := worker.Dispatch(r.Context(), edge.Message{Type: string(msg)})
		reply(w, err, nil)
	})
	mux.HandleFunc("POST /_edge/push", func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		_, err := worker.Dispatch(r.Context(), edge.Push{Payload: payload})
		reply(w, err, nil)
	})
	mux.HandleFunc("POST /_edge/notification-click", func(w http.ResponseWriter, r *http.Request) {
		_, err := worker.Dispatch(r.Context(), edge.NotificationClick{Action: r.URL.Query().Get("action")})
		reply(w, err, nil)
	})
	mux.HandleFunc("POST /_edge/sync", func(w http.ResponseWriter, r *http.Request) {
		report, err := worker.Sync(r.Context(), edge.SyncTag)
		reply(w, err, report)
	})
	mux.HandleFunc("GET /_edge/data/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		fetch, ok := fetchers[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		v, err := coord.Resolve(r.Context(), key, fetch)
		reply(w, err, v)
	})
	mux.HandleFunc("GET /_edge/stats", func(w http.ResponseWriter, r *http.Request) {
		reply(w, nil, map[string]any{
			"caches":   domains.Stats(),
			"counters": counters.Snapshot(),
			"state":    worker.State().String(),
		})
	})

	srv := &http.Server{
		Addr:              cfg.Edge.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("menuedge listening",
			slog.String("addr", cfg.Edge.Listen),
			slog.String("upstream", upstream.String()),
			slog.String("generation", cfg.Edge.Generation().Static()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// ---------------- Shutdown ----------------
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// splitPath splits p into the directory a filesystem is rooted at and the
// file name inside it.
func splitPath(p string) (string, string) {
	dir, name := filepath.Split(p)
	if dir == "" {
		dir = "."
	}
	return dir, name
}

func reply(w http.ResponseWriter, err error, body any) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if body == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
