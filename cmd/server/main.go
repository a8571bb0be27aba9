package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deliblab/deliblab/internal/api"
	"github.com/deliblab/deliblab/internal/cloud"
	"github.com/deliblab/deliblab/internal/config"
	"github.com/deliblab/deliblab/internal/llm"
	"github.com/deliblab/deliblab/internal/logger"
	"github.com/deliblab/deliblab/internal/middleware"
	"github.com/deliblab/deliblab/internal/utils"
)

func main() {
	os.Exit(serve(os.Args[1:]))
}

// serve returns the process exit code once its deferred flushes have run.
func serve(args []string) int {
	_ = godotenv.Load()
	cfg, err := config.Load(utils.SafeEnv("DELIBLAB_CONFIG", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	log := logger.New(cfg.Logging.File, cfg.Logging.Production)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 && args[0] == "migrate" {
		if err := migrateLegacy(ctx, cfg, log); err != nil {
			log.Error("main", "migration failed", map[string]any{"error": err})
			return 1
		}
		return 0
	}
	if err := run(ctx, cfg, log); err != nil {
		log.Error("main", "server stopped", map[string]any{"error": err})
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	commit := os.Getenv("DELIBLAB_COMMIT")
	buildTime := os.Getenv("DELIBLAB_BUILD_TIME")

	store, closeStore, err := api.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	opts := api.Options{
		Store:    store,
		Logger:   log,
		Auth:     middleware.NewAuthenticator(cfg.Auth.JWTSecret),
		TokenTTL: cfg.GetTokenTTL(),
	}
	if client, err := llm.New(ctx, cfg.LLMOptions()); err != nil {
		log.Warn("main", "llm disabled", map[string]any{"error": err})
	} else {
		opts.LLM = client
		opts.Embedder = llm.NewCachedEmbedder(client, cfg.GetCacheTTL())
	}
	if cfg.Drive.AccessToken != "" {
		opts.Sheets = cloud.NewSheetsClient(cloud.NewHTTPClient(ctx, cfg.Drive.AccessToken, 0), "")
	}

	if every := cfg.GetRefreshInterval(); every > 0 {
		go refreshLoop(ctx, store, every, log)
	}

	mux := http.NewServeMux()
	api.NewRouter(opts).Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "deliblab",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	handler := middleware.Chain(mux,
		middleware.AccessLog(log),
		middleware.SecureHeaders,
		middleware.CORS(cfg.CORSOrigins),
		middleware.LocaleMiddleware,
		middleware.NoStore,
	)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("main", "listening", map[string]any{"addr": cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("main", "shutting down", nil)
	return srv.Shutdown(shutdownCtx)
}

// refreshLoop re-reads persisted state so edits made by labctl or another replica show up.
func refreshLoop(ctx context.Context, store *api.MemoryStore, every time.Duration, log logger.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := store.Refresh(ctx); err != nil {
				log.Warn("main", "refresh failed", map[string]any{"error": err})
			}
		}
	}
}
