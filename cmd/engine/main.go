package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"

	"locascan-engine/internal/config"
	"locascan-engine/internal/events"
	"locascan-engine/internal/httpapi"
	"locascan-engine/internal/scheduler"
	"locascan-engine/internal/scrape"
	"locascan-engine/internal/scrape/cartecoloc"
	"locascan-engine/internal/scrape/espacil"
	"locascan-engine/internal/scrape/leboncoin"
	"locascan-engine/internal/scrape/seloger"
	"locascan-engine/internal/scrape/studapart"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/scrape/util"
	"locascan-engine/internal/store"
)

func main() {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fatal("create data dir", err)
	}

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		fatal("config bootstrap", err)
	}

	cfg, err := config.Load(userCfgPath)
	if err != nil {
		fatal("config load", err)
	}
	config.ApplyEnv(&cfg)

	searchOverrides := make(map[string]config.Search)
	if err := config.OverlaySearches(&cfg, searchOverrides, filepath.Join(dataDir, "searches.yml")); err != nil {
		fatal("searches overlay", err)
	}

	cfg, validation := config.NormalizeAndValidate(cfg)

	log := newLogger(cfg.App.LogLevel)
	slog.SetDefault(log)

	for _, w := range validation.Warnings {
		log.Warn("config warning", "detail", w)
	}
	if !validation.OK() {
		for _, e := range validation.Errors {
			log.Error("config error", "detail", e)
		}
		os.Exit(1)
	}

	// One engine per data dir; a second instance would double-scrape and
	// fight over the same rows.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fatal("instance lock", err)
	}
	if !locked {
		log.Error("another engine instance holds the lock", "data_dir", dataDir)
		os.Exit(1)
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		fatal("database open", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		fatal("database migrate", err)
	}

	hub := events.NewHub()

	clientCfg := types.ClientConfig{
		UserAgent:     cfg.Client.UserAgent,
		Timeout:       time.Duration(cfg.Client.TimeoutSeconds) * time.Second,
		RetryAttempts: cfg.Client.RetryAttempts,
		Limiter:       util.NewHostLimiter(cfg.Client.RatePerHost, cfg.Client.RateBurst),
	}.WithDefaults()

	manager := scrape.NewManager(db, hub, log, buildSources(cfg, clientCfg, log)...)
	log.Info("sources registered", "sources", manager.Sources())

	staleAge := time.Duration(cfg.Scheduler.StaleAfterDays) * 24 * time.Hour
	sched := scheduler.New(manager, db, hub, log, staleAge)
	if cfg.Scheduler.Enabled {
		sched.Start(ctx, scheduleJobs(cfg, searchOverrides, manager.Sources()))
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Runner:     manager,
		Listings:   db,
		Scheduler:  sched,
		Hub:        hub,
		Log:        log,
		ConfigPath: userCfgPath,
		Env:        cfg.App.Env,
	})

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("engine listening", "addr", cfg.App.Addr, "env", cfg.App.Env, "scheduler", cfg.Scheduler.Enabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("http server", err)
	}

	sched.Wait()
	log.Info("engine stopped")
}

// buildSources instantiates one adapter per enabled source. An empty sources
// block enables everything.
func buildSources(cfg config.Config, clientCfg types.ClientConfig, log *slog.Logger) []types.Source {
	enabled := func(name string) bool {
		if len(cfg.Sources) == 0 {
			return true
		}
		src, ok := cfg.Sources[name]
		return ok && src.Enabled
	}

	var out []types.Source
	if enabled("leboncoin") {
		out = append(out, leboncoin.New(clientCfg, log))
	}
	if enabled("seloger") {
		out = append(out, seloger.New(clientCfg, cfg.Client.ChromeBin, log))
	}
	if enabled("espacil") {
		out = append(out, espacil.New(clientCfg, log))
	}
	if enabled("studapart") {
		out = append(out, studapart.New(clientCfg, log))
	}
	if enabled("carte_coloc") {
		out = append(out, cartecoloc.New(clientCfg, log))
	}
	return out
}

func scheduleJobs(cfg config.Config, overrides map[string]config.Search, sources []string) []scheduler.Job {
	jobs := make([]scheduler.Job, 0, len(sources))
	for _, name := range sources {
		interval := 60
		if src, ok := cfg.Sources[name]; ok && src.IntervalMinutes > 0 {
			interval = src.IntervalMinutes
		}
		search := cfg.Search
		if s, ok := overrides[name]; ok {
			search = s
		}
		jobs = append(jobs, scheduler.Job{
			Source:   name,
			Interval: time.Duration(interval) * time.Minute,
			Criteria: search.Criteria(),
		})
	}
	return jobs
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

func fatal(what string, err error) {
	slog.Error(what, "error", err)
	os.Exit(1)
}
