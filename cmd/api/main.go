package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dossier/api/internal/app"
	"dossier/api/internal/artifact"
	"dossier/api/internal/collector"
	"dossier/api/internal/config"
	"dossier/api/internal/email"
	"dossier/api/internal/ingest"
	"dossier/api/internal/journal"
	"dossier/api/internal/logging"
	"dossier/api/internal/metrics"
	"dossier/api/internal/render"
	"dossier/api/internal/report"
	"dossier/api/internal/search"
	"dossier/api/internal/store"
)

const reindexLimit = 1000

// persistence is the opened report backend plus whatever handles need
// closing on shutdown.
type persistence struct {
	backend store.Persistence
	pinger  app.Pinger
	db      *sql.DB
	close   func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, logFile, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	p, err := openPersistence(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("persistence setup failed")
	}
	defer p.close()

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create journal dir")
	}
	journalService := journal.New(cfg.ReposDir, "dossier", log)
	observers := []store.SaveObserver{journalService}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	var fallback search.Searcher
	if p.db != nil {
		fallback = search.NewPgFTS(p.db)
	}
	var searchService *search.Service
	if meiliClient != nil || fallback != nil {
		searchService = search.NewService(meiliClient, fallback, log)
		defer searchService.Close()
		observers = append(observers, searchService)
	}

	loader := store.NewLoader(p.backend, store.NewCache(),
		store.WithLogger(log),
		store.WithMetrics(m),
		store.WithObservers(observers...),
	)

	transformer, err := ingest.NewTransformer(log)
	if err != nil {
		log.WithError(err).Fatal("ingest schemas failed to compile")
	}

	renderOpts := []render.Option{
		render.WithDisclaimer(cfg.Render.Disclaimer),
		render.WithPDFTimeout(cfg.Render.PDFTimeout),
		render.WithLogger(log),
		render.WithMetrics(m),
	}
	if cfg.Render.Geometry != nil {
		renderOpts = append(renderOpts, render.WithGeometry(*cfg.Render.Geometry))
	}
	renderer, err := render.New(renderOpts...)
	if err != nil {
		log.WithError(err).Fatal("invalid page geometry")
	}

	deps := app.Deps{
		Loader:      loader,
		Transformer: transformer,
		Renderer:    renderer,
		Journal:     journalService,
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}),
		Pinger:         p.pinger,
		Metrics:        m,
		Log:            log,
		RefreshTimeout: cfg.RefreshTimeout,
		MaxViews:       cfg.MaxViews,
	}
	if searchService != nil {
		deps.Search = searchService
	}
	if cfg.Collector.BaseURL != "" {
		deps.Collector = collector.NewClient(collector.Config{
			BaseURL:   cfg.Collector.BaseURL,
			APIKey:    cfg.Collector.APIKey,
			PerMinute: cfg.Collector.PerMinute,
			Burst:     cfg.Collector.Burst,
			Timeout:   cfg.Collector.Timeout,
		}, log)
	} else {
		log.Warn("COLLECTOR_URL not set; section refresh is disabled")
	}
	if cfg.Artifacts.Endpoint != "" {
		artifacts, err := artifact.New(artifact.Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			Region:    cfg.Artifacts.Region,
			UseSSL:    cfg.Artifacts.UseSSL,
		})
		if err != nil {
			log.WithError(err).Fatal("object storage setup failed")
		}
		if err := artifacts.EnsureBucket(ctx); err != nil {
			log.WithError(err).WithField("bucket", cfg.Artifacts.Bucket).Fatal("object storage bucket unavailable")
		}
		deps.Artifacts = artifacts
	}

	service := app.New(deps)
	if meiliClient != nil {
		go reindex(ctx, loader, searchService, log)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", app.NewHTTPServer(service, cfg.CORSOrigin, log).Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Render.PDFTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr, "persistence": cfg.Persistence}).Info("dossier API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}

func openPersistence(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (persistence, error) {
	switch cfg.Persistence {
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return persistence{}, err
		}
		if err := store.ApplyMigrations(ctx, db, migrations(cfg, log)); err != nil {
			_ = db.Close()
			return persistence{}, fmt.Errorf("migrations failed: %w", err)
		}
		return persistence{
			backend: store.NewPostgresStore(db),
			pinger:  app.PingFunc(db.PingContext),
			db:      db,
			close:   func() { _ = db.Close() },
		}, nil
	case "redis":
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return persistence{}, err
		}
		return persistence{
			backend: redisStore,
			pinger:  redisStore,
			close:   func() { _ = redisStore.Close() },
		}, nil
	default:
		log.Warn("using in-memory persistence; reports are lost on restart")
		return persistence{backend: store.NewMemoryStore(), close: func() {}}, nil
	}
}

func migrations(cfg config.Config, log logrus.FieldLogger) fs.FS {
	if cfg.MigrationsDir == "" {
		return store.Migrations()
	}
	log.WithField("dir", cfg.MigrationsDir).Info("applying migrations from disk")
	return os.DirFS(cfg.MigrationsDir)
}

// reindex pushes the stored reports to Meilisearch so an empty or rebuilt
// index catches up with the backend.
func reindex(ctx context.Context, loader *store.Loader, index *search.Service, log logrus.FieldLogger) {
	summaries, err := loader.List(ctx, reindexLimit)
	if err != nil {
		log.WithError(err).Warn("search: reindex listing failed")
		return
	}
	docs := make([]*report.Document, 0, len(summaries))
	for _, summary := range summaries {
		doc, err := loader.Get(ctx, summary.ID)
		if err != nil {
			log.WithError(err).WithField("report_id", summary.ID).Warn("search: reindex skipped report")
			continue
		}
		docs = append(docs, doc)
	}
	index.ReindexAll(docs)
	log.WithField("reports", len(docs)).Info("search: reindex complete")
}
