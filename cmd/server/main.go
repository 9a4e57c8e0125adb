package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AngelCh415/spend-dashboard/internal/analytics"
	"github.com/AngelCh415/spend-dashboard/internal/config"
	"github.com/AngelCh415/spend-dashboard/internal/httpx"
	"github.com/AngelCh415/spend-dashboard/internal/ingest"
	"github.com/AngelCh415/spend-dashboard/internal/metrics"
	"github.com/AngelCh415/spend-dashboard/internal/store"
	"github.com/AngelCh415/spend-dashboard/internal/utils"
)

func main() {
	cfg, err := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("config error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs := metrics.NewObserver(reg)

	ga := analytics.NewLazySource(func(ctx context.Context) (analytics.Source, error) {
		logger.Info("creating analytics client", slog.String("property", cfg.GAPropertyID))
		return analytics.NewGA4Adapter(ctx, analytics.GA4Config{
			PropertyID:      cfg.GAPropertyID,
			CredentialsFile: cfg.GACredentialsFile,
			Endpoint:        cfg.AnalyticsEndpoint,
			Timeout:         cfg.AnalyticsTimeout,
		})
	})
	mSvc := metrics.NewService(st, st, ga, logger, metrics.Options{
		Channels:         cfg.AllowedChannels,
		AnalyticsTimeout: cfg.AnalyticsTimeout,
		DefaultStart:     cfg.DefaultStartDate,
		DefaultEnd:       cfg.DefaultEndDate,
		Observer:         obs,
	})
	up := ingest.NewUploader(st, st, ingest.PDFExtractor{}, logger, cfg.MaxUploadBytes).WithObserver(obs)

	r := httpx.NewRouter(httpx.Deps{
		Log:            logger,
		Dashboard:      mSvc,
		Uploads:        up,
		Reports:        analytics.NewReports(ga, logger, cfg.AnalyticsTimeout),
		Gatherer:       reg,
		Ready:          st.Ping,
		CORSOrigins:    cfg.CORSOrigins,
		DevMode:        cfg.DevMode(),
		DevUserID:      cfg.DevUserID,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("err", err.Error()))
			st.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("shutdown error", slog.String("err", err.Error()))
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabasePath == "" {
		return store.NewMemoryStore(), nil
	}
	var st *store.SQLiteStore
	err := utils.NewBackoff(200*time.Millisecond, 4).Do(ctx, func(i int) error {
		var err error
		st, err = store.OpenSQLite(ctx, cfg.DatabasePath)
		if err != nil {
			slog.Warn("open store failed", slog.Int("attempt", i+1), slog.String("err", err.Error()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
