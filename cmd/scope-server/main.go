package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/store"
)

func main() {
	cfg := loadConfig()
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer func() { _ = st.Close() }()

	lex, err := analysis.LoadLexiconPacks(cfg.LexiconDir)
	if err != nil {
		log.WithError(err).Fatal("load lexicon packs")
	}
	holder := newLexiconHolder(lex)

	var watcher *lexiconWatcher
	if cfg.LexiconDir != "" {
		watcher = newLexiconWatcher(cfg.LexiconDir, holder, log)
		if err := watcher.Start(); err != nil {
			log.WithError(err).Warn("lexicon watcher unavailable, packs load once at startup")
			watcher = nil
		}
	}

	h := newHub(log)
	go h.run()

	srv := newServer(st, holder, h, log, rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst))
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        cfg.Addr,
			"db":          cfg.DBPath,
			"lexicon_dir": cfg.LexiconDir,
		}).Info("scope server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}

	if watcher != nil {
		watcher.Stop()
	}
	h.stop()
	log.Info("scope server stopped")
}

func newLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
