package main

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
)

// lexiconHolder hands out the current lexicon to handlers while reloads swap
// it underneath them.
type lexiconHolder struct {
	cur atomic.Pointer[analysis.Lexicon]
}

func newLexiconHolder(lex *analysis.Lexicon) *lexiconHolder {
	h := &lexiconHolder{}
	h.cur.Store(lex)
	return h
}

func (h *lexiconHolder) Current() *analysis.Lexicon {
	return h.cur.Load()
}

func (h *lexiconHolder) Swap(lex *analysis.Lexicon) {
	h.cur.Store(lex)
}

// lexiconWatcher reloads the lexicon packs whenever files in the pack
// directory change.
type lexiconWatcher struct {
	dir     string
	holder  *lexiconHolder
	log     *logrus.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newLexiconWatcher(dir string, holder *lexiconHolder, log *logrus.Logger) *lexiconWatcher {
	return &lexiconWatcher{
		dir:    dir,
		holder: holder,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (lw *lexiconWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Start: new watcher: %w", err)
	}
	if err := w.Add(lw.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("Start: watch %s: %w", lw.dir, err)
	}
	lw.watcher = w

	go lw.loop()
	lw.log.WithField("dir", lw.dir).Info("watching lexicon packs for changes")
	return nil
}

func (lw *lexiconWatcher) Stop() {
	if lw.watcher == nil {
		return
	}
	_ = lw.watcher.Close()
	<-lw.done
}

func (lw *lexiconWatcher) loop() {
	defer close(lw.done)
	for {
		select {
		case evt, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 && isPackFile(evt.Name) {
				lw.reload()
			}
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.log.WithError(err).Warn("lexicon watcher error")
		}
	}
}

// reload re-merges every pack in the directory. A broken pack keeps the
// previous lexicon in place.
func (lw *lexiconWatcher) reload() {
	lex, err := analysis.LoadLexiconPacks(lw.dir)
	if err != nil {
		lw.log.WithError(err).Warn("lexicon reload failed, keeping previous tables")
		return
	}
	lw.holder.Swap(lex)
	lw.log.WithFields(logrus.Fields{
		"topics":           len(lex.Topics),
		"evolution_topics": len(lex.EvolutionTopics),
	}).Info("lexicon reloaded")
}

func isPackFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
