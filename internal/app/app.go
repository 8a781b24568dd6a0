// Package app wires together configuration, logging, the HTTP source and the
// workspace store into a single Deps struct that commands receive at runtime.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/derickschaefer/tsprep/internal/config"
	"github.com/derickschaefer/tsprep/internal/source"
	"github.com/derickschaefer/tsprep/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// The store is opened lazily because most commands only read stdin.
type Deps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Fetcher *source.Fetcher

	store *store.Store
}

// New builds a Deps from resolved config. Logs go to logOut.
func New(cfg *config.Config, logOut io.Writer) *Deps {
	logger := NewLogger(logOut, cfg)
	return &Deps{
		Config: cfg,
		Logger: logger,
		Fetcher: source.New(source.Options{
			Timeout: cfg.Timeout,
			Rate:    cfg.Rate,
			Logger:  logger,
		}),
	}
}

// NewLogger builds the text logger used by the outer layer. --debug wins
// over --verbose, which wins over log_level.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose && level > slog.LevelInfo:
		level = slog.LevelInfo
	case cfg.Quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a log_level setting to a slog level; unknown values mean warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}

// Store opens the workspace database on first use.
func (d *Deps) Store() (*store.Store, error) {
	if d.store != nil {
		return d.store, nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", d.Config.DBPath, err)
	}
	d.Logger.Debug("workspace opened", "path", d.Config.DBPath)
	d.store = s
	return s, nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}
