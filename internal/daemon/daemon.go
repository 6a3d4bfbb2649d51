// Package daemon assembles and runs the callsignd process: single
// instance lock, mission engine, role registry, WebSocket hub, journal,
// control socket, and HTTP surface.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"callsign/internal/api"
	"callsign/internal/config"
	"callsign/internal/hub"
	"callsign/internal/ipc"
	"callsign/internal/journal"
	"callsign/internal/logging"
	"callsign/internal/match"
	"callsign/internal/mission"
	"callsign/internal/notifications"
	"callsign/internal/roster"
	"callsign/internal/script"
)

// ErrAlreadyRunning indicates another daemon instance holds the lock.
var ErrAlreadyRunning = errors.New("callsignd is already running")

// Daemon owns the long-lived process state.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	version   string
	startedAt time.Time

	lock      *flock.Flock
	script    *script.Script
	engine    *mission.Engine
	registry  *roster.Registry
	hub       *hub.Hub
	journal   *journal.Store
	notifier  notifications.Service
	ipcServer *ipc.Server
	httpSrv   *http.Server

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New wires up a daemon from configuration. The returned daemon holds
// the instance lock; callers must Run or Close it.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		version:   version,
		startedAt: time.Now(),
		lock:      lock,
		stopCh:    make(chan struct{}),
	}

	cleanup := func() {
		if d.journal != nil {
			d.journal.Close()
		}
		if d.ipcServer != nil {
			d.ipcServer.Close()
		}
		lock.Unlock()
	}

	d.script, err = loadScript(cfg.Mission.ScriptPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	if cfg.Journal.Enabled {
		d.journal, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	d.notifier = notifications.NewFromConfig(cfg.Notifications, logger)
	d.registry = roster.New(d.script.Roles, logger)

	var recorder mission.Recorder
	if d.journal != nil {
		recorder = d.journal
	}
	d.engine = mission.New(mission.Options{
		Script:    d.script,
		Matcher:   match.New(cfg.Mission.Keywords, cfg.Mission.Synonyms...),
		Threshold: cfg.Mission.SimilarityThreshold,
		Publisher: mission.PublisherFunc(func(ev api.Event) {
			if d.hub != nil {
				d.hub.Publish(ev)
			}
		}),
		Recorder: recorder,
		Notifier: d.notifier,
		Logger:   logger,
	})
	d.hub = hub.New(d.engine, d.registry, d.script, logger)

	d.ipcServer, err = ipc.NewServer(cfg.SocketPath(), d, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	d.httpSrv = &http.Server{
		Addr:              cfg.Daemon.HTTPBind,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.logger.Info("daemon initialized",
		logging.String("script", d.script.Name),
		logging.Int("steps", d.script.Len()),
		logging.String("http_bind", cfg.Daemon.HTTPBind))
	return d, nil
}

func loadScript(path string) (*script.Script, error) {
	if path == "" {
		return script.Embedded()
	}
	return script.Load(path)
}

// Run serves until the context is canceled or a stop is requested.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := d.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.notifier.Error(context.Background(), "HTTP server failed: "+err.Error())
		d.Close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
	case <-d.stopCh:
		d.logger.Info("stop requested over control socket")
	}
	return d.Close()
}

// Close releases everything the daemon holds. Safe to call more than
// once.
func (d *Daemon) Close() error {
	var firstErr error

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(d.cfg.Daemon.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := d.httpSrv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.ipcServer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Status implements ipc.Handler.
func (d *Daemon) Status() api.DaemonStatus {
	participants := d.registry.Participants()
	anyParticipants := make([]any, 0, len(participants))
	for _, p := range participants {
		anyParticipants = append(anyParticipants, p)
	}
	return api.DaemonStatus{
		Version:      d.version,
		PID:          os.Getpid(),
		StartedAt:    d.startedAt.UTC().Format(time.RFC3339),
		Connections:  d.hub.ConnectionCount(),
		Mission:      d.engine.Snapshot(),
		Participants: anyParticipants,
	}
}

// ResetMission implements ipc.Handler: full reset of mission and roles.
func (d *Daemon) ResetMission() string {
	d.engine.Reset()
	d.registry.Reset()
	d.hub.Publish(api.Event{Type: api.EventRoleUpdate, Payload: d.registry.Availability()})
	d.hub.Publish(api.Event{Type: api.EventParticipants, Payload: d.registry.Participants()})
	return d.engine.RunID()
}

// ForceAdvance implements ipc.Handler.
func (d *Daemon) ForceAdvance() (int, bool) {
	advanced := d.engine.ForceAdvance()
	return d.engine.Snapshot().Step, advanced
}

// JournalEntries implements ipc.Handler.
func (d *Daemon) JournalEntries(ctx context.Context, runID string, limit int) ([]api.JournalEntry, error) {
	if d.journal == nil {
		return nil, errors.New("journal is disabled")
	}
	if runID != "" {
		return d.journal.ListRun(ctx, runID)
	}
	return d.journal.List(ctx, limit)
}

// TestNotification implements ipc.Handler.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.Test(ctx)
}

// RequestStop implements ipc.Handler.
func (d *Daemon) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
