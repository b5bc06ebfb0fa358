package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"issue_timer/internal/config"
	"issue_timer/internal/control"
	"issue_timer/internal/db"
	"issue_timer/internal/issue"
	"issue_timer/internal/lease"
	"issue_timer/internal/notify"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// storage is what the one-shot commands need.
type storage struct {
	cfg      *config.Config
	conn     *sql.DB
	registry *issue.Registry
	sessions *session.Repository
}

func openStorage(ctx context.Context) (*storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}
	registry, err := issue.NewRegistry(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &storage{cfg: cfg, conn: conn, registry: registry, sessions: session.NewRepository(conn)}, nil
}

func (s *storage) Close() error { return s.conn.Close() }

// engine is the running timer: store, scheduler, synchronizer and the
// single-writer lease.
type engine struct {
	*storage
	store      *timer.Store
	scheduler  *timer.Scheduler
	sync       *session.Synchronizer
	controller *control.Controller
	notifier   *notify.MultiNotifier
	lease      lease.Lease
	rdb        *redis.Client
	detach     func()
}

func newEngine(ctx context.Context, notifiers ...notify.Notifier) (*engine, error) {
	st, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	cfg := st.cfg
	e := &engine{storage: st, lease: lease.Noop{}}

	e.notifier = notify.NewMultiNotifier(append(notifiers, notify.NewDesktopNotifier(cfg.Notifications.Desktop))...)

	var projector session.Projector = st.sessions
	if cfg.Redis.Addr != "" {
		e.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		e.lease = lease.NewRedisLease(e.rdb, cfg.General.UserID, cfg.LeaseTTL())
		projector = session.MultiProjector{st.sessions, lease.NewRedisProjector(e.rdb)}
	}
	if err := e.lease.Acquire(ctx); err != nil {
		e.Close()
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("another issuetimer instance is running for %s: %w", cfg.General.UserID, err)
		}
		return nil, err
	}

	identity := control.StaticIdentity(cfg.General.UserID)
	e.store = timer.NewStore(timer.SystemClock{})
	e.sync = session.NewSynchronizer(session.SyncerConfig{
		Recorder:  st.sessions,
		Issues:    st.registry,
		UserID:    identity.UserID(),
		Notifier:  e.notifier,
		Projector: projector,
	})
	e.detach = e.sync.Attach(e.store)
	e.scheduler = timer.NewScheduler(e.store, timer.SystemClock{}, cfg.TickInterval())
	e.controller = control.New(e.store, st.registry, e.sync, identity)

	n, err := e.controller.Restore(ctx, st.sessions)
	if err != nil {
		e.Close()
		return nil, err
	}
	if n > 0 {
		log.Printf("restored %d open session(s) as paused", n)
	}
	e.scheduler.Start()
	return e, nil
}

// Run drives the synchronizer and keeps the lease alive until ctx ends.
// The synchronizer makes a final flush before Run returns.
func (e *engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sync.Run(ctx) })
	if e.rdb != nil {
		g.Go(func() error {
			lease.KeepAlive(ctx, e.lease, e.cfg.LeaseTTL()/3, func(err error) {
				log.Printf("lease lost: %v", err)
				e.notifier.Send(notify.Notification{
					Title:   "Timer lease lost",
					Message: "Another issuetimer instance took over; sessions may be written twice.",
					Type:    notify.NotifyError,
				})
			})
			return nil
		})
	}
	return g.Wait()
}

func (e *engine) Close() error {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.detach != nil {
		e.detach()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.lease.Release(ctx); err != nil {
		log.Printf("releasing lease: %v", err)
	}
	if e.rdb != nil {
		e.rdb.Close()
	}
	return e.storage.Close()
}
