// Package app wires the client engine together for one signed-in
// account: backend client, entity cache, loaders, dispatcher, toasts and
// the on-disk snapshot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/auth"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/config"
	"github.com/qisumi/qisumi-tui/internal/dispatch"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/notify"
	"github.com/qisumi/qisumi-tui/internal/store"
	"github.com/qisumi/qisumi-tui/internal/tracker"
)

// Session is the engine of one signed-in account. It is replaced on
// every login and closed on logout.
type Session struct {
	Account  string
	Cache    *cache.Cache
	Tracker  *tracker.Tracker
	Dispatch *dispatch.Dispatcher
}

// App owns the long-lived pieces and the current session
type App struct {
	Config *config.Config
	Client *api.Client
	Creds  *auth.Store
	Toasts *notify.Center

	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	session   *Session
	db        *store.DB
	snapshots *store.SnapshotStore
	signedOut func(error)
}

// New builds an App from cfg. Nobody is signed in yet; call Resume or
// Login.
func New(cfg *config.Config) *App {
	return &App{
		Config: cfg,
		Client: api.NewClient(cfg.APIBaseURL, api.WithTimeout(cfg.RequestTimeout)),
		Creds:  auth.NewStore(cfg.CredentialsPath),
		Toasts: notify.NewCenter(cfg.ToastDuration),
		log:    logger.Main,
		now:    time.Now,
	}
}

// OnSignedOut registers fn to run when the backend rejects the token.
// fn runs on the goroutine that saw the rejection.
func (a *App) OnSignedOut(fn func(error)) {
	a.mu.Lock()
	a.signedOut = fn
	a.mu.Unlock()
}

// Session returns the current session, nil when signed out
func (a *App) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Resume starts a session from the stored credential. It returns
// auth.ErrNoCredential when there is none or it has expired.
func (a *App) Resume(ctx context.Context) (*Session, error) {
	cred, err := a.Creds.LoadValid(a.now())
	if err != nil {
		return nil, err
	}
	a.Client.SetToken(cred.Token)
	return a.start(ctx, cred.Email)
}

// Login signs in with email and password, optionally registering the
// account first, and stores the credential
func (a *App) Login(ctx context.Context, email, password string, register bool) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password required")
	}
	if register {
		if err := a.Client.Register(ctx, email, password); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}
	token, err := a.Client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	cred := auth.Credential{Token: token, Email: email, APIURL: a.Client.BaseURL(), SavedAt: a.now()}
	if err := a.Creds.Save(cred); err != nil {
		return nil, err
	}
	a.log.Info("signed in", "account", email)
	return a.start(ctx, email)
}

// Logout drops the credential, the session's cached data and the stored
// snapshot
func (a *App) Logout(ctx context.Context) error {
	a.endSession(false)
	a.Client.SetToken("")
	var errs []error
	if err := a.Creds.Clear(); err != nil {
		errs = append(errs, err)
	}
	if s := a.snapshotStore(); s != nil {
		if err := s.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear snapshot: %w", err))
		}
	}
	a.log.Info("signed out")
	return errors.Join(errs...)
}

// Close saves the snapshot when persistence is on and releases
// everything
func (a *App) Close() error {
	a.endSession(true)

	a.mu.Lock()
	db := a.db
	a.db, a.snapshots = nil, nil
	a.mu.Unlock()
	if db != nil {
		return db.Close()
	}
	return nil
}

func (a *App) start(ctx context.Context, account string) (*Session, error) {
	a.endSession(true)

	c := cache.New(cache.Options{
		StaleTime:      a.Config.StaleTime,
		RequestTimeout: a.Config.RequestTimeout,
	})
	s := &Session{Account: account, Cache: c}
	rejected := a.rejectedBy(s)
	s.Tracker = tracker.New(a.Client, c, tracker.WithUnauthorized(rejected))
	s.Dispatch = dispatch.New(a.Client, c, a.Toasts, dispatch.Options{
		Timeout:        a.Config.RequestTimeout,
		OnUnauthorized: rejected,
	})

	if snaps := a.snapshotStore(); snaps != nil {
		snap, err := snaps.LoadSnapshot(ctx, account)
		if err != nil {
			a.log.Warn("load snapshot", "error", err)
		} else {
			c.Restore(snap)
		}
	}

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s, nil
}

// endSession closes the current session, saving its snapshot first when
// save is set
func (a *App) endSession(save bool) {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()
	if s == nil {
		return
	}
	if save {
		if snaps := a.snapshotStore(); snaps != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := snaps.SaveSnapshot(ctx, s.Account, s.Cache.Snapshot()); err != nil {
				a.log.Warn("save snapshot", "error", err)
			}
			cancel()
		}
	}
	s.Cache.Close()
}

// rejectedBy handles a 401 seen by s: the credential is gone and so is
// the session. Only the first rejection of the current session counts.
// It may run inside a background refetch, so the cache is stopped
// rather than closed.
func (a *App) rejectedBy(s *Session) func(error) {
	return func(err error) {
		a.mu.Lock()
		if a.session != s {
			a.mu.Unlock()
			return
		}
		a.session = nil
		fn := a.signedOut
		a.mu.Unlock()

		a.log.Warn("token rejected", "account", s.Account, "error", err)
		a.Client.SetToken("")
		if cerr := a.Creds.Clear(); cerr != nil {
			a.log.Warn("clear credentials", "error", cerr)
		}
		s.Cache.Stop()
		if fn != nil {
			fn(err)
		}
	}
}

// snapshotStore opens the snapshot database on first use. Persistence
// failures only cost the warm start.
func (a *App) snapshotStore() *store.SnapshotStore {
	if !a.Config.CachePersist {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshots != nil {
		return a.snapshots
	}
	db, err := store.Open(a.Config.CachePath)
	if err != nil {
		a.log.Warn("open snapshot store", "path", a.Config.CachePath, "error", err)
		return nil
	}
	a.db = db
	a.snapshots = store.NewSnapshotStore(db)
	return a.snapshots
}
