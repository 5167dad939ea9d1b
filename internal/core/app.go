package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/audit"
	"github.com/illarion/lockvault/internal/config"
	"github.com/illarion/lockvault/internal/outbox"
	"github.com/illarion/lockvault/internal/remote"
	"github.com/illarion/lockvault/internal/session"
	"github.com/illarion/lockvault/internal/storage"
	"github.com/illarion/lockvault/internal/vault"
)

var (
	ErrNotInitialized     = errors.New("lockvault not initialized")
	ErrAlreadyExists      = errors.New("lockvault already exists")
	ErrNoSyncDir          = errors.New("no sync directory configured")
	ErrCredentialsDiffer  = errors.New("sync directory belongs to a different account")
	ErrCompactUnsupported = errors.New("backend does not support compaction")
)

// App wires a store, session, vault and optional sync remote together.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	Session *session.Session
	Vault   *vault.Vault

	remote   *remote.Dir
	outbox   *outbox.Queue
	stopSync context.CancelFunc
	syncDone chan struct{}
}

// Open opens an existing vault.
func Open(cfg *config.Config, log *zap.Logger) (*App, error) {
	if _, err := os.Stat(cfg.VaultPath); err != nil {
		return nil, ErrNotInitialized
	}
	return open(cfg, log)
}

// Init creates a vault protected by password and returns it Unlocked.
func Init(ctx context.Context, cfg *config.Config, log *zap.Logger, password []byte) (*App, error) {
	app, err := open(cfg, log)
	if err != nil {
		return nil, err
	}
	setup, err := app.Session.IsSetup(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if setup {
		app.Close(ctx)
		return nil, ErrAlreadyExists
	}
	if err := app.Session.SetupAccount(ctx, password); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if _, err := storage.GetOrCreateVaultID(ctx, app.store); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

// open builds the component graph in two phases: the session first, then
// the vault that borrows its key, then the rekeyer binding back.
func open(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := storage.Open(cfg.Backend, cfg.VaultPath)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, log: log, store: store}
	app.Session = session.New(store,
		session.WithLogger(log.Named("session")),
		session.WithParams(cfg.KDF))

	opts := []vault.Option{vault.WithLogger(log.Named("vault"))}
	if cfg.SyncDir != "" {
		app.remote, err = remote.Open(cfg.SyncDir, log.Named("remote"))
		if err != nil {
			store.Close()
			return nil, err
		}
		app.outbox = outbox.New(app.remote,
			outbox.WithLogger(log.Named("outbox")),
			outbox.WithRetry(cfg.SyncAttempts, cfg.SyncBackoff))
		opts = append(opts, vault.WithNotifier(app.outbox))

		var runCtx context.Context
		runCtx, app.stopSync = context.WithCancel(context.Background())
		app.syncDone = make(chan struct{})
		go func() {
			defer close(app.syncDone)
			app.outbox.Run(runCtx)
		}()
	}
	app.Vault = vault.New(store, app.Session, opts...)
	app.Session.UseRekeyer(app.Vault)

	return app, nil
}

// Close stops background sync, flushes what is still queued and releases
// the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.outbox != nil {
		a.stopSync()
		select {
		case <-a.syncDone:
			if err := a.outbox.Drain(ctx); err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		if st := a.outbox.Stats(); st.Failed > 0 || st.Dropped > 0 {
			a.log.Warn("some changes were not synced",
				zap.Int64("failed", st.Failed), zap.Int64("dropped", st.Dropped))
		}
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Path returns the vault location.
func (a *App) Path() string {
	return a.cfg.VaultPath
}

// Syncing reports whether a sync directory is configured.
func (a *App) Syncing() bool {
	return a.remote != nil
}

// Unlock authenticates password and unlocks the session.
func (a *App) Unlock(ctx context.Context, password []byte) error {
	return a.Session.Authenticate(ctx, password)
}

// Lock forgets the key and every decrypted record.
func (a *App) Lock() {
	a.Session.Lock()
	a.Vault.Purge()
}

// VaultID returns the identifier used as the keyring account.
func (a *App) VaultID(ctx context.Context) (string, error) {
	return storage.GetOrCreateVaultID(ctx, a.store)
}

// ChangePassword rotates the master password. With a sync directory the
// re-encrypted records and the new credentials are pushed right away.
func (a *App) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if err := a.Session.ChangeMasterPassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	if a.remote == nil {
		return nil
	}
	if _, err := a.Push(ctx); err != nil {
		return fmt.Errorf("password changed but push failed: %w", err)
	}
	return nil
}

// Audit rates the decrypted vault.
func (a *App) Audit(ctx context.Context) (audit.Report, error) {
	entries, err := a.Vault.Entries(ctx)
	if err != nil {
		return audit.Report{}, err
	}
	return audit.Analyze(entries), nil
}

// Compact reclaims disk space left by rewrites and deletes.
func (a *App) Compact() error {
	c, ok := a.store.(storage.Compacter)
	if !ok {
		return ErrCompactUnsupported
	}
	return c.Compact()
}

// Status summarizes the vault without needing the password.
type Status struct {
	Path     string
	Backend  string
	Setup    bool
	Unlocked bool
	Records  int
	Modified time.Time
	SyncDir  string
	Pending  int
}

// Status reports the vault state.
func (a *App) Status(ctx context.Context) (*Status, error) {
	setup, err := a.Session.IsSetup(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.Vault.StorageRecords(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Path:     a.cfg.VaultPath,
		Backend:  a.cfg.Backend,
		Setup:    setup,
		Unlocked: a.Session.IsUnlocked(),
		Records:  len(records),
		SyncDir:  a.cfg.SyncDir,
	}
	if b, ok := a.store.(*storage.BoltStore); ok {
		st.Modified, _ = b.Modified()
	}
	if a.outbox != nil {
		st.Pending = a.outbox.Len()
	}
	return st, nil
}
