package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lockvault/internal/config"
	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/remote"
	"github.com/illarion/lockvault/internal/session"
	"github.com/illarion/lockvault/internal/storage"
	"github.com/illarion/lockvault/internal/vault"
)

func testConfig(t *testing.T, dir, syncDir string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.VaultPath = filepath.Join(dir, config.DefaultVaultFile)
	cfg.SyncDir = syncDir
	cfg.KDF = crypto.Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}
	cfg.SyncBackoff = time.Millisecond
	return cfg
}

func initApp(t *testing.T, cfg *config.Config, password string) *App {
	t.Helper()
	app, err := Init(context.Background(), cfg, nil, []byte(password))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func add(t *testing.T, app *App, title, password string) credential.Record {
	t.Helper()
	r, err := app.Vault.AddEntry(context.Background(), credential.Record{Title: title, Password: password})
	require.NoError(t, err)
	return r
}

// synced waits until the background sync of app delivered n operations.
func synced(t *testing.T, app *App, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return app.outbox.Stats().Delivered >= n
	}, 5*time.Second, time.Millisecond)
}

func titles(t *testing.T, app *App) []string {
	t.Helper()
	entries, err := app.Vault.Entries(context.Background())
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func TestInitAndOpen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, t.TempDir(), "")

	_, err := Open(cfg, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	app, err := Init(ctx, cfg, nil, []byte("test123"))
	require.NoError(t, err)
	add(t, app, "mail", "abc")
	id, err := app.VaultID(ctx)
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))

	_, err = Init(ctx, cfg, nil, []byte("test123"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	app, err = Open(cfg, nil)
	require.NoError(t, err)
	defer app.Close(ctx)

	_, err = app.Vault.Entries(ctx)
	assert.ErrorIs(t, err, session.ErrVaultLocked)
	assert.ErrorIs(t, app.Unlock(ctx, []byte("wrong")), session.ErrWrongPassword)
	require.NoError(t, app.Unlock(ctx, []byte("test123")))
	assert.Equal(t, []string{"mail"}, titles(t, app))

	again, err := app.VaultID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	app.Lock()
	_, err = app.Vault.Entries(ctx)
	assert.ErrorIs(t, err, session.ErrVaultLocked)
}

func TestChangePasswordKeepsEntries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, t.TempDir(), "")
	app := initApp(t, cfg, "old")
	add(t, app, "a", "1")
	add(t, app, "b", "2")

	assert.ErrorIs(t, app.ChangePassword(ctx, []byte("nope"), []byte("new")), session.ErrWrongPassword)
	require.NoError(t, app.ChangePassword(ctx, []byte("old"), []byte("new")))
	require.NoError(t, app.Compact())

	app.Lock()
	assert.ErrorIs(t, app.Unlock(ctx, []byte("old")), session.ErrWrongPassword)
	require.NoError(t, app.Unlock(ctx, []byte("new")))
	assert.ElementsMatch(t, []string{"a", "b"}, titles(t, app))
}

func TestAuditAndStatus(t *testing.T) {
	ctx := context.Background()
	app := initApp(t, testConfig(t, t.TempDir(), ""), "pw")
	add(t, app, "one", "abc")
	add(t, app, "two", "abc")
	add(t, app, "three", "Str0ng!Pass123")

	report, err := app.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, 1, report.SecureCount)

	st, err := app.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Setup)
	assert.True(t, st.Unlocked)
	assert.Equal(t, 3, st.Records)
	assert.False(t, st.Modified.IsZero())
}

func TestPushPullBetweenDevices(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()

	laptop := initApp(t, testConfig(t, t.TempDir(), shared), "pw")
	add(t, laptop, "mail", "abc")
	synced(t, laptop, 1)
	n, err := laptop.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second device adopts the laptop account
	phoneCfg := testConfig(t, t.TempDir(), shared)
	phone := initApp(t, phoneCfg, "temporary")
	require.NoError(t, phone.AdoptCloud(ctx))
	assert.False(t, phone.Session.IsUnlocked())
	require.NoError(t, phone.Unlock(ctx, []byte("pw")))

	res, err := phone.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.BatchResult{Applied: 1}, res)
	assert.Equal(t, []string{"mail"}, titles(t, phone))

	// writes reach the remote in the background
	add(t, phone, "bank", "xyz")
	synced(t, phone, 1)
	res, err = laptop.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.ElementsMatch(t, []string{"mail", "bank"}, titles(t, laptop))
}

func TestPullRefusesForeignAccount(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()

	a := initApp(t, testConfig(t, t.TempDir(), shared), "one")
	_, err := a.Push(ctx)
	require.NoError(t, err)

	b := initApp(t, testConfig(t, t.TempDir(), shared), "two")
	_, err = b.Pull(ctx)
	assert.ErrorIs(t, err, ErrCredentialsDiffer)
}

func TestMergeForeignAccount(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()

	cloud := initApp(t, testConfig(t, t.TempDir(), shared), "cloud-pw")
	add(t, cloud, "from cloud", "abc")
	synced(t, cloud, 1)
	_, err := cloud.Push(ctx)
	require.NoError(t, err)

	local := initApp(t, testConfig(t, t.TempDir(), shared), "local-pw")
	mine := add(t, local, "local only", "xyz")
	// the local write lands in the shared directory too, sealed under
	// the local key
	synced(t, local, 1)

	_, _, err = local.Merge(ctx, []byte("guess"), false)
	assert.ErrorIs(t, err, session.ErrWrongPassword)

	conflicts, _, err := local.Merge(ctx, []byte("cloud-pw"), true)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	actions := map[vault.Action]string{}
	for _, c := range conflicts {
		actions[c.Action] = c.ID
	}
	assert.Equal(t, mine.ID, actions[vault.ActionUnreadable])
	assert.Contains(t, actions, vault.ActionInsert)
	assert.Equal(t, []string{"local only"}, titles(t, local))

	_, res, err := local.Merge(ctx, []byte("cloud-pw"), false)
	require.NoError(t, err)
	assert.Equal(t, vault.BatchResult{Applied: 1, Failed: 1}, res)
	assert.ElementsMatch(t, []string{"local only", "from cloud"}, titles(t, local))

	// merged entries are readable under the local password only
	local.Lock()
	require.NoError(t, local.Unlock(ctx, []byte("local-pw")))
	assert.Len(t, titles(t, local), 2)
}

func TestSyncRequiresDir(t *testing.T) {
	ctx := context.Background()
	app := initApp(t, testConfig(t, t.TempDir(), ""), "pw")

	_, err := app.Push(ctx)
	assert.ErrorIs(t, err, ErrNoSyncDir)
	_, err = app.Pull(ctx)
	assert.ErrorIs(t, err, ErrNoSyncDir)
	assert.ErrorIs(t, app.AdoptCloud(ctx), ErrNoSyncDir)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	src := initApp(t, testConfig(t, t.TempDir(), ""), "pw")
	add(t, src, "mail", "abc")

	data, err := src.Backup(ctx, []byte("backup phrase"))
	require.NoError(t, err)

	dst := initApp(t, testConfig(t, t.TempDir(), ""), "other")
	_, err = dst.Restore(ctx, data, []byte("wrong phrase"))
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailure)

	res, err := dst.Restore(ctx, data, []byte("backup phrase"))
	require.NoError(t, err)
	assert.Equal(t, vault.BatchResult{Applied: 1}, res)
	assert.Equal(t, []string{"mail"}, titles(t, dst))

	_, err = dst.Restore(ctx, []byte(`{"version":9}`), []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidBackup)
}

func TestCredentialsExchange(t *testing.T) {
	ctx := context.Background()
	a := initApp(t, testConfig(t, t.TempDir(), ""), "shared-pw")
	c, err := a.Credentials(ctx)
	require.NoError(t, err)

	b := initApp(t, testConfig(t, t.TempDir(), ""), "mine")
	require.NoError(t, b.ImportCredentials(ctx, c))
	assert.False(t, b.Session.IsUnlocked())
	require.NoError(t, b.Unlock(ctx, []byte("shared-pw")))
}

func TestBadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, t.TempDir(), "")
	cfg.Backend = "badger"

	app := initApp(t, cfg, "pw")
	add(t, app, "mail", "abc")
	require.NoError(t, app.Compact())

	info, err := os.Stat(cfg.VaultPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	app.Lock()
	require.NoError(t, app.Unlock(ctx, []byte("pw")))
	assert.Equal(t, []string{"mail"}, titles(t, app))
}

func TestWritesSyncInBackground(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()
	app := initApp(t, testConfig(t, t.TempDir(), shared), "pw")

	kept := add(t, app, "mail", "abc")
	gone := add(t, app, "bank", "xyz")
	require.NoError(t, app.Vault.DeleteEntry(ctx, gone.ID))

	// no Drain and no Close: the background loop alone delivers
	synced(t, app, 3)
	items, err := app.remote.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ID)

	st, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
}

func TestAdoptCloudRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	app := initApp(t, testConfig(t, t.TempDir(), t.TempDir()), "pw")
	add(t, app, "mail", "abc")
	synced(t, app, 1)

	require.NoError(t, app.remote.PublishCredentials(ctx, remote.Credentials{Salt: "%%%", Verifier: `{"payload":"AQID","nonce":"BAU="}`}))
	assert.ErrorIs(t, app.AdoptCloud(ctx), session.ErrInvalidSalt)

	assert.True(t, app.Session.IsUnlocked())
	assert.Equal(t, []string{"mail"}, titles(t, app))
}

// clearFailStore refuses to clear a namespace.
type clearFailStore struct {
	storage.Store
}

func (clearFailStore) Clear(context.Context, storage.Namespace) error {
	return errors.New("disk full")
}

func TestAdoptCloudKeepsCredentialsWhenClearFails(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()

	cloud := initApp(t, testConfig(t, t.TempDir(), shared), "cloud-pw")
	require.NoError(t, cloud.PublishCredentials(ctx))

	local := initApp(t, testConfig(t, t.TempDir(), shared), "local-pw")
	add(t, local, "mail", "abc")
	synced(t, local, 1)
	before, err := local.Credentials(ctx)
	require.NoError(t, err)

	local.Vault = vault.New(clearFailStore{local.store}, local.Session)
	local.Session.UseRekeyer(local.Vault)
	require.Error(t, local.AdoptCloud(ctx))

	after, err := local.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "credentials must not change when the clear fails")

	local.Lock()
	assert.ErrorIs(t, local.Unlock(ctx, []byte("cloud-pw")), session.ErrWrongPassword)
	require.NoError(t, local.Unlock(ctx, []byte("local-pw")))
	assert.Equal(t, []string{"mail"}, titles(t, local))
}
