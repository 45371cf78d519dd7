package reconciler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copier_bridge/internal/directory"
	"copier_bridge/internal/models"
	"copier_bridge/internal/notify"
	"copier_bridge/internal/reconciler"
	"copier_bridge/internal/runstate"
	"copier_bridge/internal/storage"
)

type env struct {
	store *storage.Storage
	state *runstate.Register
	rec   *reconciler.Reconciler
}

func newEnv(t *testing.T, wrap func(*storage.Storage) reconciler.AccountStore, resolver reconciler.LabelResolver) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.New(filepath.Join(t.TempDir(), "bridge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var accounts reconciler.AccountStore = store
	if wrap != nil {
		accounts = wrap(store)
	}

	if resolver == nil {
		resolver = directory.New(store, logger)
	}

	state := runstate.New(store, notify.Nop{}, logger)

	return &env{
		store: store,
		state: state,
		rec:   reconciler.New(accounts, resolver, state, logger),
	}
}

func ptr[T any](v T) *T { return &v }

// scenarioB seeds M1 with one active slave S1 of two contracts
func scenarioB(t *testing.T, e *env) reconciler.Result {
	t.Helper()

	res, err := e.rec.Sync(context.Background(), reconciler.Request{
		MasterAccount: "M1",
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "S1", IsActive: ptr(true), ContractSize: ptr(2)},
		},
		IsRunning: ptr(true),
	})
	require.NoError(t, err)

	return res
}

func TestFullSyncCreatesMasterAndSlaves(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	res := scenarioB(t, e)
	assert.Equal(t, reconciler.ModeFull, res.Mode)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Skipped)
	assert.True(t, res.State.IsRunning)
	assert.Equal(t, "M1", res.State.MasterAccount)

	m1, err := e.store.GetAccount(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, m1.IsMaster)
	assert.Equal(t, models.StatusConnected, m1.Status)

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, s1.IsMaster)
	assert.Equal(t, "M1", s1.MasterAccount)
	assert.Equal(t, models.StatusConnected, s1.Status)
	assert.Equal(t, 2, s1.ContractSize)
}

func TestTelemetrySyncKeepsControlFields(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	res, err := e.rec.Sync(ctx, reconciler.Request{
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "S1", Unrealized: ptr(150.5)},
		},
		PnLOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, reconciler.ModeTelemetry, res.Mode)
	assert.Equal(t, 1, res.Applied)

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 150.5, s1.Unrealized)
	assert.Equal(t, 2, s1.ContractSize)
	assert.True(t, s1.IsActive)

	// Omitted is_running keeps the stored state
	assert.Equal(t, models.StatusConnected, s1.Status)
	assert.True(t, res.State.IsRunning)
}

func TestTelemetrySyncDoesNotOverwriteDashboardEdit(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)

	_, err = e.store.PatchAccount(ctx, s1.ID, models.AccountPatch{IsActive: ptr(false), ContractSize: ptr(5)}, true)
	require.NoError(t, err)

	_, err = e.rec.Sync(ctx, reconciler.Request{
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "S1", Realized: ptr(12.0), IsActive: ptr(true), ContractSize: ptr(2)},
		},
		IsRunning: ptr(true),
		PnLOnly:   true,
	})
	require.NoError(t, err)

	s1, err = e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, s1.IsActive)
	assert.Equal(t, 5, s1.ContractSize)
	assert.Equal(t, 12.0, s1.Realized)
	assert.Equal(t, models.StatusDisconnected, s1.Status)
}

func TestTelemetrySyncSkipsUnknownAccounts(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	res, err := e.rec.Sync(ctx, reconciler.Request{
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "GHOST", Unrealized: ptr(1.0)},
			{AccountName: "S1", Unrealized: ptr(2.0)},
		},
		PnLOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "GHOST", res.Skipped[0].AccountName)

	_, err = e.store.GetAccount(ctx, "GHOST")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFullSyncIsIdempotent(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)
	first, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)

	scenarioB(t, e)
	second, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		a, b := first[i], second[i]
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, a.Status, b.Status)
		assert.Equal(t, a.ContractSize, b.ContractSize)
		assert.Equal(t, a.IsMaster, b.IsMaster)
		assert.Equal(t, a.CreatedAt, b.CreatedAt)
	}
}

func TestStopDisconnectsEverything(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	res, err := e.rec.Sync(ctx, reconciler.Request{
		MasterAccount: "M1",
		IsRunning:     ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, res.State.IsRunning)

	accounts, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)

	for _, acc := range accounts {
		assert.Equal(t, models.StatusDisconnected, acc.Status, acc.AccountName)
	}
}

func TestTelemetryStopKeepsStoredMaster(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	res, err := e.rec.Sync(ctx, reconciler.Request{
		IsRunning: ptr(false),
		PnLOnly:   true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Disconnected)
	assert.Equal(t, "M1", res.State.MasterAccount)

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, s1.Status)
}

func TestStopAfterMasterChangeDisconnectsPreviousMaster(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	_, err := e.rec.Sync(ctx, reconciler.Request{
		MasterAccount: "M2",
		SlaveAccounts: []models.AccountSnapshot{{AccountName: "S2", IsActive: ptr(true)}},
		IsRunning:     ptr(true),
	})
	require.NoError(t, err)

	res, err := e.rec.Sync(ctx, reconciler.Request{MasterAccount: "M2", IsRunning: ptr(false)})
	require.NoError(t, err)

	// M1 and S1 still point at M1 but follow the global stop
	assert.EqualValues(t, 3, res.Disconnected)

	accounts, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 4)

	for _, acc := range accounts {
		assert.Equal(t, models.StatusDisconnected, acc.Status, acc.AccountName)
	}

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "M1", s1.MasterAccount)
}

func TestFullSyncStatusRule(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_, err := e.rec.Sync(ctx, reconciler.Request{
		MasterAccount: "M1",
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "ON", IsActive: ptr(true)},
			{AccountName: "OFF", IsActive: ptr(false)},
			{AccountName: "DEFAULT"},
		},
		IsRunning: ptr(true),
	})
	require.NoError(t, err)

	want := map[string]string{
		"ON":      models.StatusConnected,
		"OFF":     models.StatusDisconnected,
		"DEFAULT": models.StatusConnected,
	}

	for name, status := range want {
		acc, err := e.store.GetAccount(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, status, acc.Status, name)
	}

	def, err := e.store.GetAccount(ctx, "DEFAULT")
	require.NoError(t, err)
	assert.True(t, def.IsActive)
	assert.Equal(t, 1, def.ContractSize)
}

func TestMasterChangeDemotesPrevious(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	scenarioB(t, e)

	_, err := e.rec.Sync(ctx, reconciler.Request{MasterAccount: "M2", IsRunning: ptr(true)})
	require.NoError(t, err)

	m1, err := e.store.GetAccount(ctx, "M1")
	require.NoError(t, err)
	assert.False(t, m1.IsMaster)

	state, err := e.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "M2", state.MasterAccount)
}

func TestSyncValidation(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_, err := e.rec.Sync(ctx, reconciler.Request{IsRunning: ptr(true)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = e.rec.Sync(ctx, reconciler.Request{
		MasterAccount: "M1",
		SlaveAccounts: []models.AccountSnapshot{{AccountName: "  "}},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	for _, size := range []int{0, -2} {
		_, err = e.rec.Sync(ctx, reconciler.Request{
			MasterAccount: "M1",
			SlaveAccounts: []models.AccountSnapshot{
				{AccountName: "S1"},
				{AccountName: "S2", ContractSize: ptr(size)},
			},
			IsRunning: ptr(true),
		})
		require.ErrorIs(t, err, models.ErrInvalidInput)
		assert.Contains(t, err.Error(), "slave_accounts[1]")
	}

	_, err = e.store.GetAccount(ctx, "S1")
	assert.ErrorIs(t, err, models.ErrNotFound, "rejected sync must not write rows")

	accounts, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

type failingAccounts struct {
	*storage.Storage
	fail string
}

func (f failingAccounts) UpsertAccount(ctx context.Context, acc models.CopierAccount) error {
	if acc.AccountName == f.fail {
		return errors.New("disk on fire")
	}

	return f.Storage.UpsertAccount(ctx, acc)
}

func TestPartialFailureKeepsOtherRows(t *testing.T) {
	e := newEnv(t, func(s *storage.Storage) reconciler.AccountStore {
		return failingAccounts{Storage: s, fail: "S2"}
	}, nil)
	ctx := context.Background()

	res, err := e.rec.Sync(ctx, reconciler.Request{
		MasterAccount: "M1",
		SlaveAccounts: []models.AccountSnapshot{
			{AccountName: "S1"},
			{AccountName: "S2"},
			{AccountName: "S3"},
		},
		IsRunning: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "S2", res.Skipped[0].AccountName)

	accounts, err := e.store.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

type brokenDirectory struct{}

func (brokenDirectory) Resolve(context.Context, []string) (map[string]models.Labels, error) {
	return nil, errors.New("directory offline")
}

func TestDirectoryFailureYieldsEmptyLabels(t *testing.T) {
	e := newEnv(t, nil, brokenDirectory{})
	ctx := context.Background()

	res := scenarioB(t, e)
	assert.Equal(t, 2, res.Applied)

	s1, err := e.store.GetAccount(ctx, "S1")
	require.NoError(t, err)
	assert.Empty(t, s1.ClientName)
	assert.Empty(t, s1.AgencyName)
}
