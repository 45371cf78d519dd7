package runstate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copier_bridge/internal/models"
	"copier_bridge/internal/storage"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, text)
}

func ptr[T any](v T) *T { return &v }

func newTestRegister(t *testing.T) (*Register, *storage.Storage, *recordingNotifier) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.New(filepath.Join(t.TempDir(), "bridge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &recordingNotifier{}

	return New(store, notifier, logger), store, notifier
}

func TestGetBeforeAnyWrite(t *testing.T) {
	r, _, _ := newTestRegister(t)

	state, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, state.IsRunning)
	assert.Empty(t, state.MasterAccount)
}

func TestSetMergesFields(t *testing.T) {
	r, _, _ := newTestRegister(t)
	ctx := context.Background()

	stamp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return stamp }

	_, err := r.Set(ctx, models.StateUpdate{IsRunning: ptr(true), MasterAccount: ptr("M1")})
	require.NoError(t, err)

	stamp = stamp.Add(time.Minute)

	// Only is_running is written, the master survives
	state, err := r.Set(ctx, models.StateUpdate{IsRunning: ptr(false)})
	require.NoError(t, err)
	assert.False(t, state.IsRunning)
	assert.Equal(t, "M1", state.MasterAccount)
	assert.Equal(t, stamp, state.UpdatedAt)

	// An empty update still stamps
	stamp = stamp.Add(time.Minute)
	state, err = r.Set(ctx, models.StateUpdate{})
	require.NoError(t, err)
	assert.Equal(t, stamp, state.UpdatedAt)
	assert.Equal(t, "M1", state.MasterAccount)
}

func TestTransitionsAreAudited(t *testing.T) {
	r, store, notifier := newTestRegister(t)
	ctx := context.Background()

	_, err := r.Set(ctx, models.StateUpdate{IsRunning: ptr(true), MasterAccount: ptr("M1")})
	require.NoError(t, err)

	// No transition, no entry
	_, err = r.Set(ctx, models.StateUpdate{IsRunning: ptr(true)})
	require.NoError(t, err)

	_, err = r.Set(ctx, models.StateUpdate{IsRunning: ptr(false)})
	require.NoError(t, err)

	logs, err := store.GetLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "copier_stopped", logs[0].Action)
	assert.Equal(t, "copier_started", logs[1].Action)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "M1")
}

func TestSetRederivesAccountStatus(t *testing.T) {
	r, store, _ := newTestRegister(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertMaster(ctx, "M1", models.Labels{}, models.StatusConnected))
	require.NoError(t, store.UpsertAccount(ctx, models.CopierAccount{AccountName: "S1", MasterAccount: "M1", IsActive: true, ContractSize: 1, Status: models.StatusConnected}))
	require.NoError(t, store.UpsertAccount(ctx, models.CopierAccount{AccountName: "S2", MasterAccount: "M1", IsActive: false, ContractSize: 1, Status: models.StatusDisconnected}))

	statuses := func() map[string]string {
		accounts, err := store.GetAccounts(ctx)
		require.NoError(t, err)

		out := make(map[string]string, len(accounts))
		for _, acc := range accounts {
			out[acc.AccountName] = acc.Status
		}

		return out
	}

	_, err := r.Set(ctx, models.StateUpdate{IsRunning: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"M1": models.StatusDisconnected,
		"S1": models.StatusDisconnected,
		"S2": models.StatusDisconnected,
	}, statuses())

	// A master-only update leaves status alone
	_, err = r.Set(ctx, models.StateUpdate{MasterAccount: ptr("M1")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, statuses()["S1"])

	_, err = r.Set(ctx, models.StateUpdate{IsRunning: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"M1": models.StatusConnected,
		"S1": models.StatusConnected,
		"S2": models.StatusDisconnected,
	}, statuses())
}
