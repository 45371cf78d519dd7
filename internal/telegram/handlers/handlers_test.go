package handlers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copier_bridge/internal/commands"
	"copier_bridge/internal/ledger"
	"copier_bridge/internal/models"
	"copier_bridge/internal/notify"
	"copier_bridge/internal/runstate"
	"copier_bridge/internal/storage"
)

const operatorChat = 42

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendHTMLMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})

	return nil
}

type fixture struct {
	handler *Handler
	store   *storage.Storage
	queue   *commands.Queue
	sender  *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.New(filepath.Join(t.TempDir(), "bridge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := commands.New(store, notify.Nop{}, logger)
	sender := &fakeSender{}

	h := New(store, ledger.New(store, logger), queue, runstate.New(store, notify.Nop{}, logger), sender, operatorChat, logger)

	return &fixture{handler: h, store: store, queue: queue, sender: sender}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}

	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func TestUnknownChatIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.handler.Respond(ctx, 7, "stop_copier", nil)
	assert.Contains(t, reply, "not allowed")

	pending, err := f.queue.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestControlCommandsAreQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.handler.Respond(ctx, operatorChat, "stop_copier", nil)
	assert.Contains(t, reply, "stop_copier queued")

	reply = f.handler.Respond(ctx, operatorChat, "flatten", []string{"S1"})
	assert.Contains(t, reply, "flatten_account queued")

	reply = f.handler.Respond(ctx, operatorChat, "set_master", nil)
	assert.Contains(t, reply, "Usage: /set_master")

	pending, err := f.queue.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.CommandStopCopier, pending[0].Type)
	assert.Equal(t, models.CommandFlattenAccount, pending[1].Type)
	assert.JSONEq(t, `{"account_name":"S1"}`, string(pending[1].Payload))

	reply = f.handler.Respond(ctx, operatorChat, "pending", nil)
	assert.Contains(t, reply, "PENDING</b> (2)")
}

func TestStatusAndAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	running := true
	master := "M1"
	_, err := runstate.New(f.store, notify.Nop{}, slog.New(slog.NewTextHandler(io.Discard, nil))).
		Set(ctx, models.StateUpdate{IsRunning: &running, MasterAccount: &master})
	require.NoError(t, err)

	require.NoError(t, f.store.UpsertMaster(ctx, "M1", models.Labels{}, models.StatusConnected))
	require.NoError(t, f.store.UpsertAccount(ctx, models.CopierAccount{
		AccountName:  "S1<x>",
		IsActive:     true,
		ContractSize: 2,
		Status:       models.StatusConnected,
	}))

	reply := f.handler.Respond(ctx, operatorChat, "status", nil)
	assert.Contains(t, reply, "running")
	assert.Contains(t, reply, "Master: M1")
	assert.Contains(t, reply, "Active accounts: 1")

	reply = f.handler.Respond(ctx, operatorChat, "accounts", nil)
	assert.Contains(t, reply, "M1 👑")
	assert.Contains(t, reply, "S1&lt;x&gt; x2")
}

func TestTradesAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "📊 No trades yet", f.handler.Respond(ctx, operatorChat, "trades", nil))

	fill := time.Now()
	_, err := f.handler.ledger.Submit(ctx, ledger.Submission{
		MasterAccount: "M1",
		Instrument:    "ES",
		Action:        "Buy",
		Quantity:      2,
		FillPrice:     5000.25,
		FillTime:      &fill,
		SlavesCopied:  []string{"S1"},
	})
	require.NoError(t, err)

	reply := f.handler.Respond(ctx, operatorChat, "trades", []string{"5"})
	assert.Contains(t, reply, "Buy ES x2 @ 5000.25")
	assert.Contains(t, reply, "1 slaves")

	_, err = f.queue.Enqueue(ctx, models.CommandSyncNow, nil)
	require.NoError(t, err)

	reply = f.handler.Respond(ctx, operatorChat, "logs", nil)
	assert.Contains(t, reply, "command_enqueued")
}

func TestHandleUpdateSendsReply(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleUpdate(commandUpdate(operatorChat, "/help"))
	f.handler.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: operatorChat}}})

	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()

	require.Len(t, f.sender.sent, 1)
	assert.EqualValues(t, operatorChat, f.sender.sent[0].chatID)
	assert.Contains(t, f.sender.sent[0].text, "/stop_copier")
}

func TestLimitArg(t *testing.T) {
	assert.Equal(t, 10, limitArg(nil, 10, 50))
	assert.Equal(t, 5, limitArg([]string{"5"}, 10, 50))
	assert.Equal(t, 50, limitArg([]string{"500"}, 10, 50))
	assert.Equal(t, 10, limitArg([]string{"-1"}, 10, 50))
	assert.Equal(t, 10, limitArg([]string{"x"}, 10, 50))
}
