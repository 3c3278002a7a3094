package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
	"github.com/xiaowoniu928/hetzner-web/pkg/telegram"
)

type sentMarkdown struct {
	chatID string
	text   string
}

// scriptedTransport feeds canned getUpdates batches to the poll loop.
type scriptedTransport struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	getErr  error
	sent    []sentMarkdown
}

func (s *scriptedTransport) GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *scriptedTransport) SendMarkdown(ctx context.Context, chatID, md string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMarkdown{chatID: chatID, text: md})
	return nil
}

func (s *scriptedTransport) sentMessages() []sentMarkdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMarkdown(nil), s.sent...)
}

func botConfig() *model.WatchdogConfig {
	return &model.WatchdogConfig{
		Telegram: model.TelegramConfig{
			Enabled:  true,
			BotToken: "tok-1",
			ChatID:   "777",
		},
	}
}

func chatMessage(updateID, messageID int64, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: messageID,
			Text:      text,
			Chat:      telegram.Chat{ID: chatID},
		},
	}
}

func newBotService(cfg *model.WatchdogConfig, cloud *fakeCloud) (*BotService, *memConfigRepo) {
	configRepo := &memConfigRepo{cfg: cfg}
	svc := NewBotService(cloud, configRepo, nil, nil, nil, nil, nil, zap.NewNop())
	return svc, configRepo
}

func TestPollOnce_UnconfiguredBotStaysQuiet(t *testing.T) {
	t.Parallel()

	svc, _ := newBotService(&model.WatchdogConfig{}, &fakeCloud{})
	clientBuilt := false
	svc.newClient = func(token string) botTransport {
		clientBuilt = true
		return &scriptedTransport{}
	}

	if svc.pollOnce(context.Background()) {
		t.Fatal("unconfigured bot must report an idle poll")
	}
	if clientBuilt {
		t.Fatal("no Telegram client may be built without credentials")
	}
}

func TestPollOnce_FiltersChatAndAdvancesOffset(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		batches: [][]telegram.Update{
			{
				chatMessage(5, 1, 999, "/help"),
				{UpdateID: 6},
				chatMessage(7, 2, 777, "/help"),
			},
			{
				// Same message replayed under a fresh update id.
				chatMessage(8, 2, 777, "/help"),
			},
		},
	}

	svc, _ := newBotService(botConfig(), &fakeCloud{})
	svc.newClient = func(token string) botTransport { return transport }

	if !svc.pollOnce(context.Background()) {
		t.Fatal("first poll should succeed")
	}
	if svc.offset != 8 {
		t.Fatalf("offset must advance past every update, got %d", svc.offset)
	}
	sent := transport.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("only the configured chat gets a reply, got %d", len(sent))
	}
	if sent[0].chatID != "777" || !strings.Contains(sent[0].text, "Command catalog") {
		t.Fatalf("unexpected reply %+v", sent[0])
	}

	if !svc.pollOnce(context.Background()) {
		t.Fatal("second poll should succeed")
	}
	if svc.offset != 9 {
		t.Fatalf("offset must advance on the replay too, got %d", svc.offset)
	}
	if got := len(transport.sentMessages()); got != 1 {
		t.Fatalf("replayed message must not produce a second reply, got %d sends", got)
	}
}

func TestPollOnce_PollFailureBacksOff(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{getErr: errors.New("telegram 502")}
	svc, _ := newBotService(botConfig(), &fakeCloud{})
	svc.newClient = func(token string) botTransport { return transport }

	if svc.pollOnce(context.Background()) {
		t.Fatal("a failed poll must ask the loop to back off")
	}
}

func TestResolveClient_RebuildsOnTokenChange(t *testing.T) {
	t.Parallel()

	var tokens []string
	svc, configRepo := newBotService(botConfig(), &fakeCloud{})
	svc.newClient = func(token string) botTransport {
		tokens = append(tokens, token)
		return &scriptedTransport{}
	}

	svc.pollOnce(context.Background())
	svc.pollOnce(context.Background())
	configRepo.cfg.Telegram.BotToken = "tok-2"
	svc.pollOnce(context.Background())

	if len(tokens) != 2 || tokens[0] != "tok-1" || tokens[1] != "tok-2" {
		t.Fatalf("client must be rebuilt only when the token rotates, got %v", tokens)
	}
}

func TestHandleCommand_HelpAndMentionSuffix(t *testing.T) {
	t.Parallel()

	svc, _ := newBotService(botConfig(), &fakeCloud{})

	help := svc.HandleCommand(context.Background(), "/help")
	if !strings.Contains(help, "Command catalog") || !strings.Contains(help, "/rebuild") {
		t.Fatalf("help text incomplete: %q", help)
	}
	if got := svc.HandleCommand(context.Background(), "/start@watchbot"); got != help {
		t.Fatalf("bot mention suffix must be stripped, got %q", got)
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	t.Parallel()

	svc, _ := newBotService(botConfig(), &fakeCloud{})
	got := svc.HandleCommand(context.Background(), "/frobnicate")
	if got != "⚠️ Unknown command. Send /help for the catalog." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestHandleCommand_ListShowsPowerState(t *testing.T) {
	t.Parallel()

	stopped := testServer(2, "bravo", "", nil)
	stopped.Status = "off"
	cloud := &fakeCloud{
		getServersFn: func(ctx context.Context) ([]hetzner.Server, error) {
			return []hetzner.Server{testServer(1, "alpha", "1.1.1.1", nil), stopped}, nil
		},
	}
	svc, _ := newBotService(botConfig(), cloud)

	got := svc.HandleCommand(context.Background(), "/list")
	for _, want := range []string{"🟢 Running", "🔴 Stopped", "📛 *alpha*", "`1.1.1.1`", "📛 *bravo*", "`N/A`"} {
		if !strings.Contains(got, want) {
			t.Fatalf("list reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleCommand_StatusJoinsAlertLevels(t *testing.T) {
	t.Parallel()

	cloud := &fakeCloud{
		getServersFn: func(ctx context.Context) ([]hetzner.Server, error) {
			stopped := testServer(2, "bravo", "", nil)
			stopped.Status = "off"
			return []hetzner.Server{testServer(1, "alpha", "1.1.1.1", nil), stopped}, nil
		},
	}
	svc, _ := newBotService(botConfig(), cloud)

	got := svc.HandleCommand(context.Background(), "/status")
	for _, want := range []string{"🖥 Servers: 2", "🟢 Running: 1", "🔴 Stopped: 1", "🔔 Alert levels: 80/90/95/100%"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleCommand_DeleteRequiresConfirm(t *testing.T) {
	t.Parallel()

	var deleted []int64
	cloud := &fakeCloud{
		deleteServerFn: func(ctx context.Context, serverID int64) error {
			deleted = append(deleted, serverID)
			return nil
		},
	}
	svc, _ := newBotService(botConfig(), cloud)

	if got := svc.HandleCommand(context.Background(), "/delete 42"); got != "⚠️ Usage: /delete <ID> confirm" {
		t.Fatalf("missing confirm must not delete, got %q", got)
	}
	if len(deleted) != 0 {
		t.Fatalf("no deletion without confirm, got %v", deleted)
	}

	if got := svc.HandleCommand(context.Background(), "/delete 42 CONFIRM"); got != "✅ Server deleted" {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(deleted) != 1 || deleted[0] != 42 {
		t.Fatalf("expected server 42 deleted, got %v", deleted)
	}
}

func TestHandleCommand_RebuildByIDAndName(t *testing.T) {
	t.Parallel()

	edge := testServer(42, "edge", "1.1.1.1", nil)
	cloud := &fakeCloud{
		getServerFn: func(ctx context.Context, serverID int64) (*hetzner.Server, error) {
			if serverID != 42 {
				return nil, hetzner.ErrNotFound
			}
			return &edge, nil
		},
		getServersFn: func(ctx context.Context) ([]hetzner.Server, error) {
			return []hetzner.Server{edge}, nil
		},
	}
	rebuilder := &fakeRebuilder{}

	configRepo := &memConfigRepo{cfg: botConfig()}
	svc := NewBotService(cloud, configRepo, nil, rebuilder, nil, nil, nil, zap.NewNop())

	if got := svc.HandleCommand(context.Background(), "/rebuild 42"); got != "✅ Rebuild triggered" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := svc.HandleCommand(context.Background(), "/rebuild edge"); got != "✅ Rebuild triggered" {
		t.Fatalf("unexpected reply %q", got)
	}

	calls := rebuilder.calledWith()
	if len(calls) != 2 {
		t.Fatalf("expected two rebuild calls, got %d", len(calls))
	}
	for _, call := range calls {
		if call.serverID != 42 || call.name != "edge" || call.source != RebuildSourceBot {
			t.Fatalf("unexpected rebuild call %+v", call)
		}
	}

	if got := svc.HandleCommand(context.Background(), "/rebuild ghost"); got != "❌ Server not found" {
		t.Fatalf("unknown name must not rebuild, got %q", got)
	}
}

func TestHandleCommand_RebuildAlreadyRunning(t *testing.T) {
	t.Parallel()

	edge := testServer(42, "edge", "1.1.1.1", nil)
	cloud := &fakeCloud{
		getServerFn: func(ctx context.Context, serverID int64) (*hetzner.Server, error) {
			return &edge, nil
		},
	}
	rebuilder := &fakeRebuilder{err: ErrRebuildInProgress}

	configRepo := &memConfigRepo{cfg: botConfig()}
	svc := NewBotService(cloud, configRepo, nil, rebuilder, nil, nil, nil, zap.NewNop())

	got := svc.HandleCommand(context.Background(), "/rebuild 42")
	if got != "⏳ A rebuild for this server is already running" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestHandleCommand_ScheduleSetReplacesTasks(t *testing.T) {
	t.Parallel()

	cfg := botConfig()
	legacy := model.FlexTimes{"22:00"}
	cfg.Scheduler.DeleteTime = legacy
	svc, configRepo := newBotService(cfg, &fakeCloud{})

	got := svc.HandleCommand(context.Background(), "/scheduleset delete=23:50,01:00 create=08:00")
	if got != "✅ Schedule updated" {
		t.Fatalf("unexpected reply %q", got)
	}
	if configRepo.saves != 1 {
		t.Fatalf("expected one save, got %d", configRepo.saves)
	}

	sched := configRepo.cfg.Scheduler
	if !sched.Enabled {
		t.Fatal("setting a schedule enables it")
	}
	if sched.DeleteTime != nil || sched.CreateTime != nil {
		t.Fatal("legacy one-shot fields must be cleared")
	}
	if len(sched.Tasks) != 2 {
		t.Fatalf("expected two tasks, got %+v", sched.Tasks)
	}
	if sched.Tasks[0].Action != model.TaskDeleteAll ||
		len(sched.Tasks[0].Times) != 2 || sched.Tasks[0].Times[0] != "23:50" || sched.Tasks[0].Times[1] != "01:00" {
		t.Fatalf("unexpected delete task %+v", sched.Tasks[0])
	}
	if sched.Tasks[1].Action != model.TaskCreateFromSnapshots ||
		len(sched.Tasks[1].Times) != 1 || sched.Tasks[1].Times[0] != "08:00" {
		t.Fatalf("unexpected create task %+v", sched.Tasks[1])
	}
}

func TestHandleCommand_ScheduleStatusShowsNextRuns(t *testing.T) {
	t.Parallel()

	cfg := botConfig()
	cfg.Scheduler = model.SchedulerConfig{
		Enabled: true,
		Tasks: []model.ScheduledTask{
			{Action: model.TaskDeleteAll, Times: model.FlexTimes{"23:50"}},
		},
	}
	svc, _ := newBotService(cfg, &fakeCloud{})
	svc.nowFunc = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	}

	got := svc.HandleCommand(context.Background(), "/schedulestatus")
	if !strings.Contains(got, "📋 Schedule: enabled") {
		t.Fatalf("missing schedule state:\n%s", got)
	}
	if !strings.Contains(got, "- delete_all: 03-14 23:50") {
		t.Fatalf("missing next-run label:\n%s", got)
	}
}

func TestNextRunLabel_RollsPastTimesToTomorrow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	if got := nextRunLabel(now, "08:00"); got != "03-15 08:00" {
		t.Fatalf("past time must roll to tomorrow, got %q", got)
	}
	if got := nextRunLabel(now, "23:50"); got != "03-14 23:50" {
		t.Fatalf("future time stays today, got %q", got)
	}
	if got := nextRunLabel(now, "not-a-time"); got != "not-a-time" {
		t.Fatalf("malformed times pass through, got %q", got)
	}
}
