package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
	"github.com/xiaowoniu928/hetzner-web/pkg/telegram"
)

const (
	botPollTimeout   = 25
	botIdleDelay     = 10 * time.Second
	botMessagePacing = 3 * time.Second
)

const botHelpText = `📖 **Command catalog**

📊 Queries:
/list - 🖥 Server list
/status - 📈 System status
/traffic ID - 📊 Traffic detail (all servers without ID)
/today ID - 📅 Today's traffic (all servers without ID)
/report - 🕒 Manual traffic report
/reportstatus - 📋 Last report time
/reportreset - ♻️ Reset the report window
/dnstest ID - 🔧 Test a DNS update
/dnscheck ID - ✅ DNS resolution check

🔧 Control:
/startserver <ID> - ▶️ Power a server on
/stopserver <ID> - ⏸️ Power a server off
/reboot <ID> - 🔄 Reboot a server
/delete <ID> confirm - 🗑 Delete a server
/rebuild <ID> - 🔨 Rebuild a server

💾 Snapshots:
/snapshots - 📦 List snapshots
/createsnapshot <ID> - 📸 Create a snapshot

⏰ Schedule:
/scheduleon - ✅ Enable scheduled tasks
/scheduleoff - ⏸️ Disable scheduled tasks
/schedulestatus - 📋 Show schedule state
/scheduleset delete=23:50,01:00 create=08:00,09:00 - Set task times
/createfromsnapshots - 🧩 Recreate all mapped servers
/createfromsnapshot <ID> - 🧩 Recreate one mapped server

💡 Get server IDs from /list`

// botTransport is the Telegram API slice the poll loop needs. Tests
// substitute a scripted fake.
type botTransport interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
	SendMarkdown(ctx context.Context, chatID, md string) error
}

// BotService runs the interactive Telegram side of the watchdog: a
// getUpdates long-poll loop restricted to the configured chat, plus
// the command dispatcher. State (update offset, duplicate guard) lives
// on the service so a config edit mid-run does not replay old updates.
type BotService struct {
	cloud      CloudAPI
	configRepo repository.WatchdogConfigRepository
	reports    *ReportService
	rebuilder  Rebuilder
	dns        *DNSService
	provision  *ProvisionService
	notifier   Notifier
	logger     *zap.Logger

	clientMu  sync.Mutex
	client    botTransport
	clientKey string
	newClient func(token string) botTransport

	offset          int64
	lastMessageID   int64
	lastMessageText string

	nowFunc func() time.Time
}

func NewBotService(
	cloud CloudAPI,
	configRepo repository.WatchdogConfigRepository,
	reports *ReportService,
	rebuilder Rebuilder,
	dns *DNSService,
	provision *ProvisionService,
	notifier Notifier,
	logger *zap.Logger,
) *BotService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BotService{
		cloud:      cloud,
		configRepo: configRepo,
		reports:    reports,
		rebuilder:  rebuilder,
		dns:        dns,
		provision:  provision,
		notifier:   notifier,
		logger:     logger,
		newClient: func(token string) botTransport {
			return telegram.NewBotClient(token, nil)
		},
		nowFunc: time.Now,
	}
}

// Run polls Telegram until the context ends. Errors never stop the
// loop; they log and back off.
func (s *BotService) Run(ctx context.Context) {
	s.logger.Info("telegram bot loop started")
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("telegram bot loop stopped")
			return
		}
		if !s.pollOnce(ctx) {
			if sleepCtx(ctx, botIdleDelay) != nil {
				return
			}
			continue
		}
		if sleepCtx(ctx, botMessagePacing) != nil {
			return
		}
	}
}

// pollOnce performs one getUpdates round. Returns false when the bot is
// unconfigured or the poll failed, so the caller backs off.
func (s *BotService) pollOnce(ctx context.Context) bool {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		s.logger.Warn("bot config load failed", zap.Error(err))
		return false
	}
	if !cfg.Telegram.Ready() {
		return false
	}

	chatID := strings.TrimSpace(cfg.Telegram.ChatID.String())
	client := s.resolveClient(strings.TrimSpace(cfg.Telegram.BotToken))

	updates, err := client.GetUpdates(ctx, s.offset, botPollTimeout)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("telegram poll failed", zap.Error(err))
		}
		return false
	}

	for _, update := range updates {
		s.offset = update.UpdateID + 1
		msg := update.Message
		if msg == nil || msg.Text == "" {
			continue
		}
		if msg.ChatID() != chatID {
			continue
		}
		if msg.MessageID == s.lastMessageID && msg.Text == s.lastMessageText {
			continue
		}
		s.lastMessageID = msg.MessageID
		s.lastMessageText = msg.Text

		reply := s.HandleCommand(ctx, msg.Text)
		if reply == "" {
			continue
		}
		if err := client.SendMarkdown(ctx, chatID, reply); err != nil {
			s.logger.Warn("bot reply failed", zap.Error(err))
		}
	}
	return true
}

func (s *BotService) resolveClient(token string) botTransport {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.client == nil || s.clientKey != token {
		s.client = s.newClient(token)
		s.clientKey = token
	}
	return s.client
}

// HandleCommand dispatches one message text and returns the Markdown
// reply.
func (s *BotService) HandleCommand(ctx context.Context, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "⚠️ Unknown command. Send /help for the catalog."
	}
	command, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]
	metrics.IncBotCommand(command)
	s.logger.Info("bot command", zap.String("command", command), zap.Int("args", len(args)))

	switch command {
	case "/start", "/help":
		return botHelpText
	case "/list":
		return s.listText(ctx)
	case "/status", "/ll":
		return s.statusText(ctx)
	case "/traffic":
		return s.trafficText(ctx, args)
	case "/today":
		return s.todayText(ctx, args)
	case "/report":
		report, err := s.reports.ManualReportText(ctx)
		if err != nil {
			s.logger.Warn("manual report failed", zap.Error(err))
			return "❌ Report failed: " + err.Error()
		}
		return report
	case "/reportstatus":
		last, err := s.reports.LastReportTime(ctx)
		if err != nil {
			return "❌ " + err.Error()
		}
		if last == "" {
			return "📋 No reports yet"
		}
		return "📋 Last report: " + last
	case "/reportreset":
		if err := s.reports.ResetReportBaseline(ctx); err != nil {
			return "❌ Reset failed: " + err.Error()
		}
		return "♻️ Report baseline reset"
	case "/dnstest":
		return s.dnsTestText(ctx, args)
	case "/dnscheck":
		return s.dnsCheckText(ctx, args)
	case "/startserver":
		return s.powerText(ctx, args, "/startserver", s.cloud.PowerOnServer,
			"✅ Server powered on", "❌ Power on failed")
	case "/stopserver":
		return s.powerText(ctx, args, "/stopserver", s.cloud.PowerOffServer,
			"✅ Server powered off", "❌ Power off failed")
	case "/reboot":
		return s.powerText(ctx, args, "/reboot", s.cloud.RebootServer,
			"✅ Server rebooted", "❌ Reboot failed")
	case "/delete":
		return s.deleteText(ctx, args)
	case "/rebuild":
		return s.rebuildText(ctx, args)
	case "/snapshots":
		return s.snapshotsText(ctx)
	case "/createsnapshot":
		return s.createSnapshotText(ctx, args)
	case "/createfromsnapshot":
		return s.createFromSnapshotText(ctx, args)
	case "/createfromsnapshots":
		return s.createFromSnapshotsText(ctx)
	case "/scheduleon":
		return s.setScheduleEnabled(ctx, true)
	case "/scheduleoff":
		return s.setScheduleEnabled(ctx, false)
	case "/schedulestatus":
		return s.scheduleStatusText(ctx)
	case "/scheduleset":
		return s.scheduleSetText(ctx, args)
	case "/dnsync":
		updated, skipped, err := s.dns.SyncAll(ctx)
		if err != nil {
			return "❌ DNS sync failed: " + err.Error()
		}
		return fmt.Sprintf("✅ DNS sync finished: %d updated, %d skipped", updated, skipped)
	}
	return "⚠️ Unknown command. Send /help for the catalog."
}

func (s *BotService) listText(ctx context.Context) string {
	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	if len(servers) == 0 {
		return "📭 No servers"
	}

	var b strings.Builder
	b.WriteString("🖥 *Server list*\n")
	for _, server := range servers {
		status := "🔴 Stopped"
		if server.Status == "running" {
			status = "🟢 Running"
		}
		ip := server.IPv4()
		if ip == "" {
			ip = "N/A"
		}
		serverType := server.ServerType.Name
		if serverType == "" {
			serverType = "N/A"
		}
		fmt.Fprintf(&b, "\n%s\n📛 *%s*\n🆔 ID: `%d`\n🌐 IP: `%s`\n⚙️ Type: %s\n─────────────",
			status, server.Name, server.ID, ip, serverType)
	}
	return b.String()
}

func (s *BotService) statusText(ctx context.Context) string {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}

	running := 0
	for _, server := range servers {
		if server.Status == "running" {
			running++
		}
	}

	levels := cfg.Telegram.NotifyLevels.Levels()
	parts := make([]string, len(levels))
	for i, level := range levels {
		parts[i] = strconv.Itoa(level)
	}
	return fmt.Sprintf(
		"📊 *System status*\n\n🖥 Servers: %d\n🟢 Running: %d\n🔴 Stopped: %d\n\n🔔 Alert levels: %s%%\n✅ Watchdog operational",
		len(servers), running, len(servers)-running, strings.Join(parts, "/"))
}

func (s *BotService) trafficText(ctx context.Context, args []string) string {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	var limitTB *decimal.Decimal
	if cfg.Traffic.LimitGB > 0 {
		v := limitTBFromGB(cfg.Traffic.LimitGB)
		limitTB = &v
	}

	if len(args) == 0 {
		servers, err := s.cloud.GetServers(ctx)
		if err != nil {
			return "❌ " + err.Error()
		}

		var b strings.Builder
		b.WriteString("📊 *Traffic summary* (outbound billed)\n")
		for _, server := range servers {
			name, outgoing := server.Name, server.OutgoingTraffic
			if detail, err := s.cloud.GetServer(ctx, server.ID); err == nil && detail != nil {
				if detail.Name != "" {
					name = detail.Name
				}
				outgoing = detail.OutgoingTraffic
			}
			if name == "" {
				name = strconv.FormatInt(server.ID, 10)
			}
			if outgoing == nil || limitTB == nil {
				fmt.Fprintf(&b, "\n- `%s`", name)
				continue
			}
			totalTB := traffic.BytesToTB(*outgoing)
			pct, _ := totalTB.Div(*limitTB).Mul(decimal.NewFromInt(100)).Float64()
			fmt.Fprintf(&b, "\n🖥 *%s* (`%d`)\n💾 Used (outbound): *%s TB* / %s TB\n📈 Usage: *%.2f%%*",
				name, server.ID, traffic.TBString(totalTB), traffic.TBString(*limitTB), pct)
		}
		return b.String()
	}

	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: /traffic <ID>"
	}
	detail, err := s.cloud.GetServer(ctx, serverID)
	if err != nil || detail == nil {
		return "❌ Server not found"
	}

	limitText, usageText := "N/A", "N/A"
	if limitTB != nil {
		limitText = traffic.TBString(*limitTB)
		if detail.OutgoingTraffic != nil {
			pct, _ := traffic.BytesToTB(*detail.OutgoingTraffic).
				Div(*limitTB).Mul(decimal.NewFromInt(100)).Float64()
			usageText = fmt.Sprintf("%.2f%%", pct)
		}
	}
	return fmt.Sprintf(
		"📊 *Traffic detail*\n\n🖥 *%s* (`%d`)\n💾 Used (outbound): *%s TB* / %s TB\n📈 Usage: *%s*\n📥 Inbound: %s TB",
		detail.Name, serverID, tbOrZero(detail.OutgoingTraffic), limitText,
		usageText, tbOrZero(detail.IngoingTraffic))
}

func (s *BotService) todayText(ctx context.Context, args []string) string {
	if len(args) == 0 {
		servers, err := s.cloud.GetServers(ctx)
		if err != nil {
			return "❌ " + err.Error()
		}

		var b strings.Builder
		b.WriteString("📅 *Today's traffic*\n")
		for _, server := range servers {
			name := server.Name
			if name == "" {
				name = strconv.FormatInt(server.ID, 10)
			}
			usage, err := s.reports.TodayTraffic(ctx, server.ID)
			if err != nil {
				fmt.Fprintf(&b, "\n🖥 *%s* (`%d`)\n❌ metrics unavailable", name, server.ID)
				continue
			}
			fmt.Fprintf(&b, "\n🖥 *%s* (`%d`)\n⬆️ %s TB | ⬇️ %s TB",
				name, server.ID,
				traffic.TBString(traffic.BytesToTB(usage.OutBytes)),
				traffic.TBString(traffic.BytesToTB(usage.InBytes)))
		}
		return b.String()
	}

	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: /today <ID>"
	}
	detail, err := s.cloud.GetServer(ctx, serverID)
	if err != nil || detail == nil {
		return "❌ Server not found"
	}
	usage, err := s.reports.TodayTraffic(ctx, serverID)
	if err != nil {
		return "❌ " + err.Error()
	}
	return fmt.Sprintf("📅 *Today's traffic*\n\n🖥 *%s* (`%d`)\n⬆️ %s TB | ⬇️ %s TB",
		detail.Name, serverID,
		traffic.TBString(traffic.BytesToTB(usage.OutBytes)),
		traffic.TBString(traffic.BytesToTB(usage.InBytes)))
}

func (s *BotService) dnsTestText(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "⚠️ Usage: /dnstest <ID>"
	}
	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: /dnstest <ID>"
	}
	detail, err := s.cloud.GetServer(ctx, serverID)
	if err != nil || detail == nil {
		return "❌ Server not found"
	}

	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	target, ok := cfg.Cloudflare.TargetFor(strconv.FormatInt(serverID, 10), detail.Name)
	ip := detail.IPv4()
	if !ok || ip == "" {
		return "❌ DNS configuration missing"
	}

	if result := s.dns.UpdateRecord(ctx, target, ip); !result.Success {
		return fmt.Sprintf("⚠️ DNS update failed: %s (%s)", target.Record, result.Error)
	}
	return fmt.Sprintf("✅ DNS updated: %s -> %s", target.Record, ip)
}

func (s *BotService) dnsCheckText(ctx context.Context, args []string) string {
	var serverID *int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return "⚠️ Usage: /dnscheck <ID>"
		}
		serverID = &id
	}

	rows, err := s.dns.CheckServers(ctx, serverID)
	if err != nil {
		return "❌ " + err.Error()
	}

	var b strings.Builder
	b.WriteString("✅ **DNS resolution check**")
	for _, row := range rows {
		name := row.Name
		if name == "" {
			name = strconv.FormatInt(row.ID, 10)
		}
		switch {
		case row.Status == "missing":
			fmt.Fprintf(&b, "\n- `%s`: missing record or IP", name)
		case row.Error != "":
			fmt.Fprintf(&b, "\n- `%s`: ❌ %s", name, row.Error)
		default:
			mark := "❌"
			if row.OK != nil && *row.OK {
				mark = "✅"
			}
			fmt.Fprintf(&b, "\n- `%s`: %s %s -> %s (expected %s)",
				name, mark, row.Record, row.Resolved, row.Expected)
		}
	}
	return b.String()
}

func (s *BotService) powerText(
	ctx context.Context,
	args []string,
	usage string,
	action func(ctx context.Context, serverID int64) error,
	okText, failText string,
) string {
	if len(args) == 0 {
		return "⚠️ Usage: " + usage + " <ID>"
	}
	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: " + usage + " <ID>"
	}
	if err := action(ctx, serverID); err != nil {
		return failText
	}
	return okText
}

func (s *BotService) deleteText(ctx context.Context, args []string) string {
	if len(args) < 2 || !strings.EqualFold(args[1], "confirm") {
		return "⚠️ Usage: /delete <ID> confirm"
	}
	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: /delete <ID> confirm"
	}
	if err := s.cloud.DeleteServer(ctx, serverID); err != nil {
		return "❌ Delete failed"
	}
	return "✅ Server deleted"
}

// rebuildText accepts a numeric id or an exact server name.
func (s *BotService) rebuildText(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "⚠️ Usage: /rebuild <ID>"
	}

	var serverID int64
	var name string
	if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
		detail, err := s.cloud.GetServer(ctx, id)
		if err != nil || detail == nil {
			return "❌ Server not found"
		}
		serverID = id
		name = detail.Name
		if name == "" {
			name = args[0]
		}
	} else {
		wanted := strings.TrimSpace(strings.Join(args, " "))
		servers, err := s.cloud.GetServers(ctx)
		if err != nil {
			return "❌ " + err.Error()
		}
		var match *hetzner.Server
		for i := range servers {
			if servers[i].Name == wanted {
				match = &servers[i]
				break
			}
		}
		if match == nil {
			return "❌ Server not found"
		}
		serverID = match.ID
		name = wanted
	}

	if _, err := s.rebuilder.Rebuild(ctx, serverID, name, RebuildSourceBot); err != nil {
		if errors.Is(err, ErrRebuildInProgress) {
			return "⏳ A rebuild for this server is already running"
		}
		return "❌ Rebuild failed: " + err.Error()
	}
	return "✅ Rebuild triggered"
}

func (s *BotService) snapshotsText(ctx context.Context) string {
	snapshots, err := s.cloud.GetSnapshots(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	if len(snapshots) == 0 {
		return "📦 No snapshots"
	}
	if len(snapshots) > 10 {
		snapshots = snapshots[:10]
	}

	var b strings.Builder
	b.WriteString("📦 Snapshot list\n")
	for i, snapshot := range snapshots {
		description := snapshot.Description
		if description == "" {
			description = "snapshot"
		}
		fmt.Fprintf(&b, "\n%d. 📸 %s\n   🆔 ID: %d", i+1, description, snapshot.ID)
	}
	return b.String()
}

func (s *BotService) createSnapshotText(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "⚠️ Usage: /createsnapshot <ID>"
	}
	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "⚠️ Usage: /createsnapshot <ID>"
	}
	description := strings.TrimSpace(strings.Join(args[1:], " "))

	image, err := s.cloud.CreateSnapshot(ctx, serverID, description)
	if err != nil || image == nil {
		return "❌ Snapshot creation failed"
	}
	return fmt.Sprintf("✅ Snapshot triggered: `%d`", image.ID)
}

// createFromSnapshotText kicks the recreation off in the background and
// replies immediately; the outcome arrives as a notification.
func (s *BotService) createFromSnapshotText(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "⚠️ Usage: /createfromsnapshot <ID>"
	}
	oldID := args[0]

	background := context.WithoutCancel(ctx)
	go func() {
		created, err := s.provision.CreateFromSnapshot(background, oldID)
		if err != nil {
			s.logger.Warn("snapshot recreation failed", zap.String("old_id", oldID), zap.Error(err))
			s.notifyText(background, "❌ Server creation failed: "+err.Error())
			return
		}
		s.notifyText(background, fmt.Sprintf("✅ Server created: %s", created.NewID))
	}()
	return "🚀 Creating the server, results will follow"
}

func (s *BotService) createFromSnapshotsText(ctx context.Context) string {
	background := context.WithoutCancel(ctx)
	go func() {
		created, err := s.provision.CreateFromSnapshots(background)
		if err != nil {
			s.logger.Warn("bulk snapshot recreation failed", zap.Error(err))
			s.notifyText(background, "❌ Server creation failed: "+err.Error())
			return
		}
		s.notifyText(background, fmt.Sprintf("✅ Created %d server(s) from the snapshot map", len(created)))
	}()
	return "🚀 Creating servers from the snapshot map, results will follow"
}

func (s *BotService) setScheduleEnabled(ctx context.Context, enabled bool) string {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	cfg.Scheduler.Enabled = enabled
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return "❌ " + err.Error()
	}
	if enabled {
		return "✅ Scheduled tasks enabled"
	}
	return "⏸️ Scheduled tasks disabled"
}

func (s *BotService) scheduleStatusText(ctx context.Context) string {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}

	state := "disabled"
	if cfg.Scheduler.Enabled {
		state = "enabled"
	}
	tasks := cfg.Scheduler.NormalizedTasks()
	if len(tasks) == 0 {
		return fmt.Sprintf("📋 Schedule: %s\nno tasks", state)
	}

	now := s.nowFunc()
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Schedule: %s", state)
	for _, task := range tasks {
		next := make([]string, 0, len(task.Times))
		for _, at := range task.Times {
			next = append(next, nextRunLabel(now, at))
		}
		fmt.Fprintf(&b, "\n- %s: %s", task.Action, strings.Join(next, ", "))
	}
	return b.String()
}

func (s *BotService) scheduleSetText(ctx context.Context, args []string) string {
	var deleteTimes, createTimes []string
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			continue
		}
		var times []string
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				times = append(times, t)
			}
		}
		switch key {
		case "delete":
			deleteTimes = times
		case "create":
			createTimes = times
		}
	}

	var tasks []model.ScheduledTask
	if len(deleteTimes) > 0 {
		tasks = append(tasks, model.ScheduledTask{
			Action: model.TaskDeleteAll, Times: model.FlexTimes(deleteTimes)})
	}
	if len(createTimes) > 0 {
		tasks = append(tasks, model.ScheduledTask{
			Action: model.TaskCreateFromSnapshots, Times: model.FlexTimes(createTimes)})
	}

	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "❌ " + err.Error()
	}
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Tasks = tasks
	cfg.Scheduler.DeleteTime = nil
	cfg.Scheduler.CreateTime = nil
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return "❌ " + err.Error()
	}
	return "✅ Schedule updated"
}

func (s *BotService) notifyText(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendText(ctx, text); err != nil &&
		!errors.Is(err, ErrTelegramNotConfigured) {
		s.logger.Warn("bot notification failed", zap.Error(err))
	}
}

// nextRunLabel renders the next occurrence of a daily HH:MM time as
// `MM-DD HH:MM`, passing malformed entries through untouched.
func nextRunLabel(now time.Time, at string) string {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return at
	}
	next := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Format("01-02 15:04")
}
