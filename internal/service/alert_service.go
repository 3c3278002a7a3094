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

	"github.com/xiaowoniu928/hetzner-web/internal/event"
	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

// levelEmojis decorates threshold notifications, one glyph per ladder
// step.
var levelEmojis = map[int]string{
	10:  "💧",
	20:  "💦",
	30:  "🌊",
	40:  "🟢",
	50:  "🟡",
	60:  "🟠",
	70:  "🔶",
	80:  "🔴",
	90:  "🚨",
	100: "💀",
}

// serverAlertState is the monitor's memory for one server id. A drop in
// the cumulative counter means the server was rebuilt elsewhere, which
// re-arms both the notification ladder and the exceed latch.
type serverAlertState struct {
	lastLevel    int
	lastOutgoing *float64
	autoRebuild  bool
}

// AlertService watches cumulative outbound usage against the configured
// limit: it escalates threshold notifications and triggers the exceed
// action at 100%. One pass = one CheckOnce call; the scheduler owns the
// cadence.
type AlertService struct {
	cloud      CloudAPI
	configRepo repository.WatchdogConfigRepository
	notifier   Notifier
	rebuilder  Rebuilder
	bus        *event.Bus
	logger     *zap.Logger

	mu      sync.Mutex
	states  map[string]*serverAlertState
	tracked map[string]struct{}
}

func NewAlertService(
	cloud CloudAPI,
	configRepo repository.WatchdogConfigRepository,
	notifier Notifier,
	rebuilder Rebuilder,
	bus *event.Bus,
	logger *zap.Logger,
) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertService{
		cloud:      cloud,
		configRepo: configRepo,
		notifier:   notifier,
		rebuilder:  rebuilder,
		bus:        bus,
		logger:     logger,
		states:     make(map[string]*serverAlertState),
		tracked:    make(map[string]struct{}),
	}
}

// CheckOnce runs one monitor pass over the whole fleet. A missing
// traffic limit disables the pass entirely.
func (s *AlertService) CheckOnce(ctx context.Context) error {
	started := time.Now()

	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load watchdog config: %w", err)
	}
	if cfg.Traffic.LimitGB <= 0 {
		return nil
	}

	limitBytes, _ := decimal.NewFromFloat(cfg.Traffic.LimitGB).
		Mul(decimal.NewFromInt(1024).Pow(decimal.NewFromInt(3))).Float64()
	if limitBytes <= 0 {
		return nil
	}
	levels := cfg.Telegram.NotifyLevels.Levels()

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}

	seen := make(map[string]struct{}, len(servers))
	for _, server := range servers {
		id := strconv.FormatInt(server.ID, 10)
		name := server.Name

		detail, err := s.cloud.GetServer(ctx, server.ID)
		if err != nil || detail == nil {
			s.logger.Warn("monitor detail fetch failed", zap.String("server_id", id), zap.Error(err))
			continue
		}
		if detail.Name != "" {
			name = detail.Name
		}
		if name == "" {
			name = id
		}
		outgoing := detail.OutgoingTraffic
		if outgoing == nil {
			continue
		}

		percent := *outgoing / limitBytes * 100
		seen[name] = struct{}{}
		metrics.SetServerTrafficPercent(name, percent)

		state := s.stateFor(id)
		if state.lastOutgoing != nil && *outgoing < *state.lastOutgoing {
			state.lastLevel = 0
			state.autoRebuild = false
		}
		value := *outgoing
		state.lastOutgoing = &value

		s.maybeNotifyLevel(ctx, cfg, state, id, name, detail, percent, levels)
		s.maybeActOnExceed(ctx, cfg, state, server.ID, name, *outgoing, limitBytes, percent)
	}

	s.dropStaleGauges(seen)
	metrics.ObserveCheckDuration(time.Since(started))
	return nil
}

// maybeNotifyLevel fires the highest newly-reached threshold. The level
// is only marked consumed after a successful delivery, so transient
// Telegram failures retry on the next pass.
func (s *AlertService) maybeNotifyLevel(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	state *serverAlertState,
	serverID, name string,
	detail *hetzner.Server,
	percent float64,
	levels []int,
) {
	reached := 0
	for _, level := range levels {
		if percent >= float64(level) {
			reached = level
		}
	}
	if reached == 0 || reached <= state.lastLevel {
		return
	}

	limitTB := limitTBFromGB(cfg.Traffic.LimitGB)
	outboundTB := traffic.BytesToTB(or0(detail.OutgoingTraffic))
	vars := map[string]string{
		"emoji":               levelEmoji(reached),
		"level":               strconv.Itoa(reached),
		"name":                name,
		"bar":                 progressBar(percent),
		"percent":             fmt.Sprintf("%.1f", percent),
		"outbound_tb":         traffic.TBString(outboundTB),
		"limit_tb":            traffic.TBString(limitTB),
		"remaining_tb":        traffic.TBString(traffic.QuantizeTB(limitTB.Sub(outboundTB))),
		"inbound_tb":          tbOrZero(detail.IngoingTraffic),
		"outbound_precise_tb": tbOrZero(detail.OutgoingTraffic),
	}

	if err := s.notifier.SendTemplate(ctx, NotificationTrafficAlert, vars); err != nil {
		if !errors.Is(err, ErrTelegramNotConfigured) {
			s.logger.Warn("traffic alert delivery failed",
				zap.String("server_id", serverID),
				zap.Int("level", reached),
				zap.Error(err))
		}
		return
	}

	state.lastLevel = reached
	metrics.IncTrafficAlert(reached)
	if s.bus != nil {
		s.bus.Publish(event.EventTrafficAlert, event.TrafficAlertPayload{
			ServerID: serverID,
			Name:     name,
			Level:    reached,
			Percent:  percent,
		})
	}
	s.logger.Info("traffic alert sent",
		zap.String("server_id", serverID),
		zap.String("server_name", name),
		zap.Int("level", reached),
		zap.Float64("percent", percent))
}

// maybeActOnExceed runs the configured exceed action once per cycle.
// The latch only sets on success, so a failed rebuild or delete retries
// on the next pass.
func (s *AlertService) maybeActOnExceed(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	state *serverAlertState,
	serverID int64,
	name string,
	outgoing, limitBytes, percent float64,
) {
	if outgoing < limitBytes || state.autoRebuild {
		return
	}
	action := cfg.Traffic.ExceedAction
	if action == "" {
		return
	}

	if s.bus != nil {
		s.bus.Publish(event.EventTrafficExceeded, event.TrafficExceededPayload{
			ServerID: strconv.FormatInt(serverID, 10),
			Name:     name,
			Percent:  percent,
			Action:   string(action),
		})
	}

	switch action {
	case model.ExceedActionRebuild, model.ExceedActionDeleteRebuild:
		if err := s.notifier.SendTemplate(ctx, NotificationLimitExceeded, map[string]string{
			"name":    name,
			"percent": fmt.Sprintf("%.2f", percent),
		}); err != nil && !errors.Is(err, ErrTelegramNotConfigured) {
			s.logger.Warn("exceed notification failed", zap.Error(err))
		}

		result, err := s.rebuilder.Rebuild(ctx, serverID, name, RebuildSourceMonitor)
		if err != nil {
			s.logger.Error("exceed rebuild failed",
				zap.Int64("server_id", serverID),
				zap.Error(err))
			return
		}
		if result.Success {
			state.autoRebuild = true
		}

	case model.ExceedActionDelete:
		if err := s.cloud.DeleteServer(ctx, serverID); err != nil {
			s.logger.Error("exceed delete failed",
				zap.Int64("server_id", serverID),
				zap.Error(err))
			return
		}
		state.autoRebuild = true
		s.logger.Info("server deleted on traffic overage",
			zap.Int64("server_id", serverID),
			zap.String("server_name", name))

	default:
		s.logger.Warn("unknown exceed action", zap.String("action", string(action)))
	}
}

func (s *AlertService) stateFor(serverID string) *serverAlertState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[serverID]
	if !ok {
		state = &serverAlertState{}
		s.states[serverID] = state
	}
	return state
}

// dropStaleGauges unpublishes traffic gauges for names that left the
// fleet so dashboards do not show dead series forever.
func (s *AlertService) dropStaleGauges(seen map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.tracked {
		if _, ok := seen[name]; !ok {
			metrics.DropServerTrafficPercent(name)
			delete(s.tracked, name)
		}
	}
	for name := range seen {
		s.tracked[name] = struct{}{}
	}
}

func levelEmoji(level int) string {
	if emoji, ok := levelEmojis[level]; ok {
		return emoji
	}
	return "📊"
}

// progressBar renders a 10-slot usage bar, clamped to 0..100%.
func progressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 10)
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func or0(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
