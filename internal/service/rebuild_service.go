package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/event"
	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

// Rebuild trigger labels, shown in the started notification.
const (
	RebuildSourceMonitor = "automatic (traffic overage)"
	RebuildSourceBot     = "telegram command"
	RebuildSourceAPI     = "dashboard request"
)

const (
	rebuildSettleDelay   = 5 * time.Second
	rebuildCreateRetries = 3
	rebuildCreateDelay   = 5 * time.Second
)

var (
	ErrRebuildInProgress = errors.New("rebuild already in progress")
	ErrServerNotFound    = errors.New("server not found")
	ErrNoSnapshot        = errors.New("no snapshot available, rebuild cancelled")
)

// RebuildResult is the outcome of a successful rebuild. DNS carries the
// record update result (nil when the server has no mapped record); it
// is reported alongside, not inside, the rebuild sub-document.
type RebuildResult struct {
	Success     bool             `json:"success"`
	NewServerID int64            `json:"new_server_id"`
	NewIP       string           `json:"new_ip"`
	SnapshotID  int64            `json:"snapshot_id"`
	DNS         *DNSUpdateResult `json:"-"`
}

// Rebuilder is the slice of the orchestrator its callers consume.
type Rebuilder interface {
	Rebuild(ctx context.Context, serverID int64, serverName, source string) (*RebuildResult, error)
}

// RebuildService deletes a server and recreates it from a snapshot
// image, which resets the provider's traffic counter. Each server id
// has its own non-blocking lock: a rebuild that is already running
// makes any concurrent attempt fail immediately instead of queueing a
// second delete.
type RebuildService struct {
	cloud      CloudAPI
	configRepo repository.WatchdogConfigRepository
	notifier   Notifier
	dns        *DNSService
	bus        *event.Bus
	logger     *zap.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// Delays are fields so tests run without real sleeps.
	settleDelay      time.Duration
	createRetryDelay time.Duration
}

var _ Rebuilder = (*RebuildService)(nil)

func NewRebuildService(
	cloud CloudAPI,
	configRepo repository.WatchdogConfigRepository,
	notifier Notifier,
	dns *DNSService,
	bus *event.Bus,
	logger *zap.Logger,
) *RebuildService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RebuildService{
		cloud:            cloud,
		configRepo:       configRepo,
		notifier:         notifier,
		dns:              dns,
		bus:              bus,
		logger:           logger,
		locks:            make(map[string]*sync.Mutex),
		settleDelay:      rebuildSettleDelay,
		createRetryDelay: rebuildCreateDelay,
	}
}

// Rebuild runs the full orchestration for one server: resolve the
// snapshot image, delete, recreate, repoint DNS, move the config
// entries to the new id and notify. Returns ErrRebuildInProgress when
// a rebuild of the same id is already running.
func (s *RebuildService) Rebuild(
	ctx context.Context,
	serverID int64,
	serverName, source string,
) (*RebuildResult, error) {
	oldID := strconv.FormatInt(serverID, 10)
	lock := s.lockFor(oldID)
	if !lock.TryLock() {
		return nil, ErrRebuildInProgress
	}
	defer lock.Unlock()

	logger := s.logger.With(
		zap.String("rebuild_id", uuid.NewString()),
		zap.String("server_id", oldID),
		zap.String("server_name", serverName),
		zap.String("source", source),
	)
	logger.Info("rebuild started")

	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchdog config: %w", err)
	}

	s.notify(ctx, NotificationRebuildStarted, map[string]string{
		"name":   serverName,
		"id":     oldID,
		"source": source,
	})

	result, err := s.orchestrate(ctx, cfg, serverID, logger)
	if err != nil {
		s.notify(ctx, NotificationRebuildFailed, map[string]string{
			"name":  serverName,
			"error": err.Error(),
		})
		metrics.IncRebuild(false)
		s.publish(event.RebuildCompletedPayload{
			OldID: oldID,
			Name:  serverName,
			Error: err.Error(),
		})
		logger.Error("rebuild failed", zap.Error(err))
		return nil, err
	}

	newID := strconv.FormatInt(result.NewServerID, 10)
	logger = logger.With(zap.String("new_server_id", newID), zap.String("new_ip", result.NewIP))

	// Resolve the record target before remapping: the map still keys
	// the old id at this point.
	target, mapped := cfg.Cloudflare.TargetFor(oldID, serverName)

	if cfg.RemapServerID(oldID, newID) {
		if err := s.configRepo.Save(ctx, cfg); err != nil {
			logger.Warn("config remap persist failed", zap.Error(err))
		}
	}

	dnsLine, verifyLine := "", ""
	if mapped && result.NewIP != "" {
		result.DNS = s.dns.UpdateRecord(ctx, target, result.NewIP)
		if result.DNS.Success {
			dnsLine = "✅ DNS updated"
			verify := s.dns.VerifyRecord(ctx, target.Record, result.NewIP)
			switch {
			case verify.OK:
				verifyLine = fmt.Sprintf("\n✅ DNS resolution matches: `%s`", verify.Resolved)
			case verify.Resolved != "":
				verifyLine = fmt.Sprintf("\n⚠️ DNS resolution mismatch: `%s`", verify.Resolved)
			case verify.Err != nil:
				verifyLine = fmt.Sprintf("\n⚠️ DNS verification failed: %v", verify.Err)
			}
		} else {
			dnsLine = "❌ DNS update failed: " + result.DNS.Error
		}
	}

	s.notify(ctx, NotificationRebuildSuccess, map[string]string{
		"new_id":      newID,
		"new_ip":      result.NewIP,
		"dns_line":    dnsLine,
		"verify_line": verifyLine,
	})
	metrics.IncRebuild(true)
	s.publish(event.RebuildCompletedPayload{
		OldID:      oldID,
		NewID:      newID,
		Name:       serverName,
		NewIP:      result.NewIP,
		SnapshotID: result.SnapshotID,
		Success:    true,
	})
	logger.Info("rebuild completed")
	return result, nil
}

// orchestrate performs the provider-side delete/recreate and returns
// the new server's coordinates.
func (s *RebuildService) orchestrate(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	serverID int64,
	logger *zap.Logger,
) (*RebuildResult, error) {
	old, err := s.cloud.GetServer(ctx, serverID)
	if err != nil {
		if errors.Is(err, hetzner.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("fetch server: %w", err)
	}

	image, err := s.resolveImage(ctx, cfg, serverID, old.Name)
	if err != nil {
		return nil, err
	}
	logger.Info("rebuild image resolved", zap.Int64("snapshot_id", image))

	if err := s.cloud.DeleteServer(ctx, serverID); err != nil {
		return nil, fmt.Errorf("delete server: %w", err)
	}
	if err := sleepCtx(ctx, s.settleDelay); err != nil {
		return nil, err
	}

	req := hetzner.CreateServerRequest{
		Name:             old.Name,
		ServerType:       old.ServerType.Name,
		Image:            image,
		Location:         old.Datacenter.Location.Name,
		StartAfterCreate: true,
	}

	var created *hetzner.Server
	var lastErr error
	for attempt := 1; attempt <= rebuildCreateRetries; attempt++ {
		created, lastErr = s.cloud.CreateServer(ctx, req)
		if lastErr == nil && created != nil {
			break
		}
		logger.Warn("server create attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < rebuildCreateRetries {
			if err := sleepCtx(ctx, s.createRetryDelay); err != nil {
				return nil, err
			}
		}
	}
	if created == nil {
		if lastErr == nil {
			lastErr = errors.New("create server returned nothing")
		}
		return nil, fmt.Errorf("create server: %w", lastErr)
	}

	return &RebuildResult{
		Success:     true,
		NewServerID: created.ID,
		NewIP:       created.IPv4(),
		SnapshotID:  image,
	}, nil
}

// resolveImage picks the snapshot to rebuild from: the snapshot_id_map
// entry for the id, then for the name, then the newest provider
// snapshot.
func (s *RebuildService) resolveImage(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	serverID int64,
	serverName string,
) (int64, error) {
	if mapped, ok := cfg.Rebuild.SnapshotIDMap[strconv.FormatInt(serverID, 10)]; ok && mapped != 0 {
		return int64(mapped), nil
	}
	if serverName != "" {
		if mapped, ok := cfg.Rebuild.SnapshotIDMap[serverName]; ok && mapped != 0 {
			return int64(mapped), nil
		}
	}

	snapshots, err := s.cloud.GetSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return 0, ErrNoSnapshot
	}
	return snapshots[0].ID, nil
}

func (s *RebuildService) lockFor(serverID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[serverID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[serverID] = lock
	}
	return lock
}

func (s *RebuildService) notify(ctx context.Context, name NotificationTemplate, vars map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendTemplate(ctx, name, vars); err != nil &&
		!errors.Is(err, ErrTelegramNotConfigured) {
		s.logger.Warn("rebuild notification failed",
			zap.String("template", string(name)),
			zap.Error(err))
	}
}

func (s *RebuildService) publish(payload event.RebuildCompletedPayload) {
	if s.bus != nil {
		s.bus.Publish(event.EventRebuildCompleted, payload)
	}
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
